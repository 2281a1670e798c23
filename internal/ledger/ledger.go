// Package ledger implements a per-bot simulated cash and FIFO lot ledger.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/idhash"
)

// Ledger errors. Callers map the insufficiency errors to an order status.
var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrInvalidPrice       = errors.New("price must be positive")
	ErrLotNotFound        = errors.New("lot not found")
)

// LotConsumption is the portion of one lot consumed by a sell.
type LotConsumption struct {
	LotID       string
	Quantity    int64
	CostPrice   decimal.Decimal
	RealizedPnL decimal.Decimal
}

// SellResult describes the effect of a sell, applied or previewed.
type SellResult struct {
	Proceeds    decimal.Decimal
	CostBasis   decimal.Decimal
	RealizedPnL decimal.Decimal
	Consumed    []LotConsumption
}

// Ledger is a cash balance plus FIFO lots. Cash never goes negative.
// Safe for concurrent use; within a simulation it is owned by exactly one bot.
type Ledger struct {
	mu       sync.Mutex
	owner    string
	cash     decimal.Decimal
	realized decimal.Decimal
	lots     []*domain.PortfolioLot // acquisition order
	seq      int64
}

// New creates a ledger seeded with cash and existing positions.
// owner scopes lot ids so they are deterministic per run and bot.
func New(owner string, budget domain.Budget) *Ledger {
	l := &Ledger{
		owner: owner,
		cash:  budget.Cash,
	}

	positions := append([]domain.InitialPosition(nil), budget.Positions...)
	sort.SliceStable(positions, func(i, j int) bool {
		return positions[i].AcquiredAt.Before(positions[j].AcquiredAt)
	})
	for _, p := range positions {
		l.appendLot(p.Symbol, p.Quantity, p.Price, p.AcquiredAt)
	}
	return l
}

// Cash returns the current cash balance.
func (l *Ledger) Cash() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cash
}

// RealizedPnL returns the running realized P&L.
func (l *Ledger) RealizedPnL() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.realized
}

// Buy debits price × quantity and appends a lot.
// Returns ErrInsufficientFunds without mutating anything when cash is short.
func (l *Ledger) Buy(symbol string, quantity int64, price decimal.Decimal, at time.Time) (domain.PortfolioLot, error) {
	if quantity <= 0 {
		return domain.PortfolioLot{}, ErrInvalidQuantity
	}
	if !price.IsPositive() {
		return domain.PortfolioLot{}, ErrInvalidPrice
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cost := price.Mul(decimal.NewFromInt(quantity))
	if l.cash.LessThan(cost) {
		return domain.PortfolioLot{}, fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, cost.StringFixed(2), l.cash.StringFixed(2))
	}

	l.cash = l.cash.Sub(cost)
	return *l.appendLot(symbol, quantity, price, at), nil
}

// Sell consumes lots of symbol oldest-first and credits the proceeds.
// Returns ErrInsufficientShares without mutating anything when the position is short.
func (l *Ledger) Sell(symbol string, quantity int64, price decimal.Decimal) (SellResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.previewLocked(symbol, quantity, price)
	if err != nil {
		return SellResult{}, err
	}

	byID := make(map[string]*domain.PortfolioLot, len(l.lots))
	for _, lot := range l.lots {
		byID[lot.ID] = lot
	}
	for _, c := range res.Consumed {
		byID[c.LotID].Remaining -= c.Quantity
	}
	l.compact()

	l.cash = l.cash.Add(res.Proceeds)
	l.realized = l.realized.Add(res.RealizedPnL)
	return res, nil
}

// SellLot consumes quantity from one specific lot, bypassing FIFO order.
// Protective exits use it so the lot that hit its level is the one closed.
func (l *Ledger) SellLot(lotID string, quantity int64, price decimal.Decimal) (SellResult, error) {
	if quantity <= 0 {
		return SellResult{}, ErrInvalidQuantity
	}
	if !price.IsPositive() {
		return SellResult{}, ErrInvalidPrice
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var lot *domain.PortfolioLot
	for _, candidate := range l.lots {
		if candidate.ID == lotID {
			lot = candidate
			break
		}
	}
	if lot == nil {
		return SellResult{}, fmt.Errorf("%w: %s", ErrLotNotFound, lotID)
	}
	if lot.Remaining < quantity {
		return SellResult{}, fmt.Errorf("%w: want %d from lot %s, remaining %d", ErrInsufficientShares, quantity, lotID, lot.Remaining)
	}

	q := decimal.NewFromInt(quantity)
	pnl := price.Sub(lot.Price).Mul(q)
	res := SellResult{
		Proceeds:    price.Mul(q),
		CostBasis:   lot.Price.Mul(q),
		RealizedPnL: pnl,
		Consumed: []LotConsumption{{
			LotID:       lot.ID,
			Quantity:    quantity,
			CostPrice:   lot.Price,
			RealizedPnL: pnl,
		}},
	}

	lot.Remaining -= quantity
	l.compact()

	l.cash = l.cash.Add(res.Proceeds)
	l.realized = l.realized.Add(res.RealizedPnL)
	return res, nil
}

// PreviewSell computes what Sell would do without applying it.
func (l *Ledger) PreviewSell(symbol string, quantity int64, price decimal.Decimal) (SellResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.previewLocked(symbol, quantity, price)
}

func (l *Ledger) previewLocked(symbol string, quantity int64, price decimal.Decimal) (SellResult, error) {
	if quantity <= 0 {
		return SellResult{}, ErrInvalidQuantity
	}
	if !price.IsPositive() {
		return SellResult{}, ErrInvalidPrice
	}
	held := l.positionLocked(symbol)
	if held < quantity {
		return SellResult{}, fmt.Errorf("%w: want %d %s, hold %d", ErrInsufficientShares, quantity, symbol, held)
	}

	res := SellResult{}
	left := quantity
	for _, lot := range l.lots {
		if left == 0 {
			break
		}
		if lot.Symbol != symbol || lot.Remaining == 0 {
			continue
		}
		take := lot.Remaining
		if take > left {
			take = left
		}
		q := decimal.NewFromInt(take)
		pnl := price.Sub(lot.Price).Mul(q)
		res.Consumed = append(res.Consumed, LotConsumption{
			LotID:       lot.ID,
			Quantity:    take,
			CostPrice:   lot.Price,
			RealizedPnL: pnl,
		})
		res.CostBasis = res.CostBasis.Add(lot.Price.Mul(q))
		res.RealizedPnL = res.RealizedPnL.Add(pnl)
		left -= take
	}
	res.Proceeds = price.Mul(decimal.NewFromInt(quantity))
	return res, nil
}

// Position returns the number of shares held of symbol.
func (l *Ledger) Position(symbol string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.positionLocked(symbol)
}

func (l *Ledger) positionLocked(symbol string) int64 {
	var total int64
	for _, lot := range l.lots {
		if lot.Symbol == symbol {
			total += lot.Remaining
		}
	}
	return total
}

// Lots returns copies of the open lots of symbol, oldest first.
// An empty symbol returns every open lot.
func (l *Ledger) Lots(symbol string) []domain.PortfolioLot {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.PortfolioLot, 0, len(l.lots))
	for _, lot := range l.lots {
		if symbol != "" && lot.Symbol != symbol {
			continue
		}
		out = append(out, *lot)
	}
	return out
}

// Exposure returns the market value of symbol at price.
func (l *Ledger) Exposure(symbol string, price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(l.Position(symbol)))
}

// Snapshot values the ledger at the given prices.
// Symbols without a price are valued at cost.
func (l *Ledger) Snapshot(prices map[string]decimal.Decimal) domain.LedgerSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := domain.LedgerSnapshot{
		Cash:        l.cash,
		RealizedPnL: l.realized,
		Lots:        make([]domain.PortfolioLot, 0, len(l.lots)),
	}
	for _, lot := range l.lots {
		q := decimal.NewFromInt(lot.Remaining)
		mark, ok := prices[lot.Symbol]
		if !ok {
			mark = lot.Price
		}
		snap.MarketValue = snap.MarketValue.Add(mark.Mul(q))
		snap.UnrealizedPnL = snap.UnrealizedPnL.Add(mark.Sub(lot.Price).Mul(q))
		snap.Lots = append(snap.Lots, *lot)
	}
	snap.Equity = snap.Cash.Add(snap.MarketValue)
	return snap
}

// Equity returns cash plus market value at the given prices.
func (l *Ledger) Equity(prices map[string]decimal.Decimal) decimal.Decimal {
	return l.Snapshot(prices).Equity
}

func (l *Ledger) appendLot(symbol string, quantity int64, price decimal.Decimal, at time.Time) *domain.PortfolioLot {
	l.seq++
	lot := &domain.PortfolioLot{
		ID:         idhash.ComputeLotID(l.owner, symbol, l.seq),
		Symbol:     symbol,
		Quantity:   quantity,
		Remaining:  quantity,
		Price:      price,
		AcquiredAt: at.UTC(),
	}
	l.lots = append(l.lots, lot)
	return lot
}

// compact drops fully consumed lots.
func (l *Ledger) compact() {
	open := l.lots[:0]
	for _, lot := range l.lots {
		if lot.Remaining > 0 {
			open = append(open, lot)
		}
	}
	for i := len(open); i < len(l.lots); i++ {
		l.lots[i] = nil
	}
	l.lots = open
}
