// Package execution turns decisions into ledger mutations through orders.
package execution

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/idhash"
	"stock-bot-lab/internal/ledger"
	"stock-bot-lab/internal/observability"
)

// ErrLimitExceeded is returned when a decision would breach a daily or position limit.
// No order is created in that case.
var ErrLimitExceeded = errors.New("risk limit exceeded")

// Executor owns a bot's orders and applies them to its ledger.
type Executor struct {
	mu      sync.Mutex
	owner   string // run id, or a paper-trading scope
	botID   string
	risk    domain.RiskParams
	ledger  *ledger.Ledger
	orders  map[string]*domain.Order
	list    []*domain.Order // creation order
	seq     int64
	daily   domain.DailyStats
	flushed map[string]struct{}
	logger  *zap.Logger
	metrics *observability.Metrics
}

// Options configures an Executor.
type Options struct {
	Owner   string
	BotID   string
	Risk    domain.RiskParams
	Ledger  *ledger.Ledger
	Logger  *zap.Logger
	Metrics *observability.Metrics
}

// NewExecutor creates an executor bound to one ledger.
func NewExecutor(opts Options) *Executor {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := opts.Metrics
	if m == nil {
		m = observability.DefaultMetrics
	}
	return &Executor{
		owner:   opts.Owner,
		botID:   opts.BotID,
		risk:    opts.Risk,
		ledger:  opts.Ledger,
		orders:  make(map[string]*domain.Order),
		flushed: make(map[string]struct{}),
		logger:  logger.With(zap.String("bot_id", opts.BotID)),
		metrics: m,
	}
}

// Ledger returns the ledger the executor mutates.
func (e *Executor) Ledger() *ledger.Ledger {
	return e.ledger
}

// Daily returns the current day's counters.
func (e *Executor) Daily() domain.DailyStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.daily
}

// StartDay resets the daily counters.
func (e *Executor) StartDay(day time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.daily = domain.DailyStats{Day: domain.DayStart(day)}
}

// Execute applies a non-hold decision as a market order.
//
// Steps:
//  1. Enforce daily trade/loss and position limits (protective exits bypass them)
//  2. Create the order as waiting, move it to in_progress
//  3. Apply it to the ledger: done, or insufficient_funds without mutation
func (e *Executor) Execute(d domain.Decision) (*domain.Order, error) {
	if d.Action == domain.ActionHold {
		return nil, nil
	}
	if d.Quantity <= 0 {
		return nil, fmt.Errorf("%w: decision for %s has no quantity", ledger.ErrInvalidQuantity, d.Symbol)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// 1. Limits
	if !d.IsProtectiveExit() {
		if err := e.checkLimitsLocked(d); err != nil {
			return nil, err
		}
	}

	// 2. Create
	o := e.newOrderLocked(d, domain.OrderTypeMarket, decimal.Zero)
	if err := transition(o, domain.OrderStatusInProgress, d.Timestamp); err != nil {
		return nil, err
	}

	// 3. Apply
	e.fillLocked(o, d.Price, d.Timestamp)
	return o.Clone(), nil
}

// PlaceTarget creates a waiting target order that fills once the price crosses target.
func (e *Executor) PlaceTarget(d domain.Decision, target decimal.Decimal) (*domain.Order, error) {
	if d.Action == domain.ActionHold {
		return nil, nil
	}
	if d.Quantity <= 0 {
		return nil, fmt.Errorf("%w: decision for %s has no quantity", ledger.ErrInvalidQuantity, d.Symbol)
	}
	if !target.IsPositive() {
		return nil, ledger.ErrInvalidPrice
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkLimitsLocked(d); err != nil {
		return nil, err
	}
	o := e.newOrderLocked(d, domain.OrderTypeTarget, target)
	e.logger.Debug("target order placed",
		zap.String("order_id", o.ID),
		zap.String("symbol", o.Symbol),
		zap.String("target", target.String()),
	)
	return o.Clone(), nil
}

// OnPrice fills waiting target orders for symbol whose target is crossed by price.
// Returns the orders that left waiting, in creation order.
func (e *Executor) OnPrice(symbol string, price float64, at time.Time) []*domain.Order {
	e.mu.Lock()
	defer e.mu.Unlock()

	var filled []*domain.Order
	for _, o := range e.sortedLocked() {
		if o.Symbol != symbol || o.Status != domain.OrderStatusWaiting || !crosses(o, price) {
			continue
		}
		if err := transition(o, domain.OrderStatusInProgress, at); err != nil {
			continue
		}
		e.fillLocked(o, decimal.NewFromFloat(price), at)
		filled = append(filled, o.Clone())
	}
	return filled
}

// Cancel cancels a non-terminal order.
func (e *Executor) Cancel(orderID string, at time.Time) (*domain.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	if err := transition(o, domain.OrderStatusCancelled, at); err != nil {
		return nil, err
	}
	e.metrics.RecordOrder(string(o.Status))
	return o.Clone(), nil
}

// CancelAll cancels every non-terminal order, leaving none waiting or in progress.
func (e *Executor) CancelAll(reason string, at time.Time) []*domain.Order {
	e.mu.Lock()
	defer e.mu.Unlock()

	var cancelled []*domain.Order
	for _, o := range e.sortedLocked() {
		if o.Status.IsTerminal() {
			continue
		}
		if err := transition(o, domain.OrderStatusCancelled, at); err != nil {
			continue
		}
		o.Reason = reason
		e.metrics.RecordOrder(string(o.Status))
		cancelled = append(cancelled, o.Clone())
	}
	return cancelled
}

// Orders returns copies of all orders in creation order.
func (e *Executor) Orders() []*domain.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	sorted := e.sortedLocked()
	out := make([]*domain.Order, len(sorted))
	for i, o := range sorted {
		out[i] = o.Clone()
	}
	return out
}

// DrainTerminal returns terminal orders not returned by a previous call.
// Used to write each order exactly once.
func (e *Executor) DrainTerminal() []*domain.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*domain.Order
	for _, o := range e.sortedLocked() {
		if !o.Status.IsTerminal() {
			continue
		}
		if _, done := e.flushed[o.ID]; done {
			continue
		}
		e.flushed[o.ID] = struct{}{}
		out = append(out, o.Clone())
	}
	return out
}

// checkLimitsLocked enforces max daily trades, max daily loss and max position size.
func (e *Executor) checkLimitsLocked(d domain.Decision) error {
	if e.risk.MaxDailyTrades > 0 && e.daily.Trades >= e.risk.MaxDailyTrades {
		return fmt.Errorf("%w: max daily trades %d reached", ErrLimitExceeded, e.risk.MaxDailyTrades)
	}

	if e.risk.MaxDailyLoss.IsPositive() {
		loss := e.daily.Loss()
		switch d.Action {
		case domain.ActionBuy:
			if loss.GreaterThanOrEqual(e.risk.MaxDailyLoss) {
				return fmt.Errorf("%w: daily loss %s reached limit %s", ErrLimitExceeded, loss.StringFixed(2), e.risk.MaxDailyLoss.StringFixed(2))
			}
		case domain.ActionSell:
			preview, err := e.ledger.PreviewSell(d.Symbol, d.Quantity, d.Price)
			if err == nil {
				projected := e.daily.RealizedPnL.Add(preview.RealizedPnL)
				if projected.IsNegative() && projected.Neg().GreaterThan(e.risk.MaxDailyLoss) {
					return fmt.Errorf("%w: sell would bring daily loss to %s over limit %s", ErrLimitExceeded, projected.Neg().StringFixed(2), e.risk.MaxDailyLoss.StringFixed(2))
				}
			}
		}
	}

	if d.Action == domain.ActionBuy && e.risk.MaxPositionSize.IsPositive() {
		after := e.ledger.Exposure(d.Symbol, d.Price).Add(d.Price.Mul(decimal.NewFromInt(d.Quantity)))
		if after.GreaterThan(e.risk.MaxPositionSize) {
			return fmt.Errorf("%w: position in %s would be %s over max %s", ErrLimitExceeded, d.Symbol, after.StringFixed(2), e.risk.MaxPositionSize.StringFixed(2))
		}
	}
	return nil
}

func (e *Executor) newOrderLocked(d domain.Decision, orderType domain.OrderType, target decimal.Decimal) *domain.Order {
	e.seq++
	side := domain.TransactionBuy
	if d.Action == domain.ActionSell {
		side = domain.TransactionSell
	}
	o := &domain.Order{
		ID:              idhash.ComputeOrderID(e.owner, e.botID, e.seq),
		Seq:             e.seq,
		RunID:           e.owner,
		BotID:           e.botID,
		Symbol:          d.Symbol,
		TransactionType: side,
		OrderType:       orderType,
		Quantity:        d.Quantity,
		TargetPrice:     target,
		Status:          domain.OrderStatusWaiting,
		Reason:          d.Reason,
		LotID:           d.LotID,
		CreatedAt:       d.Timestamp,
		UpdatedAt:       d.Timestamp,
	}
	e.orders[o.ID] = o
	e.list = append(e.list, o)
	return o
}

// fillLocked applies an in_progress order to the ledger.
func (e *Executor) fillLocked(o *domain.Order, price decimal.Decimal, at time.Time) {
	var err error
	switch o.TransactionType {
	case domain.TransactionBuy:
		_, err = e.ledger.Buy(o.Symbol, o.Quantity, price, at)
	case domain.TransactionSell:
		var res ledger.SellResult
		if o.LotID != "" {
			res, err = e.ledger.SellLot(o.LotID, o.Quantity, price)
		} else {
			res, err = e.ledger.Sell(o.Symbol, o.Quantity, price)
		}
		if err == nil {
			o.RealizedPnL = res.RealizedPnL
			e.daily.RealizedPnL = e.daily.RealizedPnL.Add(res.RealizedPnL)
		}
	}

	if err != nil {
		_ = transition(o, domain.OrderStatusInsufficientFunds, at)
		e.logger.Debug("order rejected",
			zap.String("order_id", o.ID),
			zap.String("symbol", o.Symbol),
			zap.Error(err),
		)
		e.metrics.RecordOrder(string(o.Status))
		return
	}

	o.FillPrice = price
	_ = transition(o, domain.OrderStatusDone, at)
	e.daily.Trades++
	e.metrics.RecordOrder(string(o.Status))
}

func (e *Executor) sortedLocked() []*domain.Order {
	return e.list
}
