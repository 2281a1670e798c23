package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyResult is the write-once end-of-day record for one (run, bot, day).
type DailyResult struct {
	ID    string // deterministic hash of (run, bot, day)
	RunID string
	BotID string
	Day   time.Time // UTC day start

	Decisions      int  // non-hold decisions emitted
	TradesExecuted int  // orders reaching done
	TradeExecuted  bool // at least one trade this day

	Cash             decimal.Decimal
	RealizedPnL      decimal.Decimal // cumulative
	DailyRealizedPnL decimal.Decimal // this day only
	UnrealizedPnL    decimal.Decimal
	Equity           decimal.Decimal
	CumulativeProfit decimal.Decimal // equity minus initial equity
	Lots             []PortfolioLot  // open lots at close
	CreatedAt        time.Time
}

// TickResult is the write-once record for one (run, bot, symbol, tick).
type TickResult struct {
	ID               string // deterministic hash of (run, bot, symbol, timestamp)
	RunID            string
	BotID            string
	Symbol           string
	Timestamp        time.Time
	Price            float64
	Action           Action
	Confidence       float64
	RiskScore        float64
	Quantity         int64
	Reason           string
	TradeExecuted    bool
	OrderStatus      OrderStatus // empty when no order was created
	Cash             decimal.Decimal
	CumulativeProfit decimal.Decimal
}

// BotSummary is the per-bot result of a run.
type BotSummary struct {
	RunID                string          `json:"run_id"`
	BotID                string          `json:"bot_id"`
	BotName              string          `json:"bot_name"`
	InitialEquity        decimal.Decimal `json:"initial_equity"`
	FinalEquity          decimal.Decimal `json:"final_equity"`
	TotalProfit          decimal.Decimal `json:"total_profit"`
	RealizedPnL          decimal.Decimal `json:"realized_pnl"`
	ReturnPct            float64         `json:"return_pct"`
	TotalTrades          int             `json:"total_trades"`
	BuyTrades            int             `json:"buy_trades"`
	SellTrades           int             `json:"sell_trades"`
	WinningTrades        int             `json:"winning_trades"`
	LosingTrades         int             `json:"losing_trades"`
	InsufficientFunds    int             `json:"insufficient_funds"`
	CancelledOrders      int             `json:"cancelled_orders"`
	WinRate              float64         `json:"win_rate"`
	MaxDrawdown          float64         `json:"max_drawdown"`     // absolute, peak-to-trough equity
	MaxDrawdownPct       float64         `json:"max_drawdown_pct"` // relative to the peak
	MaxConsecutiveLosses int             `json:"max_consecutive_losses"`
	DaysSimulated        int             `json:"days_simulated"`
}

// ArchivedSignal is a SignalSnapshot persisted for audit.
type ArchivedSignal struct {
	RunID string
	BotID string
	SignalSnapshot
}

// Clone returns a deep copy.
func (r *DailyResult) Clone() *DailyResult {
	c := *r
	c.Lots = append([]PortfolioLot(nil), r.Lots...)
	return &c
}
