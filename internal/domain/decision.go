package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Action is the final trading action of a Decision.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Exit reasons for protective sells emitted outside the signal pipeline.
const (
	ReasonStopLoss   = "stop_loss"
	ReasonTakeProfit = "take_profit"
)

// RiskAssessment is derived per (bot, tick) and only stored inside the Decision it informed.
type RiskAssessment struct {
	Score       float64  `json:"score"`        // [0,100]
	ScaleFactor float64  `json:"scale_factor"` // [0,1]
	Override    bool     `json:"override"`     // score above threshold forced hold
	Reasons     []string `json:"reasons,omitempty"`
}

// PersistenceState is the tracker's view of a symbol after observing a tick.
type PersistenceState struct {
	Direction Direction     `json:"direction"`
	Count     int           `json:"count"`
	Held      time.Duration `json:"held"`
	Permitted bool          `json:"permitted"`
}

// DailyStats are the per-bot counters reset at every simulated day boundary.
type DailyStats struct {
	Day         time.Time       `json:"day"`
	Trades      int             `json:"trades"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"` // net realized P&L of the day
}

// Loss returns the day's realized loss as a non-negative amount.
func (s DailyStats) Loss() decimal.Decimal {
	if s.RealizedPnL.IsNegative() {
		return s.RealizedPnL.Neg()
	}
	return decimal.Zero
}

// Decision is the immutable output of one evaluation with full provenance.
type Decision struct {
	BotID      string          `json:"bot_id"`
	Symbol     string          `json:"symbol"`
	Timestamp  time.Time       `json:"timestamp"`
	Action     Action          `json:"action"`
	Confidence float64         `json:"confidence"`
	RiskScore  float64         `json:"risk_score"`
	Quantity   int64           `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Reason     string          `json:"reason,omitempty"`

	// LotID is set for protective exits; they bypass aggregation and daily gates.
	LotID string `json:"lot_id,omitempty"`

	Signals     []SignalSnapshot  `json:"signals,omitempty"`
	Aggregated  *AggregatedSignal `json:"aggregated,omitempty"`
	Risk        *RiskAssessment   `json:"risk,omitempty"`
	Persistence *PersistenceState `json:"persistence,omitempty"`
}

// IsProtectiveExit reports whether the decision is a stop-loss or take-profit sell.
func (d *Decision) IsProtectiveExit() bool {
	return d.Action == ActionSell && (d.Reason == ReasonStopLoss || d.Reason == ReasonTakeProfit)
}

// Evaluation is everything one evaluation of (bot, symbol, tick) produced.
// Exits are emitted before Decision and are executed first.
type Evaluation struct {
	Exits    []Decision `json:"exits,omitempty"`
	Decision Decision   `json:"decision"`
}
