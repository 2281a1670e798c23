// Package verification checks that a rerun reproduced its parent run: same
// pinned configs over the same market data must give identical results.
package verification

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"stock-bot-lab/internal/domain"
)

// FieldDivergence is a mismatch between the base and the other run.
type FieldDivergence struct {
	Field    string `json:"field"`
	Expected any    `json:"expected"` // base run
	Actual   any    `json:"actual"`   // other run
}

// DayResult is the comparison of one bot-day.
type DayResult struct {
	BotID       string            `json:"bot_id"`
	Day         time.Time         `json:"day"`
	Match       bool              `json:"match"`
	Divergences []FieldDivergence `json:"divergences,omitempty"`
}

// OrderResult is the comparison of one order, matched by (bot, seq).
type OrderResult struct {
	BotID       string            `json:"bot_id"`
	Seq         int64             `json:"seq"`
	Divergences []FieldDivergence `json:"divergences"`
}

// Report summarizes a run comparison.
type Report struct {
	BaseRunID  string `json:"base_run_id"`
	OtherRunID string `json:"other_run_id"`
	Match      bool   `json:"match"`

	BotDays      int         `json:"bot_days"`
	MatchedDays  int         `json:"matched_days"`
	DivergedDays []DayResult `json:"diverged_days,omitempty"`

	Orders         int           `json:"orders"`
	DivergedOrders []OrderResult `json:"diverged_orders,omitempty"`
}

// CompareDailyResults compares the stored state of one bot-day.
// Ids and creation times differ between runs and are ignored.
func CompareDailyResults(base, other *domain.DailyResult) []FieldDivergence {
	var d divergences
	d.text("BotID", base.BotID, other.BotID)
	if !base.Day.Equal(other.Day) {
		d.add("Day", base.Day, other.Day)
	}
	d.num("Decisions", int64(base.Decisions), int64(other.Decisions))
	d.num("TradesExecuted", int64(base.TradesExecuted), int64(other.TradesExecuted))
	d.money("Cash", base.Cash, other.Cash)
	d.money("RealizedPnL", base.RealizedPnL, other.RealizedPnL)
	d.money("DailyRealizedPnL", base.DailyRealizedPnL, other.DailyRealizedPnL)
	d.money("UnrealizedPnL", base.UnrealizedPnL, other.UnrealizedPnL)
	d.money("Equity", base.Equity, other.Equity)
	d.money("CumulativeProfit", base.CumulativeProfit, other.CumulativeProfit)

	if len(base.Lots) != len(other.Lots) {
		d.add("Lots", len(base.Lots), len(other.Lots))
		return d
	}
	for i := range base.Lots {
		a, b := base.Lots[i], other.Lots[i]
		prefix := fmt.Sprintf("Lots[%d].", i)
		d.text(prefix+"Symbol", a.Symbol, b.Symbol)
		d.num(prefix+"Remaining", a.Remaining, b.Remaining)
		d.money(prefix+"Price", a.Price, b.Price)
		if !a.AcquiredAt.Equal(b.AcquiredAt) {
			d.add(prefix+"AcquiredAt", a.AcquiredAt, b.AcquiredAt)
		}
	}
	return d
}

// CompareOrders compares two terminal orders. Ids and timestamps are ignored.
func CompareOrders(base, other *domain.Order) []FieldDivergence {
	var d divergences
	d.text("Symbol", base.Symbol, other.Symbol)
	d.text("TransactionType", string(base.TransactionType), string(other.TransactionType))
	d.text("OrderType", string(base.OrderType), string(other.OrderType))
	d.text("Status", string(base.Status), string(other.Status))
	d.text("LotID", base.LotID, other.LotID)
	d.num("Quantity", base.Quantity, other.Quantity)
	d.money("TargetPrice", base.TargetPrice, other.TargetPrice)
	d.money("FillPrice", base.FillPrice, other.FillPrice)
	d.money("RealizedPnL", base.RealizedPnL, other.RealizedPnL)
	return d
}

type divergences []FieldDivergence

func (d *divergences) add(field string, expected, actual any) {
	*d = append(*d, FieldDivergence{Field: field, Expected: expected, Actual: actual})
}

func (d *divergences) text(field, a, b string) {
	if a != b {
		d.add(field, a, b)
	}
}

func (d *divergences) num(field string, a, b int64) {
	if a != b {
		d.add(field, a, b)
	}
}

func (d *divergences) money(field string, a, b decimal.Decimal) {
	if !a.Equal(b) {
		d.add(field, a.String(), b.String())
	}
}
