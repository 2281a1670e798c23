package verification

import (
	"context"
	"fmt"

	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/storage"
)

// RunVerifier compares the stored results of two runs.
type RunVerifier struct {
	daily  storage.DailyResultStore
	orders storage.OrderStore
}

// NewRunVerifier creates a RunVerifier.
func NewRunVerifier(daily storage.DailyResultStore, orders storage.OrderStore) *RunVerifier {
	return &RunVerifier{daily: daily, orders: orders}
}

type dayKey struct {
	botID string
	day   int64
}

type orderKey struct {
	botID string
	seq   int64
}

// Compare matches base and other by (bot, day) and (bot, seq). A bot-day or
// order present in only one run is a divergence.
func (v *RunVerifier) Compare(ctx context.Context, baseRunID, otherRunID string) (*Report, error) {
	report := &Report{BaseRunID: baseRunID, OtherRunID: otherRunID}

	baseDays, err := v.daily.GetByRunID(ctx, baseRunID)
	if err != nil {
		return nil, fmt.Errorf("load daily results %s: %w", baseRunID, err)
	}
	otherDays, err := v.daily.GetByRunID(ctx, otherRunID)
	if err != nil {
		return nil, fmt.Errorf("load daily results %s: %w", otherRunID, err)
	}

	others := make(map[dayKey]*domain.DailyResult, len(otherDays))
	for _, r := range otherDays {
		others[dayKey{r.BotID, r.Day.Unix()}] = r
	}
	for _, base := range baseDays {
		key := dayKey{base.BotID, base.Day.Unix()}
		res := DayResult{BotID: base.BotID, Day: base.Day}
		if other, ok := others[key]; ok {
			res.Divergences = CompareDailyResults(base, other)
			delete(others, key)
		} else {
			res.Divergences = []FieldDivergence{{Field: "DailyResult", Expected: "present", Actual: "missing"}}
		}
		report.add(res)
	}
	for _, other := range otherDays {
		if _, extra := others[dayKey{other.BotID, other.Day.Unix()}]; extra {
			report.add(DayResult{
				BotID:       other.BotID,
				Day:         other.Day,
				Divergences: []FieldDivergence{{Field: "DailyResult", Expected: "missing", Actual: "present"}},
			})
		}
	}

	if err := v.compareOrders(ctx, report); err != nil {
		return nil, err
	}
	report.Match = len(report.DivergedDays) == 0 && len(report.DivergedOrders) == 0
	return report, nil
}

func (v *RunVerifier) compareOrders(ctx context.Context, report *Report) error {
	baseOrders, err := v.orders.GetByRunID(ctx, report.BaseRunID)
	if err != nil {
		return fmt.Errorf("load orders %s: %w", report.BaseRunID, err)
	}
	otherOrders, err := v.orders.GetByRunID(ctx, report.OtherRunID)
	if err != nil {
		return fmt.Errorf("load orders %s: %w", report.OtherRunID, err)
	}

	others := make(map[orderKey]*domain.Order, len(otherOrders))
	for _, o := range otherOrders {
		others[orderKey{o.BotID, o.Seq}] = o
	}
	for _, base := range baseOrders {
		report.Orders++
		key := orderKey{base.BotID, base.Seq}
		other, ok := others[key]
		if !ok {
			report.DivergedOrders = append(report.DivergedOrders, OrderResult{
				BotID: base.BotID, Seq: base.Seq,
				Divergences: []FieldDivergence{{Field: "Order", Expected: "present", Actual: "missing"}},
			})
			continue
		}
		delete(others, key)
		if d := CompareOrders(base, other); len(d) > 0 {
			report.DivergedOrders = append(report.DivergedOrders, OrderResult{BotID: base.BotID, Seq: base.Seq, Divergences: d})
		}
	}
	for _, o := range otherOrders {
		if _, extra := others[orderKey{o.BotID, o.Seq}]; extra {
			report.Orders++
			report.DivergedOrders = append(report.DivergedOrders, OrderResult{
				BotID: o.BotID, Seq: o.Seq,
				Divergences: []FieldDivergence{{Field: "Order", Expected: "missing", Actual: "present"}},
			})
		}
	}
	return nil
}

func (r *Report) add(res DayResult) {
	r.BotDays++
	res.Match = len(res.Divergences) == 0
	if res.Match {
		r.MatchedDays++
		return
	}
	r.DivergedDays = append(r.DivergedDays, res)
}
