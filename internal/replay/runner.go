package replay

import (
	"context"
	"fmt"
	"time"

	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/storage"
)

// Runner loads market data from storage and replays it in deterministic order.
type Runner struct {
	tickStore storage.TickStore
	barStore  storage.PriceBarStore
}

// NewRunner creates a new replay runner. tickStore may be nil.
func NewRunner(tickStore storage.TickStore, barStore storage.PriceBarStore) *Runner {
	return &Runner{
		tickStore: tickStore,
		barStore:  barStore,
	}
}

// Load returns the merged event stream for symbols within [from, to].
// A symbol's ticks are used when present, otherwise its bars at interval.
func (r *Runner) Load(ctx context.Context, symbols []string, interval string, from, to time.Time) ([]*Event, error) {
	var ticks []*domain.Tick
	var bars []*domain.Bar

	for _, symbol := range symbols {
		if r.tickStore != nil {
			ts, err := r.tickStore.GetByTimeRange(ctx, symbol, from, to)
			if err != nil {
				return nil, fmt.Errorf("load ticks %s: %w", symbol, err)
			}
			if len(ts) > 0 {
				ticks = append(ticks, ts...)
				continue
			}
		}
		if r.barStore == nil {
			continue
		}
		bs, err := r.barStore.GetByTimeRange(ctx, symbol, interval, from, to)
		if err != nil {
			return nil, fmt.Errorf("load bars %s: %w", symbol, err)
		}
		bars = append(bars, bs...)
	}

	return MergeEvents(ticks, bars), nil
}

// LoadDay returns the event stream of one UTC calendar day.
func (r *Runner) LoadDay(ctx context.Context, symbols []string, interval string, day time.Time) ([]*Event, error) {
	start := domain.DayStart(day)
	end := start.Add(24*time.Hour - time.Nanosecond)
	return r.Load(ctx, symbols, interval, start, end)
}

// History returns up to limit bars per symbol strictly before t, used to warm indicators.
func (r *Runner) History(ctx context.Context, symbols []string, interval string, t time.Time, lookback time.Duration, limit int) ([]domain.Bar, error) {
	if r.barStore == nil || limit <= 0 {
		return nil, nil
	}
	var out []domain.Bar
	for _, symbol := range symbols {
		bs, err := r.barStore.GetByTimeRange(ctx, symbol, interval, t.Add(-lookback), t.Add(-time.Nanosecond))
		if err != nil {
			return nil, fmt.Errorf("load history %s: %w", symbol, err)
		}
		if len(bs) > limit {
			bs = bs[len(bs)-limit:]
		}
		for _, b := range bs {
			out = append(out, *b)
		}
	}
	return out, nil
}

// Replay feeds events through engine in order, stopping at the first error.
// Unordered input is rejected with ErrInvalidOrdering before any event is fed.
func Replay(ctx context.Context, events []*Event, engine ReplayEngine) error {
	if !IsOrdered(events) {
		return ErrInvalidOrdering
	}
	for _, event := range events {
		if err := engine.OnEvent(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
