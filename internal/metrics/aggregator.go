package metrics

import (
	"context"
	"errors"
	"fmt"

	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/storage"
)

// ErrNoBots is returned when a run has no pinned bot configs.
var ErrNoBots = errors.New("run has no bots")

// Aggregator computes per-bot summaries of a run from stored results.
type Aggregator struct {
	configs storage.BotSimulationConfigStore
	daily   storage.DailyResultStore
	orders  storage.OrderStore
}

// NewAggregator creates a new metrics aggregator.
func NewAggregator(configs storage.BotSimulationConfigStore, daily storage.DailyResultStore, orders storage.OrderStore) *Aggregator {
	return &Aggregator{
		configs: configs,
		daily:   daily,
		orders:  orders,
	}
}

// Summaries returns one summary per bot of the run, ordered by bot_id.
// Bots without results yet report their initial equity.
func (a *Aggregator) Summaries(ctx context.Context, runID string) ([]domain.BotSummary, error) {
	configs, err := a.configs.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load bot configs: %w", err)
	}
	if len(configs) == 0 {
		return nil, ErrNoBots
	}

	daily, err := a.daily.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load daily results: %w", err)
	}
	orders, err := a.orders.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}

	dailyByBot := make(map[string][]*domain.DailyResult)
	for _, d := range daily {
		dailyByBot[d.BotID] = append(dailyByBot[d.BotID], d)
	}
	ordersByBot := make(map[string][]*domain.Order)
	for _, o := range orders {
		ordersByBot[o.BotID] = append(ordersByBot[o.BotID], o)
	}

	out := make([]domain.BotSummary, 0, len(configs))
	for _, c := range configs {
		s := computeSummary(c.Config, dailyByBot[c.BotID], ordersByBot[c.BotID])
		s.RunID = runID
		out = append(out, s)
	}
	return out, nil
}
