package reporting

import (
	"context"
	"sort"
	"time"

	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/metrics"
	"stock-bot-lab/internal/storage"
)

// Generator produces reports from stored results.
type Generator struct {
	runs      storage.SimulationRunStore
	daily     storage.DailyResultStore
	summaries *metrics.Aggregator
	now       func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(
	runs storage.SimulationRunStore,
	configs storage.BotSimulationConfigStore,
	daily storage.DailyResultStore,
	orders storage.OrderStore,
) *Generator {
	return &Generator{
		runs:      runs,
		daily:     daily,
		summaries: metrics.NewAggregator(configs, daily, orders),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces the report of one run.
func (g *Generator) Generate(ctx context.Context, runID string) (*Report, error) {
	run, err := g.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	summaries, err := g.summaries.Summaries(ctx, runID)
	if err != nil {
		return nil, err
	}
	daily, err := g.daily.GetByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}
	return Build(run, summaries, daily, g.now()), nil
}

// Build assembles a report from already loaded data.
func Build(run *domain.SimulationRun, summaries []domain.BotSummary, daily []*domain.DailyResult, generatedAt time.Time) *Report {
	r := &Report{
		GeneratedAt: generatedAt,
		Run: RunSection{
			ID:           run.ID,
			ParentRunID:  run.ParentRunID,
			Name:         run.Name,
			Status:       string(run.Status),
			StartDate:    run.StartDate,
			EndDate:      run.EndDate,
			Symbols:      run.Symbols,
			Interval:     run.Interval,
			ErrorMessage: run.ErrorMessage,
		},
		Bots:  BotRows(summaries),
		Daily: dailyRows(daily),
	}

	bestProfit := 0.0
	for i, b := range r.Bots {
		if i == 0 || b.TotalProfit > bestProfit {
			bestProfit = b.TotalProfit
			r.Best = b.BotID
		}
	}
	return r
}

// BotRows converts summaries to report rows sorted by bot_id.
func BotRows(summaries []domain.BotSummary) []BotRow {
	rows := make([]BotRow, 0, len(summaries))
	for _, s := range summaries {
		row := BotRow{
			BotID:                s.BotID,
			BotName:              s.BotName,
			ReturnPct:            s.ReturnPct,
			TotalTrades:          s.TotalTrades,
			BuyTrades:            s.BuyTrades,
			SellTrades:           s.SellTrades,
			WinRate:              s.WinRate,
			InsufficientFunds:    s.InsufficientFunds,
			CancelledOrders:      s.CancelledOrders,
			MaxDrawdown:          s.MaxDrawdown,
			MaxDrawdownPct:       s.MaxDrawdownPct,
			MaxConsecutiveLosses: s.MaxConsecutiveLosses,
			DaysSimulated:        s.DaysSimulated,
		}
		row.InitialEquity, _ = s.InitialEquity.Float64()
		row.FinalEquity, _ = s.FinalEquity.Float64()
		row.TotalProfit, _ = s.TotalProfit.Float64()
		row.RealizedPnL, _ = s.RealizedPnL.Float64()
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].BotID < rows[j].BotID })
	return rows
}

func dailyRows(daily []*domain.DailyResult) []DailyRow {
	rows := make([]DailyRow, 0, len(daily))
	for _, d := range daily {
		row := DailyRow{BotID: d.BotID, Day: d.Day, TradesExecuted: d.TradesExecuted}
		row.Equity, _ = d.Equity.Float64()
		row.Cash, _ = d.Cash.Float64()
		row.DailyRealizedPnL, _ = d.DailyRealizedPnL.Float64()
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].BotID != rows[j].BotID {
			return rows[i].BotID < rows[j].BotID
		}
		return rows[i].Day.Before(rows[j].Day)
	})
	return rows
}
