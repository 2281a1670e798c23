package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-bot-lab/internal/botstate"
	"stock-bot-lab/internal/decision"
	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/replay"
	"stock-bot-lab/internal/signal"
)

var day = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return day.Add(14*time.Hour + time.Duration(minutes)*time.Minute)
}

func bullish() signal.Source {
	return signal.NewFuncSource("ind", domain.SourceKindIndicator, func(ctx context.Context, in signal.Input) (*domain.SignalSnapshot, error) {
		return &domain.SignalSnapshot{Direction: domain.DirectionBullish, Confidence: 0.9}, nil
	})
}

func testConfig() domain.BotConfig {
	return domain.BotConfig{
		ID:      "bot-1",
		Symbols: []string{"AAPL"},
		Budget:  domain.Budget{Cash: decimal.NewFromInt(10000)},
		Risk: domain.RiskParams{
			RiskPerTradePct: 2,
			StopLossPct:     5,
			MaxDailyTrades:  1,
		},
		Sources:            []domain.SourceConfig{{ID: "ind", Kind: domain.SourceKindIndicator, Enabled: true, Weight: 1}},
		Aggregation:        domain.WeightedAverage{},
		RiskScoreThreshold: 100,
	}
}

func newEngine(cfg domain.BotConfig, cancelled func() bool) *Engine {
	st := botstate.New(botstate.Options{Owner: "run-1", Config: cfg, Sources: []signal.Source{bullish()}})
	return NewEngine(Options{
		RunID:          "run-1",
		State:          st,
		Evaluator:      decision.New(decision.Options{}),
		Cancelled:      cancelled,
		ArchiveSignals: true,
	})
}

func event(symbol string, price float64, ts time.Time) *replay.Event {
	return &replay.Event{
		Type:      replay.EventTypeTick,
		Symbol:    symbol,
		Timestamp: ts,
		Bar:       domain.Bar{Symbol: symbol, Timestamp: ts, Open: price, High: price, Low: price, Close: price},
	}
}

func TestEngine_BuysAndRecordsDay(t *testing.T) {
	e := newEngine(testConfig(), nil)
	e.StartDay(day)

	ctx := context.Background()
	require.NoError(t, e.OnEvent(ctx, event("AAPL", 100, at(0))))
	require.NoError(t, e.OnEvent(ctx, event("AAPL", 101, at(1))))

	out := e.EndDay(at(390))
	require.Len(t, out.Ticks, 2)
	assert.Equal(t, domain.ActionBuy, out.Ticks[0].Action)
	assert.True(t, out.Ticks[0].TradeExecuted)
	assert.Equal(t, domain.OrderStatusDone, out.Ticks[0].OrderStatus)
	assert.Equal(t, int64(40), out.Ticks[0].Quantity)

	// second tick hits max daily trades
	assert.Equal(t, domain.ActionHold, out.Ticks[1].Action)
	assert.False(t, out.Ticks[1].TradeExecuted)
	assert.NotEqual(t, out.Ticks[0].ID, out.Ticks[1].ID)

	require.NotNil(t, out.Daily)
	assert.Equal(t, 1, out.Daily.TradesExecuted)
	assert.True(t, out.Daily.TradeExecuted)
	assert.True(t, out.Daily.Cash.Equal(decimal.NewFromInt(6000)))
	// 40 shares marked at 101
	assert.True(t, out.Daily.CumulativeProfit.Equal(decimal.NewFromInt(40)), out.Daily.CumulativeProfit.String())
	require.Len(t, out.Daily.Lots, 1)

	require.Len(t, out.Orders, 1)
	assert.Len(t, out.Signals, 2)

	// orders are drained once
	assert.Empty(t, e.EndDay(at(391)).Orders)
}

func TestEngine_SkipsOtherSymbols(t *testing.T) {
	e := newEngine(testConfig(), nil)
	e.StartDay(day)
	require.NoError(t, e.OnEvent(context.Background(), event("MSFT", 100, at(0))))
	assert.Equal(t, 0, e.Events())
	assert.Empty(t, e.EndDay(at(390)).Ticks)
}

func TestEngine_CancelStopsBeforeEvaluation(t *testing.T) {
	cancelled := false
	e := newEngine(testConfig(), func() bool { return cancelled })
	e.StartDay(day)

	cancelled = true
	err := e.OnEvent(context.Background(), event("AAPL", 100, at(0)))
	require.ErrorIs(t, err, ErrCancelled)

	out := e.EndDay(at(1))
	assert.Empty(t, out.Ticks)
	assert.Empty(t, out.Orders)
	assert.True(t, e.State().Snapshot().Cash.Equal(decimal.NewFromInt(10000)))
}

func TestEngine_CancelDuringEvaluationDiscardsDecision(t *testing.T) {
	calls := 0
	// false before evaluation, true after
	e := newEngine(testConfig(), func() bool {
		calls++
		return calls > 1
	})
	e.StartDay(day)

	err := e.OnEvent(context.Background(), event("AAPL", 100, at(0)))
	require.ErrorIs(t, err, ErrCancelled)
	assert.Empty(t, e.State().Executor.Orders())
	assert.True(t, e.State().Snapshot().Cash.Equal(decimal.NewFromInt(10000)))
}

func TestEngine_TargetEntryWaitsForPrice(t *testing.T) {
	cfg := testConfig()
	cfg.EntryDiscountPct = 1
	cfg.Risk.MaxDailyTrades = 0
	e := newEngine(cfg, nil)
	e.StartDay(day)
	ctx := context.Background()

	require.NoError(t, e.OnEvent(ctx, event("AAPL", 100, at(0))))
	orders := e.State().Executor.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, domain.OrderStatusWaiting, orders[0].Status)
	assert.True(t, orders[0].TargetPrice.Equal(decimal.NewFromInt(99)))

	// still above target: no second resting order
	require.NoError(t, e.OnEvent(ctx, event("AAPL", 99.5, at(1))))
	require.Len(t, e.State().Executor.Orders(), 1)

	require.NoError(t, e.OnEvent(ctx, event("AAPL", 98.9, at(2))))
	orders = e.State().Executor.Orders()
	assert.Equal(t, domain.OrderStatusDone, orders[0].Status)

	out := e.EndDay(at(390))
	assert.True(t, out.Ticks[2].TradeExecuted)
	for _, o := range e.State().Executor.Orders() {
		assert.True(t, o.Status.IsTerminal(), "order %s left %s", o.ID, o.Status)
	}
}

func TestEngine_EndDayCancelsWaitingTargets(t *testing.T) {
	cfg := testConfig()
	cfg.EntryDiscountPct = 5
	e := newEngine(cfg, nil)
	e.StartDay(day)

	require.NoError(t, e.OnEvent(context.Background(), event("AAPL", 100, at(0))))
	out := e.EndDay(at(390))

	require.Len(t, out.Orders, 1)
	assert.Equal(t, domain.OrderStatusCancelled, out.Orders[0].Status)
	assert.Equal(t, ReasonEndOfDay, out.Orders[0].Reason)
	assert.Equal(t, 0, out.Daily.TradesExecuted)
}

func TestEngine_ReplayFromStores(t *testing.T) {
	e := newEngine(testConfig(), nil)
	e.StartDay(day)

	ticks := []*domain.Tick{
		{Symbol: "AAPL", Timestamp: at(1), Price: 101},
		{Symbol: "AAPL", Timestamp: at(0), Price: 100},
	}
	events := replay.MergeEvents(ticks, nil)
	require.NoError(t, replay.Replay(context.Background(), events, e))

	out := e.EndDay(at(390))
	require.Len(t, out.Ticks, 2)
	assert.True(t, out.Ticks[0].Timestamp.Before(out.Ticks[1].Timestamp))
}
