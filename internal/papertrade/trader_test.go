package papertrade

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/signal"
	"stock-bot-lab/internal/storage"
	"stock-bot-lab/internal/storage/memory"
)

var open = time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)

type builderFunc func(cfg domain.BotConfig) ([]signal.Source, error)

func (f builderFunc) Build(cfg domain.BotConfig) ([]signal.Source, error) { return f(cfg) }

func bullish() signal.Builder {
	return builderFunc(func(cfg domain.BotConfig) ([]signal.Source, error) {
		return []signal.Source{signal.NewFuncSource("ind", domain.SourceKindIndicator,
			func(ctx context.Context, in signal.Input) (*domain.SignalSnapshot, error) {
				return &domain.SignalSnapshot{Direction: domain.DirectionBullish, Confidence: 0.8}, nil
			})}, nil
	})
}

func testBot(id string) domain.BotConfig {
	return domain.BotConfig{
		ID:      id,
		Name:    id,
		Symbols: []string{"AAPL"},
		Budget:  domain.Budget{Cash: decimal.NewFromInt(10000)},
		Risk: domain.RiskParams{
			RiskPerTradePct: 1,
			StopLossPct:     10,
			MaxDailyTrades:  5,
		},
		Sources:            []domain.SourceConfig{{ID: "ind", Kind: domain.SourceKindIndicator, Enabled: true, Weight: 1}},
		Aggregation:        domain.WeightedAverage{},
		RiskScoreThreshold: 100,
	}
}

func bar(ts time.Time, price float64) *domain.Bar {
	return &domain.Bar{
		Symbol: "AAPL", Interval: domain.Interval1Min, Timestamp: ts,
		Open: price, High: price, Low: price, Close: price, Volume: 1000,
	}
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTrader(t *testing.T, bars storage.PriceBarStore, results storage.TickResultStore, c *clock) *Trader {
	t.Helper()
	tr, err := New(Options{
		Bots:            []domain.BotConfig{testBot("a"), testBot("b")},
		PriceBarStore:   bars,
		TickResultStore: results,
		Sources:         bullish(),
		Now:             c.now,
	})
	require.NoError(t, err)
	return tr
}

func TestTrader_StepProcessesOnlyNewBars(t *testing.T) {
	ctx := context.Background()
	bars := memory.NewPriceBarStore()
	results := memory.NewTickResultStore()
	require.NoError(t, bars.InsertBulk(ctx, []*domain.Bar{
		bar(open, 100), bar(open.Add(time.Minute), 101), bar(open.Add(2*time.Minute), 102),
	}))

	c := &clock{t: open.Add(2*time.Minute + 30*time.Second)}
	tr := newTrader(t, bars, results, c)

	// history up to now only warms indicators
	n, err := tr.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, bars.InsertBulk(ctx, []*domain.Bar{bar(open.Add(3*time.Minute), 103)}))
	c.t = open.Add(3*time.Minute + 30*time.Second)

	n, err = tr.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = tr.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "same bar is not evaluated twice")

	for _, id := range []string{"a", "b"} {
		got, err := results.GetByRunBot(ctx, ScopePrefix+id, id)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, open.Add(3*time.Minute), got[0].Timestamp)
		assert.Equal(t, 103.0, got[0].Price)
	}

	snaps := tr.Snapshots()
	require.Len(t, snaps, 2)
	assert.True(t, snaps["a"].Equity.IsPositive())
}

func TestTrader_StepRollsTradingDay(t *testing.T) {
	ctx := context.Background()
	bars := memory.NewPriceBarStore()
	results := memory.NewTickResultStore()
	c := &clock{t: open.Add(-time.Hour)}
	tr := newTrader(t, bars, results, c)

	_, err := tr.Step(ctx)
	require.NoError(t, err)

	require.NoError(t, bars.InsertBulk(ctx, []*domain.Bar{bar(open, 100)}))
	c.t = open.Add(time.Minute)
	n, err := tr.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	next := open.AddDate(0, 0, 1)
	require.NoError(t, bars.InsertBulk(ctx, []*domain.Bar{bar(next, 105)}))
	c.t = next.Add(time.Minute)
	n, err = tr.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := results.GetByRunBot(ctx, ScopePrefix+"a", "a")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, domain.DayStart(next), tr.day)
}

func TestNew_Rejects(t *testing.T) {
	bars := memory.NewPriceBarStore()

	_, err := New(Options{PriceBarStore: bars})
	assert.True(t, errors.Is(err, domain.ErrInvalidConfig))

	_, err = New(Options{Bots: []domain.BotConfig{testBot("a"), testBot("a")}, PriceBarStore: bars, Sources: bullish()})
	assert.True(t, errors.Is(err, domain.ErrInvalidConfig))

	invalid := testBot("x")
	invalid.Symbols = nil
	_, err = New(Options{Bots: []domain.BotConfig{invalid}, PriceBarStore: bars, Sources: bullish()})
	assert.True(t, errors.Is(err, domain.ErrInvalidConfig))

	_, err = New(Options{Bots: []domain.BotConfig{testBot("a")}})
	assert.Error(t, err)
}

func TestTrader_Schedule(t *testing.T) {
	bars := memory.NewPriceBarStore()
	tr := newTrader(t, bars, nil, &clock{t: open})

	s := NewScheduler(nil, context.Background())
	assert.Error(t, tr.Schedule(s, "not a cron spec"))
	require.NoError(t, tr.Schedule(s, "* * * * * *"))
}

func TestScheduler_RunsJobs(t *testing.T) {
	var calls atomic.Int32
	s := NewScheduler(nil, context.Background())
	_, err := s.Add("* * * * * *", func(ctx context.Context) { calls.Add(1) })
	require.NoError(t, err)

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
}
