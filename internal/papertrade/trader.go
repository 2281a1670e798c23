// Package papertrade evaluates bots against the latest stored market data on
// a schedule, executing their decisions on in-memory paper ledgers.
package papertrade

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"stock-bot-lab/internal/backtest"
	"stock-bot-lab/internal/botstate"
	"stock-bot-lab/internal/decision"
	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/observability"
	"stock-bot-lab/internal/replay"
	"stock-bot-lab/internal/signal"
	"stock-bot-lab/internal/storage"
)

// ScopePrefix prefixes the run id under which paper results are recorded.
const ScopePrefix = "paper-"

// DefaultWarmupLookback bounds the history loaded on the first step.
const DefaultWarmupLookback = 30 * 24 * time.Hour

// Options configures a Trader.
type Options struct {
	Bots          []domain.BotConfig
	Interval      string
	PriceBarStore storage.PriceBarStore

	// Optional
	TickResultStore storage.TickResultStore // persists every paper evaluation
	Sources         signal.Builder
	Evaluator       backtest.Evaluator
	HistoryWindow   int
	Now             func() time.Time
	Logger          *zap.Logger
	Metrics         *observability.Metrics
}

type paperBot struct {
	runID  string
	engine *backtest.Engine
}

// Trader owns one persistent paper state per bot.
type Trader struct {
	bars     storage.PriceBarStore
	results  storage.TickResultStore
	history  *replay.Runner
	interval string
	window   int
	now      func() time.Time
	logger   *zap.Logger
	metrics  *observability.Metrics

	mu       sync.Mutex
	bots     []*paperBot
	symbols  []string
	lastSeen map[string]time.Time
	day      time.Time
	warmed   bool
}

// New validates the bots, builds their sources and returns a Trader.
func New(opts Options) (*Trader, error) {
	if len(opts.Bots) == 0 {
		return nil, fmt.Errorf("%w: paper trading needs at least one bot", domain.ErrInvalidConfig)
	}
	if opts.PriceBarStore == nil {
		return nil, errors.New("paper trading needs a price bar store")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := opts.Metrics
	if m == nil {
		m = observability.DefaultMetrics
	}
	sources := opts.Sources
	if sources == nil {
		sources = signal.NewFactory(signal.FactoryOptions{})
	}
	evaluator := opts.Evaluator
	if evaluator == nil {
		evaluator = decision.New(decision.Options{Logger: logger, Metrics: m})
	}
	interval := opts.Interval
	if interval == "" {
		interval = domain.Interval1Min
	}
	window := opts.HistoryWindow
	if window <= 0 {
		window = botstate.DefaultHistoryWindow
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	t := &Trader{
		bars:     opts.PriceBarStore,
		results:  opts.TickResultStore,
		history:  replay.NewRunner(nil, opts.PriceBarStore),
		interval: interval,
		window:   window,
		now:      now,
		logger:   logger,
		metrics:  m,
		lastSeen: make(map[string]time.Time),
	}

	universe := make(map[string]struct{})
	seen := make(map[string]struct{})
	for i := range opts.Bots {
		cfg := opts.Bots[i]
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[cfg.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate bot %s", domain.ErrInvalidConfig, cfg.ID)
		}
		seen[cfg.ID] = struct{}{}

		srcs, err := sources.Build(cfg)
		if err != nil {
			return nil, err
		}
		runID := ScopePrefix + cfg.ID
		st := botstate.New(botstate.Options{
			Owner:         runID,
			Config:        cfg,
			Sources:       srcs,
			HistoryWindow: window,
			Logger:        logger,
			Metrics:       m,
		})
		t.bots = append(t.bots, &paperBot{
			runID: runID,
			engine: backtest.NewEngine(backtest.Options{
				RunID:     runID,
				State:     st,
				Evaluator: evaluator,
				Logger:    logger,
				Metrics:   m,
			}),
		})
		for _, s := range cfg.Symbols {
			universe[s] = struct{}{}
		}
	}
	for s := range universe {
		t.symbols = append(t.symbols, s)
	}
	sort.Strings(t.symbols)
	return t, nil
}

// Step evaluates every bot on each symbol's newest bar not seen before.
// Returns the number of bars processed.
//
// Steps:
//  1. Warm indicator history on the first call
//  2. Load the latest bar per symbol, skipping ones already processed
//  3. Roll the trading day when the bars moved past it
//  4. Feed the bars to every bot in deterministic order
//  5. Persist the resulting tick results
func (t *Trader) Step(ctx context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()

	// 1. Warm
	if !t.warmed {
		history, err := t.history.History(ctx, t.symbols, t.interval, now, DefaultWarmupLookback, t.window)
		if err != nil {
			return 0, err
		}
		for _, b := range t.bots {
			b.engine.State().Warm(history)
		}
		for _, bar := range history {
			if bar.Timestamp.After(t.lastSeen[bar.Symbol]) {
				t.lastSeen[bar.Symbol] = bar.Timestamp
			}
		}
		t.warmed = true
	}

	// 2. Latest bars
	var events []*replay.Event
	for _, symbol := range t.symbols {
		bar, err := t.bars.GetLatest(ctx, symbol, t.interval, now)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("latest bar %s: %w", symbol, err)
		}
		if !bar.Timestamp.After(t.lastSeen[symbol]) {
			continue
		}
		t.lastSeen[symbol] = bar.Timestamp
		events = append(events, &replay.Event{
			Type:      replay.EventTypeBar,
			Symbol:    symbol,
			Timestamp: bar.Timestamp,
			Bar:       *bar,
		})
	}
	if len(events) == 0 {
		return 0, nil
	}
	replay.SortEvents(events)

	for _, ev := range events {
		// 3. Day boundary
		if day := domain.DayStart(ev.Timestamp); !day.Equal(t.day) {
			t.rollDay(ctx, day, ev.Timestamp)
		}

		// 4. Evaluate
		for _, b := range t.bots {
			if err := b.engine.OnEvent(ctx, ev); err != nil {
				return 0, err
			}
			// 5. Persist
			t.persist(ctx, b, b.engine.Flush())
		}
	}
	return len(events), nil
}

// rollDay closes the current day for every bot and starts the next one.
func (t *Trader) rollDay(ctx context.Context, day, at time.Time) {
	if !t.day.IsZero() {
		for _, b := range t.bots {
			out := b.engine.EndDay(at)
			t.persist(ctx, b, out.Ticks)
			t.logger.Info("paper day closed",
				zap.String("bot_id", b.engine.State().Config.ID),
				zap.Time("day", t.day),
				zap.String("equity", out.Daily.Equity.StringFixed(2)),
				zap.Int("trades", out.Daily.TradesExecuted),
			)
		}
	}
	t.day = day
	for _, b := range t.bots {
		b.engine.StartDay(day)
	}
}

func (t *Trader) persist(ctx context.Context, b *paperBot, ticks []*domain.TickResult) {
	for _, tr := range ticks {
		t.metrics.RecordPaperEvaluation(string(tr.Action))
	}
	if t.results == nil || len(ticks) == 0 {
		return
	}
	err := t.results.InsertBulk(ctx, ticks)
	if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		t.logger.Warn("paper tick results not stored", zap.String("run_id", b.runID), zap.Error(err))
	}
}

// Snapshots returns the current ledger state of every bot, keyed by bot id.
func (t *Trader) Snapshots() map[string]domain.LedgerSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]domain.LedgerSnapshot, len(t.bots))
	for _, b := range t.bots {
		st := b.engine.State()
		out[st.Config.ID] = st.Snapshot()
	}
	return out
}

// Schedule registers Step on s under spec. Failures are logged.
func (t *Trader) Schedule(s *Scheduler, spec string) error {
	_, err := s.Add(spec, func(ctx context.Context) {
		n, err := t.Step(ctx)
		if err != nil {
			t.logger.Warn("paper trading step failed", zap.Error(err))
			return
		}
		if n > 0 {
			t.logger.Debug("paper trading step", zap.Int("bars", n))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule paper trading %q: %w", spec, err)
	}
	return nil
}
