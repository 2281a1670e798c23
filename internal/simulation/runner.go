// Package simulation drives many bots through historical market data, one
// trading day at a time.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stock-bot-lab/internal/backtest"
	"stock-bot-lab/internal/botstate"
	"stock-bot-lab/internal/decision"
	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/lookup"
	"stock-bot-lab/internal/observability"
	"stock-bot-lab/internal/replay"
	"stock-bot-lab/internal/signal"
	"stock-bot-lab/internal/storage"
)

// Runner errors
var (
	ErrCancelled   = backtest.ErrCancelled
	ErrNoPriceData = errors.New("no price data for the simulated range")
)

// Defaults
const (
	DefaultMaxConcurrentBots = 4
	DefaultWriteRetries      = 3
	DefaultWarmupLookback    = 30 * 24 * time.Hour
)

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	DailyResultStore  storage.DailyResultStore
	TickResultStore   storage.TickResultStore
	OrderStore        storage.OrderStore
	SignalStore       storage.SignalArchiveStore // optional; archives snapshots when set
	Replay            *replay.Runner
	Sources           signal.Builder
	Evaluator         backtest.Evaluator
	MaxConcurrentBots int
	HistoryWindow     int
	WarmupLookback    time.Duration
	WriteRetries      int
	RetryDelay        time.Duration
	Logger            *zap.Logger
	Metrics           *observability.Metrics
}

// Runner executes simulation runs.
type Runner struct {
	dailyResults storage.DailyResultStore
	tickResults  storage.TickResultStore
	orders       storage.OrderStore
	signals      storage.SignalArchiveStore
	replay       *replay.Runner
	sources      signal.Builder
	evaluator    backtest.Evaluator
	maxBots      int
	window       int
	lookback     time.Duration
	retries      int
	retryDelay   time.Duration
	logger       *zap.Logger
	metrics      *observability.Metrics
}

// NewRunner creates a simulation runner.
func NewRunner(opts RunnerOptions) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := opts.Metrics
	if m == nil {
		m = observability.DefaultMetrics
	}
	r := &Runner{
		dailyResults: opts.DailyResultStore,
		tickResults:  opts.TickResultStore,
		orders:       opts.OrderStore,
		signals:      opts.SignalStore,
		replay:       opts.Replay,
		sources:      opts.Sources,
		evaluator:    opts.Evaluator,
		maxBots:      opts.MaxConcurrentBots,
		window:       opts.HistoryWindow,
		lookback:     opts.WarmupLookback,
		retries:      opts.WriteRetries,
		retryDelay:   opts.RetryDelay,
		logger:       logger,
		metrics:      m,
	}
	if r.sources == nil {
		r.sources = signal.NewFactory(signal.FactoryOptions{})
	}
	if r.evaluator == nil {
		r.evaluator = decision.New(decision.Options{Logger: logger, Metrics: m})
	}
	if r.maxBots <= 0 {
		r.maxBots = DefaultMaxConcurrentBots
	}
	if r.window <= 0 {
		r.window = botstate.DefaultHistoryWindow
	}
	if r.lookback <= 0 {
		r.lookback = DefaultWarmupLookback
	}
	if r.retries <= 0 {
		r.retries = DefaultWriteRetries
	}
	if r.retryDelay <= 0 {
		r.retryDelay = 50 * time.Millisecond
	}
	return r
}

// Validate builds every bot's sources without starting anything.
func (r *Runner) Validate(bots []domain.BotConfig) error {
	for _, cfg := range bots {
		if _, err := r.sources.Build(cfg); err != nil {
			return err
		}
	}
	return nil
}

// Start launches run in the background and returns its handle.
// Sources are built before returning, so configuration errors reject the run
// before it reaches running.
func (r *Runner) Start(ctx context.Context, run *domain.SimulationRun, bots []domain.BotConfig, sinks ...Sink) (*Handle, error) {
	engines := make([]*backtest.Engine, 0, len(bots))
	days := domain.TradingDays(run.StartDate, run.EndDate)
	if len(days) == 0 {
		return nil, fmt.Errorf("%w: date range contains no trading days", domain.ErrInvalidConfig)
	}

	initial := run.ProgressSnapshot()
	initial.TotalDays = len(days)
	initial.TotalBots = len(bots)
	progress := NewProgressAggregator(initial, r.logger, r.metrics, sinks...)
	h := newHandle(run.ID, progress)

	for _, cfg := range bots {
		sources, err := r.sources.Build(cfg)
		if err != nil {
			progress.Close()
			return nil, err
		}
		st := botstate.New(botstate.Options{
			Owner:         run.ID,
			Config:        cfg,
			Sources:       sources,
			HistoryWindow: r.window,
			Logger:        r.logger,
			Metrics:       r.metrics,
		})
		engines = append(engines, backtest.NewEngine(backtest.Options{
			RunID:          run.ID,
			State:          st,
			Evaluator:      r.evaluator,
			Cancelled:      h.Cancelled,
			ArchiveSignals: r.signals != nil,
			Logger:         r.logger,
			Metrics:        r.metrics,
		}))
	}

	go func() {
		err := r.run(ctx, h, run, days, engines)
		progress.Close()
		h.finish(err)
	}()
	return h, nil
}

// run is the supervising loop of one simulation.
//
// Steps:
//  1. Warm indicator history from bars preceding the first day
//  2. For each trading day: honor cancel and pause, load the day's events once
//  3. Replay the day for every bot in a bounded pool; write results
//  4. Fail when any symbol had no data on every day
func (r *Runner) run(ctx context.Context, h *Handle, run *domain.SimulationRun, days []time.Time, engines []*backtest.Engine) error {
	logger := r.logger.With(zap.String("run_id", run.ID))
	progress := h.progress

	r.metrics.RecordRunStarted()
	progress.status(domain.RunStatusRunning, "")
	logger.Info("simulation started",
		zap.Int("bots", len(engines)),
		zap.Int("days", len(days)),
		zap.Strings("symbols", run.Symbols),
	)

	finish := func(status domain.RunStatus, err error) error {
		msg := ""
		if err != nil && status == domain.RunStatusFailed {
			msg = err.Error()
		}
		progress.status(status, msg)
		r.metrics.RecordRunFinished(run.ID, string(status))
		switch status {
		case domain.RunStatusFailed:
			logger.Error("simulation failed", zap.Error(err))
		default:
			logger.Info("simulation finished", zap.String("status", string(status)))
		}
		return err
	}

	// 1. Warm-up
	if err := r.warm(ctx, run, engines); err != nil {
		return finish(domain.RunStatusFailed, err)
	}

	seen := make(map[string]struct{}, len(run.Symbols))
	for _, day := range days {
		// 2. Boundaries
		if h.Cancelled() {
			return finish(domain.RunStatusCancelled, ErrCancelled)
		}
		if resume, paused := h.pauseRequested(); paused {
			progress.status(domain.RunStatusPaused, "")
			logger.Info("simulation paused", zap.Time("day", day))
			select {
			case <-resume:
			case <-ctx.Done():
				return finish(domain.RunStatusFailed, ctx.Err())
			}
			if h.Cancelled() {
				return finish(domain.RunStatusCancelled, ErrCancelled)
			}
			progress.status(domain.RunStatusRunning, "")
			logger.Info("simulation resumed", zap.Time("day", day))
		}

		progress.dayStarted(day)
		started := time.Now()

		events, err := r.replay.LoadDay(ctx, run.Symbols, run.Interval, day)
		if err != nil {
			return finish(domain.RunStatusFailed, fmt.Errorf("load %s: %w", day.Format(time.DateOnly), err))
		}
		if len(events) == 0 {
			logger.Warn("no price data for day", zap.Time("day", day))
		}
		for _, ev := range events {
			seen[ev.Symbol] = struct{}{}
		}

		// 3. Bots
		err = r.runDay(ctx, h, day, events, engines)
		r.metrics.RecordDayDuration(time.Since(started).Seconds())
		if h.Cancelled() || errors.Is(err, ErrCancelled) {
			return finish(domain.RunStatusCancelled, ErrCancelled)
		}
		if err != nil {
			return finish(domain.RunStatusFailed, err)
		}
		progress.dayDone(day)
	}

	// 4. Data availability
	var missing []string
	for _, symbol := range run.Symbols {
		if _, ok := seen[symbol]; !ok {
			missing = append(missing, symbol)
		}
	}
	if len(missing) > 0 {
		return finish(domain.RunStatusFailed, fmt.Errorf("%w: %v between %s and %s", ErrNoPriceData,
			missing, run.StartDate.Format(time.DateOnly), run.EndDate.Format(time.DateOnly)))
	}
	return finish(domain.RunStatusCompleted, nil)
}

// warm preloads history before the first day and marks initial positions.
func (r *Runner) warm(ctx context.Context, run *domain.SimulationRun, engines []*backtest.Engine) error {
	start := domain.DayStart(run.StartDate)
	bars, err := r.replay.History(ctx, run.Symbols, run.Interval, start, r.lookback, r.window)
	if err != nil {
		return err
	}
	if len(bars) == 0 {
		return nil
	}
	closes := lookup.LastClose(start, bars)
	for _, e := range engines {
		st := e.State()
		var own []domain.Bar
		for _, b := range bars {
			if st.Config.TradesSymbol(b.Symbol) {
				own = append(own, b)
			}
		}
		st.Warm(own)
		for symbol, price := range closes {
			if st.Config.TradesSymbol(symbol) {
				st.Mark(symbol, price)
			}
		}
	}
	return nil
}

// runDay replays one day for every bot. Bots share the read-only event slice.
func (r *Runner) runDay(ctx context.Context, h *Handle, day time.Time, events []*replay.Event, engines []*backtest.Engine) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxBots)

	closeAt := day.Add(24*time.Hour - time.Nanosecond)
	if n := len(events); n > 0 {
		closeAt = events[n-1].Timestamp
	}

	for _, e := range engines {
		g.Go(func() error {
			e.StartDay(day)
			replayErr := replay.Replay(gctx, events, e)
			interrupted := errors.Is(replayErr, ErrCancelled) || errors.Is(replayErr, context.Canceled)
			if replayErr != nil && !interrupted {
				return replayErr
			}

			out := e.EndDay(closeAt)
			if interrupted {
				// a partial day has no daily result
				out.Daily = nil
			}
			// committed results survive cancellation
			if err := r.write(context.WithoutCancel(ctx), out); err != nil {
				return err
			}
			if interrupted {
				if h.Cancelled() {
					return ErrCancelled
				}
				return replayErr
			}
			h.progress.botDone(day)
			return nil
		})
	}
	return g.Wait()
}

// write persists one bot-day. Writes are keyed by composite ids, so a
// duplicate means an earlier attempt already committed.
func (r *Runner) write(ctx context.Context, out backtest.DayOutput) error {
	if len(out.Ticks) > 0 && r.tickResults != nil {
		if err := r.retry(ctx, "tick_results", func() error { return r.tickResults.InsertBulk(ctx, out.Ticks) }); err != nil {
			return err
		}
	}
	if len(out.Orders) > 0 && r.orders != nil {
		if err := r.retry(ctx, "orders", func() error { return r.orders.InsertBulk(ctx, out.Orders) }); err != nil {
			return err
		}
	}
	if len(out.Signals) > 0 && r.signals != nil {
		if err := r.retry(ctx, "signal_snapshots", func() error { return r.signals.InsertBulk(ctx, out.Signals) }); err != nil {
			return err
		}
	}
	if out.Daily != nil && r.dailyResults != nil {
		if err := r.retry(ctx, "daily_results", func() error { return r.dailyResults.Insert(ctx, out.Daily) }); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) retry(ctx context.Context, record string, fn func() error) error {
	delay := r.retryDelay
	var err error
	for attempt := 0; attempt <= r.retries; attempt++ {
		start := time.Now()
		err = fn()
		if err == nil || errors.Is(err, storage.ErrDuplicateKey) {
			r.metrics.RecordDBQuery(storeFor(record), "insert", time.Since(start).Seconds(), nil)
			return nil
		}
		r.metrics.RecordDBQuery(storeFor(record), "insert", time.Since(start).Seconds(), err)
		if errors.Is(err, storage.ErrInvalidInput) {
			break
		}
		r.logger.Warn("result write failed",
			zap.String("record", record),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		if attempt == r.retries {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	r.metrics.RecordResultWriteError(record)
	return fmt.Errorf("write %s: %w", record, err)
}

// storeFor names the backing store of a record kind for query metrics.
func storeFor(record string) string {
	switch record {
	case "tick_results", "signal_snapshots":
		return "clickhouse"
	default:
		return "postgres"
	}
}
