// Package orchestrator exposes the simulation operations: create, pause,
// resume, cancel, rerun, status, results and single-tick evaluation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stock-bot-lab/internal/botstate"
	"stock-bot-lab/internal/decision"
	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/metrics"
	"stock-bot-lab/internal/observability"
	"stock-bot-lab/internal/replay"
	"stock-bot-lab/internal/signal"
	"stock-bot-lab/internal/simulation"
	"stock-bot-lab/internal/storage"
)

// Manager errors
var (
	ErrRunNotFound  = errors.New("simulation run not found")
	ErrInvalidState = errors.New("operation not allowed in current run state")
)

// DefaultInterval is used when a request names no bar interval.
const DefaultInterval = domain.Interval1Min

// Options for creating a Manager.
type Options struct {
	// Required stores
	BotConfigStore           storage.BotConfigStore
	RunStore                 storage.SimulationRunStore
	BotSimulationConfigStore storage.BotSimulationConfigStore
	DailyResultStore         storage.DailyResultStore
	TickResultStore          storage.TickResultStore
	OrderStore               storage.OrderStore
	TickStore                storage.TickStore
	PriceBarStore            storage.PriceBarStore

	// Optional
	SignalStore storage.SignalArchiveStore
	Sources     signal.Builder
	Collector   *signal.Collector
	Sinks       []simulation.Sink // extra progress sinks, e.g. a status cache

	MaxConcurrentBots int
	HistoryWindow     int
	WriteRetries      int
	Logger            *zap.Logger
	Metrics           *observability.Metrics
}

// Manager owns every active simulation of the process.
type Manager struct {
	bots    storage.BotConfigStore
	runs    storage.SimulationRunStore
	pinned  storage.BotSimulationConfigStore
	replay  *replay.Runner
	runner  *simulation.Runner
	engine  *decision.Engine
	sources signal.Builder
	summary *metrics.Aggregator
	sinks   []simulation.Sink
	window  int
	logger  *zap.Logger
	metrics *observability.Metrics

	// ctx outlives requests; Shutdown cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	active map[string]*simulation.Handle
	wg     sync.WaitGroup
}

// New creates a Manager.
func New(opts Options) *Manager {
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
	window := opts.HistoryWindow
	if window <= 0 {
		window = botstate.DefaultHistoryWindow
	}

	rp := replay.NewRunner(opts.TickStore, opts.PriceBarStore)
	engine := decision.New(decision.Options{Collector: opts.Collector, Logger: logger, Metrics: m})

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		bots:    opts.BotConfigStore,
		runs:    opts.RunStore,
		pinned:  opts.BotSimulationConfigStore,
		replay:  rp,
		engine:  engine,
		sources: sources,
		runner: simulation.NewRunner(simulation.RunnerOptions{
			DailyResultStore:  opts.DailyResultStore,
			TickResultStore:   opts.TickResultStore,
			OrderStore:        opts.OrderStore,
			SignalStore:       opts.SignalStore,
			Replay:            rp,
			Sources:           sources,
			Evaluator:         engine,
			MaxConcurrentBots: opts.MaxConcurrentBots,
			HistoryWindow:     window,
			WriteRetries:      opts.WriteRetries,
			Logger:            logger,
			Metrics:           m,
		}),
		summary: metrics.NewAggregator(opts.BotSimulationConfigStore, opts.DailyResultStore, opts.OrderStore),
		sinks:   append([]simulation.Sink{simulation.NewRunStoreSink(opts.RunStore)}, opts.Sinks...),
		window:  window,
		logger:  logger,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
		active:  make(map[string]*simulation.Handle),
	}
}

// CreateSimulation validates req, pins a new version of every bot config,
// persists the run and starts it. Returns the run id.
//
// Steps:
//  1. Validate the request and build every bot's sources
//  2. Store a new version of each bot config
//  3. Persist the run as pending with its pinned configs
//  4. Start the run in the background
func (m *Manager) CreateSimulation(ctx context.Context, req domain.SimulationRequest) (string, error) {
	// 1. Validate
	if err := req.Validate(); err != nil {
		return "", err
	}
	if err := m.runner.Validate(req.Bots); err != nil {
		return "", err
	}

	// 2. Version configs
	now := time.Now().UTC()
	bots := make([]domain.BotConfig, len(req.Bots))
	for i := range req.Bots {
		cfg := req.Bots[i].Clone()
		cfg.Version = 1
		latest, err := m.bots.GetLatest(ctx, cfg.ID)
		switch {
		case err == nil:
			cfg.Version = latest.Version + 1
		case !errors.Is(err, storage.ErrNotFound):
			return "", fmt.Errorf("load bot %s: %w", cfg.ID, err)
		}
		cfg.CreatedAt = now
		if err := m.bots.Insert(ctx, cfg); err != nil {
			return "", fmt.Errorf("store bot %s: %w", cfg.ID, err)
		}
		bots[i] = *cfg
	}

	// 3-4. Persist and start
	run := m.newRun(req, now)
	if err := m.persist(ctx, run, bots); err != nil {
		return "", err
	}
	if err := m.start(run, bots); err != nil {
		return "", err
	}
	return run.ID, nil
}

// Rerun starts a fresh run with the same date range, universe and pinned bot
// versions as runID. The original run's results are never touched.
func (m *Manager) Rerun(ctx context.Context, runID string) (string, error) {
	orig, err := m.getRun(ctx, runID)
	if err != nil {
		return "", err
	}
	pinned, err := m.pinned.GetByRunID(ctx, runID)
	if err != nil {
		return "", fmt.Errorf("load bot configs: %w", err)
	}
	bots := make([]domain.BotConfig, len(pinned))
	for i, p := range pinned {
		bots[i] = p.Config
	}

	req := domain.SimulationRequest{
		Name:        orig.Name,
		ParentRunID: orig.ID,
		StartDate:   orig.StartDate,
		EndDate:     orig.EndDate,
		Symbols:     orig.Symbols,
		Interval:    orig.Interval,
		Bots:        bots,
	}
	if err := req.Validate(); err != nil {
		return "", err
	}

	run := m.newRun(req, time.Now().UTC())
	if err := m.persist(ctx, run, bots); err != nil {
		return "", err
	}
	if err := m.start(run, bots); err != nil {
		return "", err
	}
	m.logger.Info("simulation rerun", zap.String("run_id", run.ID), zap.String("parent_run_id", runID))
	return run.ID, nil
}

// Pause requests a pause at the next day boundary.
func (m *Manager) Pause(ctx context.Context, runID string) error {
	h, err := m.handle(ctx, runID)
	if err != nil {
		return err
	}
	if err := h.Pause(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	return nil
}

// Resume continues a paused run from its last completed day.
func (m *Manager) Resume(ctx context.Context, runID string) error {
	h, err := m.handle(ctx, runID)
	if err != nil {
		return err
	}
	if err := h.Resume(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	return nil
}

// Cancel stops a run at the next tick boundary.
func (m *Manager) Cancel(ctx context.Context, runID string) error {
	h, err := m.handle(ctx, runID)
	if err != nil {
		return err
	}
	h.Cancel()
	return nil
}

// GetStatus returns the run's latest progress snapshot.
func (m *Manager) GetStatus(ctx context.Context, runID string) (domain.RunProgress, error) {
	m.mu.Lock()
	h, ok := m.active[runID]
	m.mu.Unlock()
	if ok {
		return h.Progress(), nil
	}
	run, err := m.getRun(ctx, runID)
	if err != nil {
		return domain.RunProgress{}, err
	}
	return run.ProgressSnapshot(), nil
}

// Results is the outcome of a run.
type Results struct {
	Run  *domain.SimulationRun `json:"run"`
	Bots []domain.BotSummary   `json:"bots"`
}

// GetResults returns per-bot summaries. Results of a run still in progress
// cover the days completed so far.
func (m *Manager) GetResults(ctx context.Context, runID string) (*Results, error) {
	run, err := m.getRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	bots, err := m.summary.Summaries(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &Results{Run: run, Bots: bots}, nil
}

// ListRuns returns up to limit runs, newest first.
func (m *Manager) ListRuns(ctx context.Context, limit int) ([]*domain.SimulationRun, error) {
	return m.runs.List(ctx, limit)
}

// Subscribe streams progress of an active run.
func (m *Manager) Subscribe(ctx context.Context, runID string) (<-chan domain.RunProgress, func(), error) {
	h, err := m.handle(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	ch, stop := h.Subscribe()
	return ch, stop, nil
}

// Wait blocks until an active run finishes. Finished runs return immediately.
func (m *Manager) Wait(ctx context.Context, runID string) error {
	m.mu.Lock()
	h, ok := m.active[runID]
	m.mu.Unlock()
	if !ok {
		_, err := m.getRun(ctx, runID)
		return err
	}
	err := h.Wait(ctx)
	if errors.Is(err, simulation.ErrCancelled) {
		return nil
	}
	return err
}

// Evaluate produces a single decision for cfg on tick, with indicator
// history warmed from stored bars of interval (DefaultInterval when empty).
// It does not execute anything.
func (m *Manager) Evaluate(ctx context.Context, cfg domain.BotConfig, tick domain.Tick, interval string) (domain.Evaluation, error) {
	if interval == "" {
		interval = DefaultInterval
	}
	if err := cfg.Validate(); err != nil {
		return domain.Evaluation{}, err
	}
	sources, err := m.sources.Build(cfg)
	if err != nil {
		return domain.Evaluation{}, err
	}
	st := botstate.New(botstate.Options{
		Owner:         "evaluate",
		Config:        cfg,
		Sources:       sources,
		HistoryWindow: m.window,
		Logger:        m.logger,
		Metrics:       m.metrics,
	})

	history, err := m.replay.History(ctx, []string{tick.Symbol}, interval, tick.Timestamp, simulation.DefaultWarmupLookback, m.window)
	if err != nil {
		return domain.Evaluation{}, err
	}
	st.Warm(history)

	return m.engine.Evaluate(ctx, st, domain.BarFromTick(tick, interval)), nil
}

// Shutdown cancels every active run and waits for them to stop.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	for _, h := range m.active {
		h.Cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.cancel()
		return nil
	case <-ctx.Done():
		m.cancel()
		return ctx.Err()
	}
}

func (m *Manager) newRun(req domain.SimulationRequest, now time.Time) *domain.SimulationRun {
	interval := req.Interval
	if interval == "" {
		interval = DefaultInterval
	}
	return &domain.SimulationRun{
		ID:          uuid.NewString(),
		ParentRunID: req.ParentRunID,
		Name:        req.Name,
		Status:      domain.RunStatusPending,
		StartDate:   domain.DayStart(req.StartDate),
		EndDate:     domain.DayStart(req.EndDate),
		Symbols:     req.Universe(),
		Interval:    interval,
		TotalDays:   len(domain.TradingDays(req.StartDate, req.EndDate)),
		TotalBots:   len(req.Bots),
		CreatedAt:   now,
	}
}

func (m *Manager) persist(ctx context.Context, run *domain.SimulationRun, bots []domain.BotConfig) error {
	if err := m.runs.Insert(ctx, run); err != nil {
		return fmt.Errorf("store run: %w", err)
	}
	pinned := make([]*domain.BotSimulationConfig, len(bots))
	for i, b := range bots {
		pinned[i] = &domain.BotSimulationConfig{
			RunID:      run.ID,
			BotID:      b.ID,
			BotVersion: b.Version,
			Config:     b,
		}
	}
	if err := m.pinned.InsertBulk(ctx, pinned); err != nil {
		return fmt.Errorf("store bot configs: %w", err)
	}
	return nil
}

func (m *Manager) start(run *domain.SimulationRun, bots []domain.BotConfig) error {
	h, err := m.runner.Start(m.ctx, run, bots, m.sinks...)
	if err != nil {
		run.Status = domain.RunStatusFailed
		run.ErrorMessage = err.Error()
		if uerr := m.runs.Update(context.Background(), run); uerr != nil {
			m.logger.Warn("mark run failed", zap.String("run_id", run.ID), zap.Error(uerr))
		}
		return err
	}

	m.mu.Lock()
	m.active[run.ID] = h
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		<-h.Done()
		m.mu.Lock()
		delete(m.active, run.ID)
		m.mu.Unlock()
	}()
	return nil
}

// handle returns the active handle, or the error explaining why there is none.
func (m *Manager) handle(ctx context.Context, runID string) (*simulation.Handle, error) {
	m.mu.Lock()
	h, ok := m.active[runID]
	m.mu.Unlock()
	if ok {
		select {
		case <-h.Done():
		default:
			return h, nil
		}
	}
	run, err := m.getRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: run %s is %s", ErrInvalidState, runID, run.Status)
}

func (m *Manager) getRun(ctx context.Context, runID string) (*domain.SimulationRun, error) {
	run, err := m.runs.GetByID(ctx, runID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}
