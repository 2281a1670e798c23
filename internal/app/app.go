// Package app wires configuration into stores, signal sources and the
// simulation manager. Binaries share it so they build identical stacks.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"stock-bot-lab/internal/config"
	"stock-bot-lab/internal/observability"
	"stock-bot-lab/internal/orchestrator"
	"stock-bot-lab/internal/reporting"
	"stock-bot-lab/internal/signal"
	"stock-bot-lab/internal/simulation"
	"stock-bot-lab/internal/storage"
	chstore "stock-bot-lab/internal/storage/clickhouse"
	"stock-bot-lab/internal/storage/memory"
	"stock-bot-lab/internal/storage/migrations"
	pgstore "stock-bot-lab/internal/storage/postgres"
)

// Stores holds every storage implementation.
type Stores struct {
	BotConfigs  storage.BotConfigStore
	Runs        storage.SimulationRunStore
	Pinned      storage.BotSimulationConfigStore
	Daily       storage.DailyResultStore
	TickResults storage.TickResultStore
	Orders      storage.OrderStore
	Ticks       storage.TickStore
	Bars        storage.PriceBarStore
	Signals     storage.SignalArchiveStore

	// Set when backed by databases
	Postgres   *pgstore.Pool
	ClickHouse *chstore.Conn
}

// MemoryStores returns empty in-memory stores.
func MemoryStores() *Stores {
	return &Stores{
		BotConfigs:  memory.NewBotConfigStore(),
		Runs:        memory.NewSimulationRunStore(),
		Pinned:      memory.NewBotSimulationConfigStore(),
		Daily:       memory.NewDailyResultStore(),
		TickResults: memory.NewTickResultStore(),
		Orders:      memory.NewOrderStore(),
		Ticks:       memory.NewTickStore(),
		Bars:        memory.NewPriceBarStore(),
		Signals:     memory.NewSignalArchiveStore(),
	}
}

// OpenStores connects to PostgreSQL (configs, runs, results) and ClickHouse
// (market data, tick results, signals), applying migrations first. With
// storage.use_memory it returns MemoryStores. The returned func closes
// every connection.
func OpenStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Stores, func(), error) {
	if cfg.Storage.UseMemory {
		logger.Info("using in-memory storage")
		return MemoryStores(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouse.DSN, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}
	logger.Info("storage ready", zap.String("postgres", "connected"), zap.String("clickhouse", "connected"))

	s := &Stores{
		BotConfigs:  pgstore.NewBotConfigStore(pool),
		Runs:        pgstore.NewSimulationRunStore(pool),
		Pinned:      pgstore.NewBotSimulationConfigStore(pool),
		Daily:       pgstore.NewDailyResultStore(pool),
		Orders:      pgstore.NewOrderStore(pool),
		TickResults: chstore.NewTickResultStore(conn),
		Ticks:       chstore.NewTickStore(conn),
		Bars:        chstore.NewPriceBarStore(conn),
		Signals:     chstore.NewSignalArchiveStore(conn),
		Postgres:    pool,
		ClickHouse:  conn,
	}
	cleanup := func() {
		pool.Close()
		if err := conn.Close(); err != nil {
			logger.Warn("close clickhouse", zap.Error(err))
		}
	}
	return s, cleanup, nil
}

// SourceBuilder builds signal sources with the configured prediction client.
func SourceBuilder(cfg config.Config) *signal.Factory {
	client := signal.NewPredictionClient(
		signal.WithTimeout(cfg.Prediction.Timeout),
		signal.WithMaxRetries(cfg.Prediction.MaxRetries),
		signal.WithRetryDelay(cfg.Prediction.RetryDelay),
	)
	return signal.NewFactory(signal.FactoryOptions{
		PredictionBaseURL: cfg.Prediction.BaseURL,
		Client:            client,
	})
}

// NewManager builds the simulation manager over s.
func NewManager(cfg config.Config, s *Stores, logger *zap.Logger, m *observability.Metrics, sinks ...simulation.Sink) *orchestrator.Manager {
	opts := orchestrator.Options{
		BotConfigStore:           s.BotConfigs,
		RunStore:                 s.Runs,
		BotSimulationConfigStore: s.Pinned,
		DailyResultStore:         s.Daily,
		TickResultStore:          s.TickResults,
		OrderStore:               s.Orders,
		TickStore:                s.Ticks,
		PriceBarStore:            s.Bars,
		Sources:                  SourceBuilder(cfg),
		Collector: signal.NewCollector(signal.CollectorOptions{
			Timeout: cfg.Simulation.SourceTimeout,
			Logger:  logger,
			Metrics: m,
		}),
		Sinks:             sinks,
		MaxConcurrentBots: cfg.Simulation.MaxConcurrentBots,
		HistoryWindow:     cfg.Simulation.HistoryWindow,
		WriteRetries:      cfg.Simulation.ResultWriteRetries,
		Logger:            logger,
		Metrics:           m,
	}
	if cfg.Simulation.ArchiveSignals {
		opts.SignalStore = s.Signals
	}
	return orchestrator.New(opts)
}

// NewReports builds the report generator over s.
func NewReports(s *Stores) *reporting.Generator {
	return reporting.NewGenerator(s.Runs, s.Pinned, s.Daily, s.Orders)
}
