package storage

import (
	"context"
	"time"

	"stock-bot-lab/internal/domain"
)

// BotConfigStore provides access to bot_configs storage.
// Configs are versioned and immutable: a new version is a new row.
type BotConfigStore interface {
	// Insert adds a config version. Returns ErrDuplicateKey if (id, version) exists.
	Insert(ctx context.Context, c *domain.BotConfig) error

	// Get retrieves a specific version. Returns ErrNotFound if not exists.
	Get(ctx context.Context, id string, version int) (*domain.BotConfig, error)

	// GetLatest retrieves the highest version of a bot. Returns ErrNotFound if not exists.
	GetLatest(ctx context.Context, id string) (*domain.BotConfig, error)
}

// SimulationRunStore provides access to simulation_runs storage.
// Unlike result stores, runs are mutable: status and progress change over time.
type SimulationRunStore interface {
	// Insert adds a new run. Returns ErrDuplicateKey if id exists.
	Insert(ctx context.Context, r *domain.SimulationRun) error

	// Update overwrites a run. Returns ErrNotFound if not exists.
	Update(ctx context.Context, r *domain.SimulationRun) error

	// GetByID retrieves a run. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.SimulationRun, error)

	// List returns up to limit runs, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]*domain.SimulationRun, error)
}

// BotSimulationConfigStore provides access to bot_simulation_configs storage.
type BotSimulationConfigStore interface {
	// InsertBulk pins bot versions to a run. Fails entire batch on duplicate (run_id, bot_id).
	InsertBulk(ctx context.Context, configs []*domain.BotSimulationConfig) error

	// GetByRunID retrieves the pinned configs of a run, ordered by bot_id ASC.
	GetByRunID(ctx context.Context, runID string) ([]*domain.BotSimulationConfig, error)
}

// DailyResultStore provides access to daily_results storage.
type DailyResultStore interface {
	// Insert adds a daily result. Returns ErrDuplicateKey if (run_id, bot_id, day) exists.
	Insert(ctx context.Context, r *domain.DailyResult) error

	// GetByRunID retrieves all daily results of a run, ordered by (bot_id, day) ASC.
	GetByRunID(ctx context.Context, runID string) ([]*domain.DailyResult, error)
}

// TickResultStore provides access to tick_results storage.
type TickResultStore interface {
	// InsertBulk adds tick results. Fails entire batch on duplicate id.
	InsertBulk(ctx context.Context, results []*domain.TickResult) error

	// GetByRunBot retrieves a bot's tick results, ordered by (timestamp, symbol) ASC.
	GetByRunBot(ctx context.Context, runID, botID string) ([]*domain.TickResult, error)
}

// OrderStore provides access to orders storage.
type OrderStore interface {
	// InsertBulk adds terminal orders. Fails entire batch on duplicate id.
	InsertBulk(ctx context.Context, orders []*domain.Order) error

	// GetByRunID retrieves all orders of a run, ordered by (bot_id, seq) ASC.
	GetByRunID(ctx context.Context, runID string) ([]*domain.Order, error)
}

// PriceBarStore provides access to price_bars storage.
type PriceBarStore interface {
	// InsertBulk adds bars. Fails entire batch on duplicate (symbol, interval, timestamp).
	InsertBulk(ctx context.Context, bars []*domain.Bar) error

	// GetByTimeRange retrieves bars within [start, end] (inclusive), ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Bar, error)

	// GetLatest retrieves the most recent bar at or before t. Returns ErrNotFound if none.
	GetLatest(ctx context.Context, symbol, interval string, t time.Time) (*domain.Bar, error)
}

// TickStore provides access to ticks storage.
type TickStore interface {
	// InsertBulk adds ticks. Fails entire batch on duplicate (symbol, timestamp).
	InsertBulk(ctx context.Context, ticks []*domain.Tick) error

	// GetByTimeRange retrieves ticks within [start, end] (inclusive), ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, symbol string, start, end time.Time) ([]*domain.Tick, error)
}

// SignalArchiveStore provides access to signal_snapshots storage.
type SignalArchiveStore interface {
	// InsertBulk archives snapshots. Fails entire batch on duplicate
	// (run_id, bot_id, source_id, symbol, timestamp).
	InsertBulk(ctx context.Context, signals []*domain.ArchivedSignal) error

	// GetByRunBot retrieves a bot's archived snapshots, ordered by (timestamp, symbol, source_id) ASC.
	GetByRunBot(ctx context.Context, runID, botID string) ([]*domain.ArchivedSignal, error)
}
