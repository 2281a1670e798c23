package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/storage"
)

// SimulationRunStore implements storage.SimulationRunStore using PostgreSQL.
type SimulationRunStore struct {
	pool *Pool
}

// NewSimulationRunStore creates a new SimulationRunStore.
func NewSimulationRunStore(pool *Pool) *SimulationRunStore {
	return &SimulationRunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SimulationRunStore = (*SimulationRunStore)(nil)

const runColumns = `
	id, parent_run_id, name, status, start_date, end_date, symbols, bar_interval,
	progress, current_day, days_completed, total_days, bots_completed, total_bots,
	error_message, created_at, started_at, finished_at
`

// Insert adds a new run. Returns ErrDuplicateKey if id exists.
func (s *SimulationRunStore) Insert(ctx context.Context, r *domain.SimulationRun) error {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO simulation_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err := s.pool.Exec(ctx, query, runArgs(r)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert simulation run: %w", err)
	}
	return nil
}

// Update overwrites a run. Returns ErrNotFound if not exists.
func (s *SimulationRunStore) Update(ctx context.Context, r *domain.SimulationRun) error {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE simulation_runs SET
			parent_run_id = $2, name = $3, status = $4, start_date = $5, end_date = $6,
			symbols = $7, bar_interval = $8, progress = $9, current_day = $10,
			days_completed = $11, total_days = $12, bots_completed = $13, total_bots = $14,
			error_message = $15, created_at = $16, started_at = $17, finished_at = $18
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, query, runArgs(r)...)
	if err != nil {
		return fmt.Errorf("update simulation run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByID retrieves a run. Returns ErrNotFound if not exists.
func (s *SimulationRunStore) GetByID(ctx context.Context, id string) (*domain.SimulationRun, error) {
	query := `SELECT ` + runColumns + ` FROM simulation_runs WHERE id = $1`

	r, err := scanRun(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get simulation run: %w", err)
	}
	return r, nil
}

// List returns up to limit runs ordered by created_at DESC, then id.
func (s *SimulationRunStore) List(ctx context.Context, limit int) ([]*domain.SimulationRun, error) {
	query := `SELECT ` + runColumns + ` FROM simulation_runs ORDER BY created_at DESC, id ASC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list simulation runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.SimulationRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan simulation run row: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate simulation run rows: %w", err)
	}
	return runs, nil
}

func runArgs(r *domain.SimulationRun) []any {
	symbols := r.Symbols
	if symbols == nil {
		symbols = []string{}
	}
	return []any{
		r.ID, r.ParentRunID, r.Name, string(r.Status), r.StartDate.UTC(), r.EndDate.UTC(), symbols, r.Interval,
		r.Progress, nullTime(r.CurrentDay), r.DaysCompleted, r.TotalDays, r.BotsCompleted, r.TotalBots,
		r.ErrorMessage, r.CreatedAt.UTC(), r.StartedAt, r.FinishedAt,
	}
}

func scanRun(row pgx.Row) (*domain.SimulationRun, error) {
	var (
		r          domain.SimulationRun
		status     string
		currentDay *time.Time
	)
	err := row.Scan(
		&r.ID, &r.ParentRunID, &r.Name, &status, &r.StartDate, &r.EndDate, &r.Symbols, &r.Interval,
		&r.Progress, &currentDay, &r.DaysCompleted, &r.TotalDays, &r.BotsCompleted, &r.TotalBots,
		&r.ErrorMessage, &r.CreatedAt, &r.StartedAt, &r.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Status = domain.RunStatus(status)
	r.StartDate = r.StartDate.UTC()
	r.EndDate = r.EndDate.UTC()
	r.CurrentDay = fromNullTime(currentDay)
	r.CreatedAt = r.CreatedAt.UTC()
	r.StartedAt = utcPtr(r.StartedAt)
	r.FinishedAt = utcPtr(r.FinishedAt)
	return &r, nil
}
