package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/storage"
)

// DailyResultStore implements storage.DailyResultStore using PostgreSQL.
type DailyResultStore struct {
	pool *Pool
}

// NewDailyResultStore creates a new DailyResultStore.
func NewDailyResultStore(pool *Pool) *DailyResultStore {
	return &DailyResultStore{pool: pool}
}

// Compile-time interface check.
var _ storage.DailyResultStore = (*DailyResultStore)(nil)

// Insert adds a daily result. Returns ErrDuplicateKey if id or (run_id, bot_id, day) exists.
func (s *DailyResultStore) Insert(ctx context.Context, r *domain.DailyResult) error {
	if r == nil || r.ID == "" || r.RunID == "" || r.BotID == "" {
		return storage.ErrInvalidInput
	}

	lots := r.Lots
	if lots == nil {
		lots = []domain.PortfolioLot{}
	}
	lotsJSON, err := json.Marshal(lots)
	if err != nil {
		return fmt.Errorf("encode lots: %w", err)
	}

	query := `
		INSERT INTO daily_results (
			id, run_id, bot_id, day,
			decisions, trades_executed, trade_executed,
			cash, realized_pnl, daily_realized_pnl, unrealized_pnl, equity, cumulative_profit,
			lots, created_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10, $11, $12, $13,
			$14, $15
		)
	`
	_, err = s.pool.Exec(ctx, query,
		r.ID, r.RunID, r.BotID, r.Day.UTC(),
		r.Decisions, r.TradesExecuted, r.TradeExecuted,
		r.Cash, r.RealizedPnL, r.DailyRealizedPnL, r.UnrealizedPnL, r.Equity, r.CumulativeProfit,
		lotsJSON, r.CreatedAt.UTC(),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert daily result: %w", err)
	}
	return nil
}

// GetByRunID retrieves all daily results of a run, ordered by (bot_id, day) ASC.
func (s *DailyResultStore) GetByRunID(ctx context.Context, runID string) ([]*domain.DailyResult, error) {
	query := `
		SELECT
			id, run_id, bot_id, day,
			decisions, trades_executed, trade_executed,
			cash, realized_pnl, daily_realized_pnl, unrealized_pnl, equity, cumulative_profit,
			lots, created_at
		FROM daily_results
		WHERE run_id = $1
		ORDER BY bot_id ASC, day ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get daily results by run id: %w", err)
	}
	defer rows.Close()

	var results []*domain.DailyResult
	for rows.Next() {
		var (
			r    domain.DailyResult
			lots []byte
		)
		err := rows.Scan(
			&r.ID, &r.RunID, &r.BotID, &r.Day,
			&r.Decisions, &r.TradesExecuted, &r.TradeExecuted,
			&r.Cash, &r.RealizedPnL, &r.DailyRealizedPnL, &r.UnrealizedPnL, &r.Equity, &r.CumulativeProfit,
			&lots, &r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan daily result row: %w", err)
		}
		if err := json.Unmarshal(lots, &r.Lots); err != nil {
			return nil, fmt.Errorf("decode lots of %s: %w", r.ID, err)
		}
		r.Day = r.Day.UTC()
		r.CreatedAt = r.CreatedAt.UTC()
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily result rows: %w", err)
	}
	return results, nil
}
