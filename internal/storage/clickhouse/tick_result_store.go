package clickhouse

import (
	"context"
	"fmt"
	"time"

	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/storage"
)

// TickResultStore implements storage.TickResultStore using ClickHouse.
type TickResultStore struct {
	conn *Conn
}

// NewTickResultStore creates a new TickResultStore.
func NewTickResultStore(conn *Conn) *TickResultStore {
	return &TickResultStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TickResultStore = (*TickResultStore)(nil)

type runBot struct {
	runID string
	botID string
}

// InsertBulk adds tick results. Fails entire batch on duplicate id.
func (s *TickResultStore) InsertBulk(ctx context.Context, results []*domain.TickResult) error {
	if len(results) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(results))
	groups := make(map[runBot][]*domain.TickResult)
	for _, r := range results {
		if r == nil || r.ID == "" || r.RunID == "" || r.BotID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[r.ID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[r.ID] = struct{}{}
		k := runBot{r.RunID, r.BotID}
		groups[k] = append(groups[k], r)
	}

	for k, group := range groups {
		lo, hi := timeBounds(group, func(r *domain.TickResult) time.Time { return r.Timestamp })
		existing, err := s.ids(ctx, k, lo, hi)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		for _, r := range group {
			if _, dup := existing[r.ID]; dup {
				return storage.ErrDuplicateKey
			}
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO tick_results (
			id, run_id, bot_id, symbol, timestamp, price,
			action, confidence, risk_score, quantity, reason,
			trade_executed, order_status, cash, cumulative_profit
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range results {
		err = batch.Append(
			r.ID, r.RunID, r.BotID, r.Symbol, r.Timestamp.UTC(), r.Price,
			string(r.Action), r.Confidence, r.RiskScore, r.Quantity, r.Reason,
			r.TradeExecuted, string(r.OrderStatus), r.Cash, r.CumulativeProfit,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByRunBot retrieves a bot's tick results, ordered by (timestamp, symbol) ASC.
func (s *TickResultStore) GetByRunBot(ctx context.Context, runID, botID string) ([]*domain.TickResult, error) {
	query := `
		SELECT
			id, run_id, bot_id, symbol, timestamp, price,
			action, confidence, risk_score, quantity, reason,
			trade_executed, order_status, cash, cumulative_profit
		FROM tick_results
		WHERE run_id = ? AND bot_id = ?
		ORDER BY timestamp ASC, symbol ASC
	`

	rows, err := s.conn.Query(ctx, query, runID, botID)
	if err != nil {
		return nil, fmt.Errorf("query by run and bot: %w", err)
	}
	defer rows.Close()

	var results []*domain.TickResult
	for rows.Next() {
		var (
			r              domain.TickResult
			action, status string
		)
		err := rows.Scan(
			&r.ID, &r.RunID, &r.BotID, &r.Symbol, &r.Timestamp, &r.Price,
			&action, &r.Confidence, &r.RiskScore, &r.Quantity, &r.Reason,
			&r.TradeExecuted, &status, &r.Cash, &r.CumulativeProfit,
		)
		if err != nil {
			return nil, fmt.Errorf("scan tick result row: %w", err)
		}
		r.Timestamp = r.Timestamp.UTC()
		r.Action = domain.Action(action)
		r.OrderStatus = domain.OrderStatus(status)
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tick result rows: %w", err)
	}
	return results, nil
}

func (s *TickResultStore) ids(ctx context.Context, k runBot, lo, hi time.Time) (map[string]struct{}, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id FROM tick_results
		WHERE run_id = ? AND bot_id = ? AND timestamp >= ? AND timestamp <= ?
	`, k.runID, k.botID, lo.UTC(), hi.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}
