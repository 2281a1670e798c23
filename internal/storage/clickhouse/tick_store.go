package clickhouse

import (
	"context"
	"fmt"
	"time"

	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/storage"
)

// TickStore implements storage.TickStore using ClickHouse.
type TickStore struct {
	conn *Conn
}

// NewTickStore creates a new TickStore.
func NewTickStore(conn *Conn) *TickStore {
	return &TickStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TickStore = (*TickStore)(nil)

// InsertBulk adds multiple ticks. Fails entire batch on duplicate (symbol, timestamp).
func (s *TickStore) InsertBulk(ctx context.Context, ticks []*domain.Tick) error {
	if len(ticks) == 0 {
		return nil
	}

	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]struct{}, len(ticks))
	groups := make(map[string][]*domain.Tick)
	for _, t := range ticks {
		if t == nil || t.Symbol == "" {
			return storage.ErrInvalidInput
		}
		k := key{t.Symbol, t.Timestamp.UnixMilli()}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
		groups[t.Symbol] = append(groups[t.Symbol], t)
	}

	for symbol, group := range groups {
		lo, hi := timeBounds(group, func(t *domain.Tick) time.Time { return t.Timestamp })
		existing, err := s.timestamps(ctx, symbol, lo, hi)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		for _, t := range group {
			if _, dup := existing[t.Timestamp.UnixMilli()]; dup {
				return storage.ErrDuplicateKey
			}
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO ticks (symbol, timestamp, price, volume)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, t := range ticks {
		if err := batch.Append(t.Symbol, t.Timestamp.UTC(), t.Price, t.Volume); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByTimeRange retrieves ticks within [start, end] (inclusive), ordered by timestamp ASC.
func (s *TickStore) GetByTimeRange(ctx context.Context, symbol string, start, end time.Time) ([]*domain.Tick, error) {
	query := `
		SELECT symbol, timestamp, price, volume
		FROM ticks
		WHERE symbol = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`

	rows, err := s.conn.Query(ctx, query, symbol, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	var ticks []*domain.Tick
	for rows.Next() {
		var t domain.Tick
		if err := rows.Scan(&t.Symbol, &t.Timestamp, &t.Price, &t.Volume); err != nil {
			return nil, fmt.Errorf("scan tick row: %w", err)
		}
		t.Timestamp = t.Timestamp.UTC()
		ticks = append(ticks, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tick rows: %w", err)
	}
	return ticks, nil
}

func (s *TickStore) timestamps(ctx context.Context, symbol string, lo, hi time.Time) (map[int64]struct{}, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT timestamp FROM ticks
		WHERE symbol = ? AND timestamp >= ? AND timestamp <= ?
	`, symbol, lo.UTC(), hi.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]struct{})
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		out[ts.UnixMilli()] = struct{}{}
	}
	return out, rows.Err()
}
