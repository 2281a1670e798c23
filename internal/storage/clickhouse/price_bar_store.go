package clickhouse

import (
	"context"
	"fmt"
	"time"

	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/storage"
)

// PriceBarStore implements storage.PriceBarStore using ClickHouse.
type PriceBarStore struct {
	conn *Conn
}

// NewPriceBarStore creates a new PriceBarStore.
func NewPriceBarStore(conn *Conn) *PriceBarStore {
	return &PriceBarStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PriceBarStore = (*PriceBarStore)(nil)

type barSeries struct {
	symbol   string
	interval string
}

// InsertBulk adds multiple bars. Fails entire batch on duplicate (symbol, interval, timestamp).
func (s *PriceBarStore) InsertBulk(ctx context.Context, bars []*domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	// Check for intra-batch duplicates and group by series
	type key struct {
		series barSeries
		ts     int64
	}
	seen := make(map[key]struct{}, len(bars))
	groups := make(map[barSeries][]*domain.Bar)
	for _, b := range bars {
		if b == nil || b.Symbol == "" || b.Interval == "" {
			return storage.ErrInvalidInput
		}
		series := barSeries{b.Symbol, b.Interval}
		k := key{series, b.Timestamp.UnixMilli()}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
		groups[series] = append(groups[series], b)
	}

	// Check for duplicates against existing DB rows
	for series, group := range groups {
		lo, hi := timeBounds(group, func(b *domain.Bar) time.Time { return b.Timestamp })
		existing, err := s.timestamps(ctx, series, lo, hi)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		for _, b := range group {
			if _, dup := existing[b.Timestamp.UnixMilli()]; dup {
				return storage.ErrDuplicateKey
			}
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_bars (
			symbol, bar_interval, timestamp, open, high, low, close, volume
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, b := range bars {
		err = batch.Append(
			b.Symbol, b.Interval, b.Timestamp.UTC(),
			b.Open, b.High, b.Low, b.Close, b.Volume,
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

// GetByTimeRange retrieves bars within [start, end] (inclusive), ordered by timestamp ASC.
func (s *PriceBarStore) GetByTimeRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Bar, error) {
	query := `
		SELECT symbol, bar_interval, timestamp, open, high, low, close, volume
		FROM price_bars
		WHERE symbol = ? AND bar_interval = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`

	rows, err := s.conn.Query(ctx, query, symbol, interval, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanBars(rows)
}

// GetLatest retrieves the most recent bar at or before t. Returns ErrNotFound if none.
func (s *PriceBarStore) GetLatest(ctx context.Context, symbol, interval string, t time.Time) (*domain.Bar, error) {
	query := `
		SELECT symbol, bar_interval, timestamp, open, high, low, close, volume
		FROM price_bars
		WHERE symbol = ? AND bar_interval = ? AND timestamp <= ?
		ORDER BY timestamp DESC
		LIMIT 1
	`

	rows, err := s.conn.Query(ctx, query, symbol, interval, t.UTC())
	if err != nil {
		return nil, fmt.Errorf("query latest bar: %w", err)
	}
	defer rows.Close()

	bars, err := scanBars(rows)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, storage.ErrNotFound
	}
	return bars[0], nil
}

// timestamps returns the unix-milli timestamps already stored for a series within [lo, hi].
func (s *PriceBarStore) timestamps(ctx context.Context, series barSeries, lo, hi time.Time) (map[int64]struct{}, error) {
	query := `
		SELECT timestamp FROM price_bars
		WHERE symbol = ? AND bar_interval = ? AND timestamp >= ? AND timestamp <= ?
	`

	rows, err := s.conn.Query(ctx, query, series.symbol, series.interval, lo.UTC(), hi.UTC())
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

// scanBars scans multiple rows.
func scanBars(rows chRows) ([]*domain.Bar, error) {
	var bars []*domain.Bar

	for rows.Next() {
		var b domain.Bar
		err := rows.Scan(
			&b.Symbol, &b.Interval, &b.Timestamp,
			&b.Open, &b.High, &b.Low, &b.Close, &b.Volume,
		)
		if err != nil {
			return nil, fmt.Errorf("scan price bar row: %w", err)
		}
		b.Timestamp = b.Timestamp.UTC()
		bars = append(bars, &b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price bar rows: %w", err)
	}

	return bars, nil
}
