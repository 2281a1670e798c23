package clickhouse

import (
	"context"
	"fmt"
	"time"

	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/storage"
)

// SignalArchiveStore implements storage.SignalArchiveStore using ClickHouse.
type SignalArchiveStore struct {
	conn *Conn
}

// NewSignalArchiveStore creates a new SignalArchiveStore.
func NewSignalArchiveStore(conn *Conn) *SignalArchiveStore {
	return &SignalArchiveStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SignalArchiveStore = (*SignalArchiveStore)(nil)

type signalKey struct {
	sourceID string
	symbol   string
	ts       int64
}

// InsertBulk archives snapshots. Fails entire batch on duplicate
// (run_id, bot_id, source_id, symbol, timestamp).
func (s *SignalArchiveStore) InsertBulk(ctx context.Context, signals []*domain.ArchivedSignal) error {
	if len(signals) == 0 {
		return nil
	}

	type key struct {
		runBot
		signalKey
	}
	seen := make(map[key]struct{}, len(signals))
	groups := make(map[runBot][]*domain.ArchivedSignal)
	for _, sig := range signals {
		if sig == nil || sig.RunID == "" || sig.BotID == "" || sig.SourceID == "" {
			return storage.ErrInvalidInput
		}
		rb := runBot{sig.RunID, sig.BotID}
		k := key{rb, signalKey{sig.SourceID, sig.Symbol, sig.Timestamp.UnixMilli()}}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
		groups[rb] = append(groups[rb], sig)
	}

	for rb, group := range groups {
		lo, hi := timeBounds(group, func(sig *domain.ArchivedSignal) time.Time { return sig.Timestamp })
		existing, err := s.keys(ctx, rb, lo, hi)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		for _, sig := range group {
			if _, dup := existing[signalKey{sig.SourceID, sig.Symbol, sig.Timestamp.UnixMilli()}]; dup {
				return storage.ErrDuplicateKey
			}
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO signal_snapshots (
			run_id, bot_id, source_id, kind, symbol, timestamp,
			value, direction, confidence
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, sig := range signals {
		err = batch.Append(
			sig.RunID, sig.BotID, sig.SourceID, string(sig.Kind), sig.Symbol, sig.Timestamp.UTC(),
			sig.Value, string(sig.Direction), sig.Confidence,
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

// GetByRunBot retrieves a bot's archived snapshots, ordered by (timestamp, symbol, source_id) ASC.
func (s *SignalArchiveStore) GetByRunBot(ctx context.Context, runID, botID string) ([]*domain.ArchivedSignal, error) {
	query := `
		SELECT
			run_id, bot_id, source_id, kind, symbol, timestamp,
			value, direction, confidence
		FROM signal_snapshots
		WHERE run_id = ? AND bot_id = ?
		ORDER BY timestamp ASC, symbol ASC, source_id ASC
	`

	rows, err := s.conn.Query(ctx, query, runID, botID)
	if err != nil {
		return nil, fmt.Errorf("query by run and bot: %w", err)
	}
	defer rows.Close()

	var signals []*domain.ArchivedSignal
	for rows.Next() {
		var (
			sig             domain.ArchivedSignal
			kind, direction string
		)
		err := rows.Scan(
			&sig.RunID, &sig.BotID, &sig.SourceID, &kind, &sig.Symbol, &sig.Timestamp,
			&sig.Value, &direction, &sig.Confidence,
		)
		if err != nil {
			return nil, fmt.Errorf("scan signal snapshot row: %w", err)
		}
		sig.Timestamp = sig.Timestamp.UTC()
		sig.Kind = domain.SourceKind(kind)
		sig.Direction = domain.Direction(direction)
		signals = append(signals, &sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signal snapshot rows: %w", err)
	}
	return signals, nil
}

func (s *SignalArchiveStore) keys(ctx context.Context, rb runBot, lo, hi time.Time) (map[signalKey]struct{}, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT source_id, symbol, timestamp FROM signal_snapshots
		WHERE run_id = ? AND bot_id = ? AND timestamp >= ? AND timestamp <= ?
	`, rb.runID, rb.botID, lo.UTC(), hi.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[signalKey]struct{})
	for rows.Next() {
		var (
			k  signalKey
			ts time.Time
		)
		if err := rows.Scan(&k.sourceID, &k.symbol, &ts); err != nil {
			return nil, err
		}
		k.ts = ts.UnixMilli()
		out[k] = struct{}{}
	}
	return out, rows.Err()
}
