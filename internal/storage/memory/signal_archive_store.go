package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/storage"
)

// SignalArchiveStore is an in-memory implementation of storage.SignalArchiveStore.
type SignalArchiveStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ArchivedSignal
}

// NewSignalArchiveStore creates a new in-memory signal archive.
func NewSignalArchiveStore() *SignalArchiveStore {
	return &SignalArchiveStore{
		data: make(map[string]*domain.ArchivedSignal),
	}
}

func signalKey(s *domain.ArchivedSignal) string {
	return fmt.Sprintf("%s|%s|%s|%s|%d", s.RunID, s.BotID, s.SourceID, s.Symbol, s.Timestamp.UnixNano())
}

// InsertBulk archives snapshots. Fails entire batch on duplicate.
func (s *SignalArchiveStore) InsertBulk(_ context.Context, signals []*domain.ArchivedSignal) error {
	if len(signals) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(signals))

	// First pass: check for duplicates (existing + intra-batch)
	for _, sig := range signals {
		if sig == nil || sig.RunID == "" || sig.SourceID == "" {
			return storage.ErrInvalidInput
		}
		key := signalKey(sig)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	for _, sig := range signals {
		copy := *sig
		s.data[signalKey(sig)] = &copy
	}
	return nil
}

// GetByRunBot retrieves a bot's archived snapshots, ordered by (timestamp, symbol, source_id) ASC.
func (s *SignalArchiveStore) GetByRunBot(_ context.Context, runID, botID string) ([]*domain.ArchivedSignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ArchivedSignal
	for _, sig := range s.data {
		if sig.RunID == runID && sig.BotID == botID {
			copy := *sig
			result = append(result, &copy)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		return a.SourceID < b.SourceID
	})
	return result, nil
}

var _ storage.SignalArchiveStore = (*SignalArchiveStore)(nil)
