package memory

import (
	"context"
	"sort"
	"sync"

	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/storage"
)

// TickResultStore is an in-memory implementation of storage.TickResultStore.
type TickResultStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TickResult // keyed by id
}

// NewTickResultStore creates a new in-memory tick result store.
func NewTickResultStore() *TickResultStore {
	return &TickResultStore{
		data: make(map[string]*domain.TickResult),
	}
}

// InsertBulk adds tick results. Fails entire batch on duplicate id.
func (s *TickResultStore) InsertBulk(_ context.Context, results []*domain.TickResult) error {
	if len(results) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(results))

	// First pass: check for duplicates (existing + intra-batch)
	for _, r := range results {
		if r == nil || r.ID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[r.ID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[r.ID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[r.ID] = struct{}{}
	}

	// Second pass: insert all
	for _, r := range results {
		copy := *r
		s.data[r.ID] = &copy
	}
	return nil
}

// GetByRunBot retrieves a bot's tick results, ordered by (timestamp, symbol) ASC.
func (s *TickResultStore) GetByRunBot(_ context.Context, runID, botID string) ([]*domain.TickResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TickResult
	for _, r := range s.data {
		if r.RunID == runID && r.BotID == botID {
			copy := *r
			result = append(result, &copy)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].Timestamp.Before(result[j].Timestamp)
		}
		return result[i].Symbol < result[j].Symbol
	})
	return result, nil
}

var _ storage.TickResultStore = (*TickResultStore)(nil)
