package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/storage"
)

// TickStore is an in-memory implementation of storage.TickStore.
type TickStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Tick // keyed by (symbol, timestamp)
}

// NewTickStore creates a new in-memory tick store.
func NewTickStore() *TickStore {
	return &TickStore{
		data: make(map[string]*domain.Tick),
	}
}

func tickKey(symbol string, ts time.Time) string {
	return fmt.Sprintf("%s|%d", symbol, ts.UnixNano())
}

// InsertBulk adds multiple ticks. Fails entire batch on duplicate.
func (s *TickStore) InsertBulk(_ context.Context, ticks []*domain.Tick) error {
	if len(ticks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(ticks))

	// First pass: check for duplicates (existing + intra-batch)
	for _, t := range ticks {
		if t == nil || t.Symbol == "" {
			return storage.ErrInvalidInput
		}
		key := tickKey(t.Symbol, t.Timestamp)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	for _, t := range ticks {
		copy := *t
		copy.Timestamp = t.Timestamp.UTC()
		s.data[tickKey(t.Symbol, t.Timestamp)] = &copy
	}
	return nil
}

// GetByTimeRange retrieves ticks within [start, end] (inclusive), ordered by timestamp ASC.
func (s *TickStore) GetByTimeRange(_ context.Context, symbol string, start, end time.Time) ([]*domain.Tick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Tick
	for _, t := range s.data {
		if t.Symbol != symbol || t.Timestamp.Before(start) || t.Timestamp.After(end) {
			continue
		}
		copy := *t
		result = append(result, &copy)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

var _ storage.TickStore = (*TickStore)(nil)
