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

// PriceBarStore is an in-memory implementation of storage.PriceBarStore.
type PriceBarStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Bar // keyed by (symbol, interval, timestamp)
}

// NewPriceBarStore creates a new in-memory price bar store.
func NewPriceBarStore() *PriceBarStore {
	return &PriceBarStore{
		data: make(map[string]*domain.Bar),
	}
}

// barKey generates a unique key for a bar.
func barKey(symbol, interval string, ts time.Time) string {
	return fmt.Sprintf("%s|%s|%d", symbol, interval, ts.UnixNano())
}

// InsertBulk adds multiple bars. Fails entire batch on duplicate.
func (s *PriceBarStore) InsertBulk(_ context.Context, bars []*domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(bars))

	// First pass: check for duplicates (existing + intra-batch)
	for _, b := range bars {
		if b == nil || b.Symbol == "" || b.Interval == "" {
			return storage.ErrInvalidInput
		}
		key := barKey(b.Symbol, b.Interval, b.Timestamp)

		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	for _, b := range bars {
		copy := *b
		copy.Timestamp = b.Timestamp.UTC()
		s.data[barKey(b.Symbol, b.Interval, b.Timestamp)] = &copy
	}

	return nil
}

// GetByTimeRange retrieves bars within [start, end] (inclusive), ordered by timestamp ASC.
func (s *PriceBarStore) GetByTimeRange(_ context.Context, symbol, interval string, start, end time.Time) ([]*domain.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Bar
	for _, b := range s.data {
		if b.Symbol != symbol || b.Interval != interval {
			continue
		}
		if b.Timestamp.Before(start) || b.Timestamp.After(end) {
			continue
		}
		copy := *b
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})

	return result, nil
}

// GetLatest retrieves the most recent bar at or before t. Returns ErrNotFound if none.
func (s *PriceBarStore) GetLatest(_ context.Context, symbol, interval string, t time.Time) (*domain.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *domain.Bar
	for _, b := range s.data {
		if b.Symbol != symbol || b.Interval != interval || b.Timestamp.After(t) {
			continue
		}
		if best == nil || b.Timestamp.After(best.Timestamp) {
			best = b
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}
	copy := *best
	return &copy, nil
}

var _ storage.PriceBarStore = (*PriceBarStore)(nil)
