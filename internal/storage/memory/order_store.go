package memory

import (
	"context"
	"sort"
	"sync"

	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/storage"
)

// OrderStore is an in-memory implementation of storage.OrderStore.
type OrderStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Order // keyed by id
}

// NewOrderStore creates a new in-memory order store.
func NewOrderStore() *OrderStore {
	return &OrderStore{
		data: make(map[string]*domain.Order),
	}
}

// InsertBulk adds orders. Fails entire batch on duplicate id.
func (s *OrderStore) InsertBulk(_ context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(orders))

	// First pass: check for duplicates (existing + intra-batch)
	for _, o := range orders {
		if o == nil || o.ID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[o.ID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[o.ID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[o.ID] = struct{}{}
	}

	// Second pass: insert all
	for _, o := range orders {
		s.data[o.ID] = o.Clone()
	}
	return nil
}

// GetByRunID retrieves all orders of a run, ordered by (bot_id, seq) ASC.
func (s *OrderStore) GetByRunID(_ context.Context, runID string) ([]*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Order
	for _, o := range s.data {
		if o.RunID == runID {
			result = append(result, o.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.BotID != b.BotID {
			return a.BotID < b.BotID
		}
		return a.Seq < b.Seq
	})
	return result, nil
}

var _ storage.OrderStore = (*OrderStore)(nil)
