package memory

import (
	"context"
	"sort"
	"sync"

	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/storage"
)

// SimulationRunStore is an in-memory implementation of storage.SimulationRunStore.
type SimulationRunStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SimulationRun // keyed by id
}

// NewSimulationRunStore creates a new in-memory run store.
func NewSimulationRunStore() *SimulationRunStore {
	return &SimulationRunStore{
		data: make(map[string]*domain.SimulationRun),
	}
}

// Insert adds a new run. Returns ErrDuplicateKey if id exists.
func (s *SimulationRunStore) Insert(_ context.Context, r *domain.SimulationRun) error {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.ID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[r.ID] = r.Clone()
	return nil
}

// Update overwrites a run. Returns ErrNotFound if not exists.
func (s *SimulationRunStore) Update(_ context.Context, r *domain.SimulationRun) error {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.ID]; !exists {
		return storage.ErrNotFound
	}
	s.data[r.ID] = r.Clone()
	return nil
}

// GetByID retrieves a run. Returns ErrNotFound if not exists.
func (s *SimulationRunStore) GetByID(_ context.Context, id string) (*domain.SimulationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return r.Clone(), nil
}

// List returns up to limit runs ordered by created_at DESC, then id.
func (s *SimulationRunStore) List(_ context.Context, limit int) ([]*domain.SimulationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.SimulationRun, 0, len(s.data))
	for _, r := range s.data {
		result = append(result, r.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var _ storage.SimulationRunStore = (*SimulationRunStore)(nil)
