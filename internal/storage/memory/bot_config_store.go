package memory

import (
	"context"
	"fmt"
	"sync"

	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/storage"
)

// BotConfigStore is an in-memory implementation of storage.BotConfigStore.
type BotConfigStore struct {
	mu   sync.RWMutex
	data map[string]*domain.BotConfig // keyed by (id, version)
	head map[string]int               // latest version per id
}

// NewBotConfigStore creates a new in-memory bot config store.
func NewBotConfigStore() *BotConfigStore {
	return &BotConfigStore{
		data: make(map[string]*domain.BotConfig),
		head: make(map[string]int),
	}
}

func botKey(id string, version int) string {
	return fmt.Sprintf("%s|%d", id, version)
}

// Insert adds a config version. Returns ErrDuplicateKey if (id, version) exists.
func (s *BotConfigStore) Insert(_ context.Context, c *domain.BotConfig) error {
	if c == nil || c.ID == "" || c.Version <= 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := botKey(c.ID, c.Version)
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[key] = c.Clone()
	if c.Version > s.head[c.ID] {
		s.head[c.ID] = c.Version
	}
	return nil
}

// Get retrieves a specific version. Returns ErrNotFound if not exists.
func (s *BotConfigStore) Get(_ context.Context, id string, version int) (*domain.BotConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.data[botKey(id, version)]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return c.Clone(), nil
}

// GetLatest retrieves the highest version of a bot. Returns ErrNotFound if not exists.
func (s *BotConfigStore) GetLatest(ctx context.Context, id string) (*domain.BotConfig, error) {
	s.mu.RLock()
	v, ok := s.head[id]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return s.Get(ctx, id, v)
}

var _ storage.BotConfigStore = (*BotConfigStore)(nil)
