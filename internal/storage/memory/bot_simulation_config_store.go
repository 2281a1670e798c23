package memory

import (
	"context"
	"sort"
	"sync"

	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/storage"
)

// BotSimulationConfigStore is an in-memory implementation of storage.BotSimulationConfigStore.
type BotSimulationConfigStore struct {
	mu   sync.RWMutex
	data map[string]*domain.BotSimulationConfig // keyed by (run_id, bot_id)
}

// NewBotSimulationConfigStore creates a new in-memory store.
func NewBotSimulationConfigStore() *BotSimulationConfigStore {
	return &BotSimulationConfigStore{
		data: make(map[string]*domain.BotSimulationConfig),
	}
}

func runBotKey(runID, botID string) string {
	return runID + "|" + botID
}

func cloneBotSimulationConfig(c *domain.BotSimulationConfig) *domain.BotSimulationConfig {
	out := *c
	out.Config = *c.Config.Clone()
	return &out
}

// InsertBulk pins bot versions to a run. Fails entire batch on duplicate.
func (s *BotSimulationConfigStore) InsertBulk(_ context.Context, configs []*domain.BotSimulationConfig) error {
	if len(configs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(configs))

	// First pass: check for duplicates (existing + intra-batch)
	for _, c := range configs {
		if c == nil || c.RunID == "" || c.BotID == "" {
			return storage.ErrInvalidInput
		}
		key := runBotKey(c.RunID, c.BotID)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	for _, c := range configs {
		s.data[runBotKey(c.RunID, c.BotID)] = cloneBotSimulationConfig(c)
	}
	return nil
}

// GetByRunID retrieves the pinned configs of a run, ordered by bot_id ASC.
func (s *BotSimulationConfigStore) GetByRunID(_ context.Context, runID string) ([]*domain.BotSimulationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.BotSimulationConfig
	for _, c := range s.data {
		if c.RunID == runID {
			result = append(result, cloneBotSimulationConfig(c))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].BotID < result[j].BotID
	})
	return result, nil
}

var _ storage.BotSimulationConfigStore = (*BotSimulationConfigStore)(nil)
