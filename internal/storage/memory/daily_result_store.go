package memory

import (
	"context"
	"sort"
	"sync"

	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/storage"
)

// DailyResultStore is an in-memory implementation of storage.DailyResultStore.
type DailyResultStore struct {
	mu   sync.RWMutex
	data map[string]*domain.DailyResult // keyed by (run_id, bot_id, day)
}

// NewDailyResultStore creates a new in-memory daily result store.
func NewDailyResultStore() *DailyResultStore {
	return &DailyResultStore{
		data: make(map[string]*domain.DailyResult),
	}
}

func dailyKey(r *domain.DailyResult) string {
	return runBotKey(r.RunID, r.BotID) + "|" + r.Day.UTC().Format("2006-01-02")
}

// Insert adds a daily result. Returns ErrDuplicateKey if (run_id, bot_id, day) exists.
func (s *DailyResultStore) Insert(_ context.Context, r *domain.DailyResult) error {
	if r == nil || r.RunID == "" || r.BotID == "" || r.Day.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := dailyKey(r)
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[key] = r.Clone()
	return nil
}

// GetByRunID retrieves all daily results of a run, ordered by (bot_id, day) ASC.
func (s *DailyResultStore) GetByRunID(_ context.Context, runID string) ([]*domain.DailyResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.DailyResult
	for _, r := range s.data {
		if r.RunID == runID {
			result = append(result, r.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].BotID != result[j].BotID {
			return result[i].BotID < result[j].BotID
		}
		return result[i].Day.Before(result[j].Day)
	})
	return result, nil
}

var _ storage.DailyResultStore = (*DailyResultStore)(nil)
