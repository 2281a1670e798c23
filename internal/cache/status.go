package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/simulation"
)

// DefaultStatusTTL bounds how long a finished run's status stays cached.
const DefaultStatusTTL = 24 * time.Hour

// StatusKey returns the cache key of a run's progress snapshot.
func StatusKey(runID string) string {
	return "sbl:run:" + runID + ":status"
}

// StatusCache mirrors run progress snapshots into a Store so that external
// pollers can read status without reaching the service.
type StatusCache struct {
	store  Store
	ttl    time.Duration
	logger *zap.Logger
}

// NewStatusCache creates a StatusCache. ttl <= 0 uses DefaultStatusTTL.
func NewStatusCache(store Store, ttl time.Duration, logger *zap.Logger) *StatusCache {
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusCache{store: store, ttl: ttl, logger: logger}
}

// PublishProgress stores the snapshot, replacing the previous one.
func (c *StatusCache) PublishProgress(ctx context.Context, p domain.RunProgress) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	if err := c.store.Set(ctx, StatusKey(p.RunID), b, c.ttl); err != nil {
		return fmt.Errorf("cache progress of run %s: %w", p.RunID, err)
	}
	c.logger.Debug("cached run status",
		zap.String("run_id", p.RunID),
		zap.String("status", string(p.Status)),
		zap.Float64("progress", p.Progress),
	)
	return nil
}

// Get returns the cached snapshot of a run.
func (c *StatusCache) Get(ctx context.Context, runID string) (domain.RunProgress, bool, error) {
	b, found, err := c.store.Get(ctx, StatusKey(runID))
	if err != nil || !found {
		return domain.RunProgress{}, false, err
	}
	var p domain.RunProgress
	if err := json.Unmarshal(b, &p); err != nil {
		return domain.RunProgress{}, false, fmt.Errorf("decode cached progress of run %s: %w", runID, err)
	}
	return p, true, nil
}

var _ simulation.Sink = (*StatusCache)(nil)
