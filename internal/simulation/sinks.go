package simulation

import (
	"context"
	"fmt"
	"time"

	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/storage"
)

// RunStoreSink mirrors progress onto the persisted SimulationRun.
type RunStoreSink struct {
	store storage.SimulationRunStore
	now   func() time.Time
}

// NewRunStoreSink creates a sink writing to store.
func NewRunStoreSink(store storage.SimulationRunStore) *RunStoreSink {
	return &RunStoreSink{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// PublishProgress implements Sink.
func (s *RunStoreSink) PublishProgress(ctx context.Context, p domain.RunProgress) error {
	run, err := s.store.GetByID(ctx, p.RunID)
	if err != nil {
		return fmt.Errorf("load run %s: %w", p.RunID, err)
	}
	run.ApplyProgress(p)

	now := s.now()
	if run.StartedAt == nil && p.Status == domain.RunStatusRunning {
		run.StartedAt = &now
	}
	if run.FinishedAt == nil && p.Status.IsTerminal() {
		run.FinishedAt = &now
	}
	return s.store.Update(ctx, run)
}

var _ Sink = (*RunStoreSink)(nil)
