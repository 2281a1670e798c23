package simulation

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"stock-bot-lab/internal/domain"
)

// Handle controls one running simulation.
// Pause takes effect at the next day boundary, cancel at the next tick.
type Handle struct {
	runID    string
	progress *ProgressAggregator

	cancelled atomic.Bool

	mu       sync.Mutex
	paused   bool
	resumeCh chan struct{}

	done chan struct{}
	err  error
}

func newHandle(runID string, progress *ProgressAggregator) *Handle {
	return &Handle{
		runID:    runID,
		progress: progress,
		resumeCh: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// RunID returns the id of the controlled run.
func (h *Handle) RunID() string {
	return h.runID
}

// Pause requests a pause at the next day boundary.
func (h *Handle) Pause() error {
	if h.finished() {
		return fmt.Errorf("run %s already finished", h.runID)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.paused {
		h.paused = true
		h.resumeCh = make(chan struct{})
	}
	return nil
}

// Resume releases a paused run.
func (h *Handle) Resume() error {
	if h.finished() {
		return fmt.Errorf("run %s already finished", h.runID)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.paused {
		h.paused = false
		close(h.resumeCh)
	}
	return nil
}

// Cancel requests cancellation. Safe to call more than once.
func (h *Handle) Cancel() {
	if h.cancelled.CompareAndSwap(false, true) {
		h.mu.Lock()
		if h.paused {
			h.paused = false
			close(h.resumeCh)
		}
		h.mu.Unlock()
	}
}

// Cancelled reports whether cancellation was requested.
func (h *Handle) Cancelled() bool {
	return h.cancelled.Load()
}

// Progress returns the latest progress snapshot.
func (h *Handle) Progress() domain.RunProgress {
	return h.progress.Snapshot()
}

// Subscribe streams progress snapshots until the run finishes.
func (h *Handle) Subscribe() (<-chan domain.RunProgress, func()) {
	return h.progress.Subscribe()
}

// Done is closed once the run reached a terminal status and progress was flushed.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the run finishes and returns its error, if any.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// pauseRequested returns the channel to wait on when a pause is pending.
func (h *Handle) pauseRequested() (<-chan struct{}, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.resumeCh, h.paused
}

func (h *Handle) finish(err error) {
	h.err = err
	close(h.done)
}
