package simulation

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/observability"
)

// Sink receives every published progress snapshot.
// Sinks are called from the aggregator goroutine, never from tick processing.
type Sink interface {
	PublishProgress(ctx context.Context, p domain.RunProgress) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, p domain.RunProgress) error

// PublishProgress implements Sink.
func (f SinkFunc) PublishProgress(ctx context.Context, p domain.RunProgress) error {
	return f(ctx, p)
}

type eventKind int

const (
	evStatus eventKind = iota
	evDayStarted
	evBotDone
	evDayDone
)

type progressEvent struct {
	kind   eventKind
	status domain.RunStatus
	errMsg string
	day    time.Time
}

// ProgressAggregator is the single writer of a run's progress.
// Producers post events without blocking; the aggregator goroutine applies
// them in order and publishes whole snapshots.
type ProgressAggregator struct {
	sinks   []Sink
	logger  *zap.Logger
	metrics *observability.Metrics

	current atomic.Pointer[domain.RunProgress]

	mu     sync.Mutex
	queue  []progressEvent
	closed bool
	notify chan struct{}
	done   chan struct{}

	subMu   sync.Mutex
	nextID  int
	subs    map[int]chan domain.RunProgress
	stopped bool
}

// NewProgressAggregator starts an aggregator seeded with initial.
func NewProgressAggregator(initial domain.RunProgress, logger *zap.Logger, metrics *observability.Metrics, sinks ...Sink) *ProgressAggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.DefaultMetrics
	}
	a := &ProgressAggregator{
		sinks:   sinks,
		logger:  logger,
		metrics: metrics,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		subs:    make(map[int]chan domain.RunProgress),
	}
	p := initial
	a.current.Store(&p)
	go a.loop()
	return a
}

// Snapshot returns the latest published progress.
func (a *ProgressAggregator) Snapshot() domain.RunProgress {
	return *a.current.Load()
}

// Subscribe returns a channel receiving the latest snapshot after each change.
// Slow subscribers only see the most recent snapshot. The channel is closed
// when the aggregator stops or cancel is called.
func (a *ProgressAggregator) Subscribe() (<-chan domain.RunProgress, func()) {
	ch := make(chan domain.RunProgress, 1)
	ch <- a.Snapshot()

	a.subMu.Lock()
	if a.stopped {
		a.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := a.nextID
	a.nextID++
	a.subs[id] = ch
	a.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.subMu.Lock()
			defer a.subMu.Unlock()
			if c, ok := a.subs[id]; ok {
				delete(a.subs, id)
				close(c)
			}
		})
	}
}

// Close applies every queued event, publishes the last snapshot and stops.
func (a *ProgressAggregator) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		select {
		case a.notify <- struct{}{}:
		default:
		}
	}
	a.mu.Unlock()
	<-a.done
}

func (a *ProgressAggregator) status(s domain.RunStatus, errMsg string) {
	a.post(progressEvent{kind: evStatus, status: s, errMsg: errMsg})
}

func (a *ProgressAggregator) dayStarted(day time.Time) {
	a.post(progressEvent{kind: evDayStarted, day: day})
}

func (a *ProgressAggregator) botDone(day time.Time) {
	a.post(progressEvent{kind: evBotDone, day: day})
}

func (a *ProgressAggregator) dayDone(day time.Time) {
	a.post(progressEvent{kind: evDayDone, day: day})
}

// post never blocks.
func (a *ProgressAggregator) post(ev progressEvent) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.queue = append(a.queue, ev)
	a.mu.Unlock()

	select {
	case a.notify <- struct{}{}:
	default:
	}
}

func (a *ProgressAggregator) loop() {
	defer close(a.done)
	defer a.closeSubscribers()

	for range a.notify {
		a.mu.Lock()
		batch := a.queue
		a.queue = nil
		closed := a.closed
		a.mu.Unlock()

		if len(batch) > 0 {
			p := a.Snapshot()
			for _, ev := range batch {
				apply(&p, ev)
			}
			p.UpdatedAt = time.Now().UTC()
			a.current.Store(&p)
			a.publish(p)
		}
		if closed {
			return
		}
	}
}

func (a *ProgressAggregator) publish(p domain.RunProgress) {
	a.metrics.RecordRunProgress(p.RunID, p.Progress)

	a.subMu.Lock()
	for _, ch := range a.subs {
		// drop the stale value so the subscriber sees the latest
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- p:
		default:
		}
	}
	a.subMu.Unlock()

	for _, s := range a.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.PublishProgress(ctx, p); err != nil {
			a.logger.Warn("progress sink failed", zap.String("run_id", p.RunID), zap.Error(err))
		}
		cancel()
	}
}

func (a *ProgressAggregator) closeSubscribers() {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	a.stopped = true
	for id, ch := range a.subs {
		delete(a.subs, id)
		close(ch)
	}
}

// apply folds one event into p. Progress never decreases.
func apply(p *domain.RunProgress, ev progressEvent) {
	switch ev.kind {
	case evStatus:
		if p.Status.IsTerminal() {
			return
		}
		p.Status = ev.status
		if ev.errMsg != "" {
			p.ErrorMessage = ev.errMsg
		}
	case evDayStarted:
		p.CurrentDay = ev.day
		p.BotsCompleted = 0
	case evBotDone:
		if ev.day.Equal(p.CurrentDay) && p.BotsCompleted < p.TotalBots {
			p.BotsCompleted++
		}
	case evDayDone:
		if p.DaysCompleted < p.TotalDays {
			p.DaysCompleted++
		}
	}

	if p.TotalDays == 0 {
		return
	}
	next := float64(p.DaysCompleted) / float64(p.TotalDays) * 100
	if ev.kind != evDayDone && p.TotalBots > 0 && p.DaysCompleted < p.TotalDays {
		next += float64(p.BotsCompleted) / float64(p.TotalBots) / float64(p.TotalDays) * 100
	}
	if p.DaysCompleted == p.TotalDays {
		next = 100
	}
	if next > p.Progress {
		p.Progress = next
	}
}
