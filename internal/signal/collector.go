package signal

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/observability"
)

// DefaultSourceTimeout bounds a single source call.
const DefaultSourceTimeout = 2 * time.Second

// CollectorOptions configures a Collector.
type CollectorOptions struct {
	Timeout time.Duration
	Logger  *zap.Logger
	Metrics *observability.Metrics
}

// Collector queries sources concurrently for one tick.
type Collector struct {
	timeout time.Duration
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewCollector creates a Collector.
func NewCollector(opts CollectorOptions) *Collector {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultSourceTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := opts.Metrics
	if m == nil {
		m = observability.DefaultMetrics
	}
	return &Collector{timeout: timeout, logger: logger, metrics: m}
}

// Collect calls every source in parallel and returns the snapshots that came
// back, keyed by source id.
//
// A source that errors, times out or has no data is simply absent from the
// result. Collect never fails.
func (c *Collector) Collect(ctx context.Context, sources []Source, in Input) map[string]domain.SignalSnapshot {
	results := make([]*domain.SignalSnapshot, len(sources))

	var g errgroup.Group
	for i, src := range sources {
		g.Go(func() error {
			results[i] = c.call(ctx, src, in)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]domain.SignalSnapshot, len(sources))
	for i, snap := range results {
		if snap == nil {
			continue
		}
		s := *snap
		s.SourceID = sources[i].ID()
		s.Kind = sources[i].Kind()
		if s.Symbol == "" {
			s.Symbol = in.Symbol
		}
		if s.Timestamp.IsZero() {
			s.Timestamp = in.Timestamp
		}
		s.Normalize()
		out[s.SourceID] = s
	}
	return out
}

func (c *Collector) call(ctx context.Context, src Source, in Input) *domain.SignalSnapshot {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	snap, err := src.Signal(callCtx, in)
	c.metrics.RecordSourceLatency(string(src.Kind()), time.Since(start).Seconds())

	if err != nil {
		errType := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			errType = "timeout"
		}
		c.metrics.RecordSourceError(string(src.Kind()), errType)
		c.logger.Debug("signal source unavailable",
			zap.String("source", src.ID()),
			zap.String("symbol", in.Symbol),
			zap.String("error_type", errType),
			zap.Error(err),
		)
		return nil
	}
	return snap
}
