// Package signal adapts heterogeneous signal producers to one call contract
// and collects their snapshots concurrently.
package signal

import (
	"context"
	"time"

	"stock-bot-lab/internal/domain"
)

// Input is what a source sees for one (symbol, tick).
// History is oldest-first and already includes the current tick.
type Input struct {
	Symbol    string
	Timestamp time.Time
	Price     float64
	History   []domain.Bar
}

// Source is a single signal producer.
// A nil snapshot with a nil error means the source has no opinion this tick.
type Source interface {
	ID() string
	Kind() domain.SourceKind
	Signal(ctx context.Context, in Input) (*domain.SignalSnapshot, error)
}

// Builder constructs the sources a bot config enables.
type Builder interface {
	Build(cfg domain.BotConfig) ([]Source, error)
}

// FuncSource wraps a function as a Source.
type FuncSource struct {
	id   string
	kind domain.SourceKind
	fn   func(ctx context.Context, in Input) (*domain.SignalSnapshot, error)
}

// NewFuncSource creates a Source from fn.
func NewFuncSource(id string, kind domain.SourceKind, fn func(ctx context.Context, in Input) (*domain.SignalSnapshot, error)) *FuncSource {
	return &FuncSource{id: id, kind: kind, fn: fn}
}

func (s *FuncSource) ID() string              { return s.id }
func (s *FuncSource) Kind() domain.SourceKind { return s.kind }

func (s *FuncSource) Signal(ctx context.Context, in Input) (*domain.SignalSnapshot, error) {
	return s.fn(ctx, in)
}

// snapshot builds a normalized snapshot for a source.
func snapshot(id string, kind domain.SourceKind, in Input, value float64, dir domain.Direction, confidence float64) *domain.SignalSnapshot {
	s := domain.SignalSnapshot{
		SourceID:   id,
		Kind:       kind,
		Symbol:     in.Symbol,
		Timestamp:  in.Timestamp,
		Value:      value,
		Direction:  dir,
		Confidence: confidence,
	}
	s.Normalize()
	return &s
}

var _ Source = (*FuncSource)(nil)
