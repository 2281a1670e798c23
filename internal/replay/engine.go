package replay

import (
	"context"
	"time"

	"stock-bot-lab/internal/domain"
)

// EventType represents where an event's price came from.
type EventType string

// Event type constants.
const (
	EventTypeTick EventType = "tick"
	EventTypeBar  EventType = "bar"
)

// Event is one price observation for one symbol.
// Ticks are carried as flat bars so consumers see a single shape.
type Event struct {
	Type      EventType
	Symbol    string
	Timestamp time.Time
	Bar       domain.Bar
}

// ReplayEngine processes events in deterministic order.
type ReplayEngine interface {
	// OnEvent is called for each event in order.
	// Events are guaranteed to be ordered by (timestamp, symbol, type).
	OnEvent(ctx context.Context, event *Event) error
}
