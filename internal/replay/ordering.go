package replay

import (
	"sort"

	"stock-bot-lab/internal/domain"
)

// SortEvents orders events by (timestamp ASC, symbol ASC, type ASC).
// Type is the tie-breaker when a symbol has both a bar and a tick at the same instant.
func SortEvents(events []*Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return compareEvents(events[i], events[j]) < 0
	})
}

// MergeEvents combines ticks and bars into a sorted event stream.
func MergeEvents(ticks []*domain.Tick, bars []*domain.Bar) []*Event {
	events := make([]*Event, 0, len(ticks)+len(bars))

	for _, t := range ticks {
		events = append(events, &Event{
			Type:      EventTypeTick,
			Symbol:    t.Symbol,
			Timestamp: t.Timestamp,
			Bar:       domain.BarFromTick(*t, ""),
		})
	}

	for _, b := range bars {
		events = append(events, &Event{
			Type:      EventTypeBar,
			Symbol:    b.Symbol,
			Timestamp: b.Timestamp,
			Bar:       *b,
		})
	}

	SortEvents(events)
	return events
}

// compareEvents returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
//
// Order: (timestamp ASC, symbol ASC, type ASC)
// EventType order: "bar" < "tick" (alphabetically)
func compareEvents(a, b *Event) int {
	if !a.Timestamp.Equal(b.Timestamp) {
		if a.Timestamp.Before(b.Timestamp) {
			return -1
		}
		return 1
	}
	if a.Symbol != b.Symbol {
		if a.Symbol < b.Symbol {
			return -1
		}
		return 1
	}
	if a.Type != b.Type {
		if a.Type < b.Type {
			return -1
		}
		return 1
	}
	return 0
}

// IsOrdered reports whether events are in replay order.
func IsOrdered(events []*Event) bool {
	for i := 1; i < len(events); i++ {
		if compareEvents(events[i-1], events[i]) > 0 {
			return false
		}
	}
	return true
}
