// Package persistence gates aggregated signals until their direction has held
// for a configured number of ticks or span of simulated time.
package persistence

import (
	"time"

	"stock-bot-lab/internal/domain"
)

// streak is the current run of one direction for a symbol.
type streak struct {
	direction domain.Direction
	count     int
	since     time.Time
	last      time.Time
}

// Tracker holds per-symbol direction history for one bot.
// Not safe for concurrent use: a bot processes its ticks sequentially.
type Tracker struct {
	cfg     domain.PersistenceConfig
	streaks map[string]*streak
}

// NewTracker creates a tracker for the given persistence configuration.
func NewTracker(cfg domain.PersistenceConfig) *Tracker {
	return &Tracker{
		cfg:     cfg,
		streaks: make(map[string]*streak),
	}
}

// Observe records the aggregated direction of symbol at ts and reports whether
// acting on it is permitted.
//
// A direction change resets the streak immediately. Neutral never permits and
// clears the streak. With no mode configured every non-neutral direction passes.
func (t *Tracker) Observe(symbol string, dir domain.Direction, ts time.Time) domain.PersistenceState {
	s, ok := t.streaks[symbol]
	if !ok {
		s = &streak{}
		t.streaks[symbol] = s
	}

	switch {
	case dir == domain.DirectionNeutral:
		*s = streak{direction: domain.DirectionNeutral, last: ts}
	case s.direction == dir && s.count > 0:
		s.count++
		s.last = ts
	default:
		*s = streak{direction: dir, count: 1, since: ts, last: ts}
	}

	state := domain.PersistenceState{
		Direction: dir,
		Count:     s.count,
	}
	if s.count > 0 {
		state.Held = s.last.Sub(s.since)
	}
	state.Permitted = t.permitted(s)
	return state
}

// Current returns the tracked state of symbol without observing anything.
func (t *Tracker) Current(symbol string) domain.PersistenceState {
	s, ok := t.streaks[symbol]
	if !ok {
		return domain.PersistenceState{Direction: domain.DirectionNeutral}
	}
	state := domain.PersistenceState{Direction: s.direction, Count: s.count}
	if s.count > 0 {
		state.Held = s.last.Sub(s.since)
	}
	state.Permitted = t.permitted(s)
	return state
}

func (t *Tracker) permitted(s *streak) bool {
	if s.direction == domain.DirectionNeutral || s.count == 0 {
		return false
	}
	switch t.cfg.Mode {
	case domain.PersistenceTickCount:
		return s.count >= t.cfg.Ticks()
	case domain.PersistenceTimeDuration:
		return s.last.Sub(s.since) >= t.cfg.Duration()
	}
	return true
}
