package domain

import (
	"math"
	"time"
)

// SourceKind is the family a signal source belongs to.
type SourceKind string

const (
	SourceKindIndicator SourceKind = "indicator"
	SourceKindPattern   SourceKind = "pattern"
	SourceKindML        SourceKind = "ml"
	SourceKindSocial    SourceKind = "social"
	SourceKindNews      SourceKind = "news"
)

// String returns the string representation of SourceKind.
func (k SourceKind) String() string {
	return string(k)
}

// IsValid checks if the kind is a known value.
func (k SourceKind) IsValid() bool {
	switch k {
	case SourceKindIndicator, SourceKindPattern, SourceKindML, SourceKindSocial, SourceKindNews:
		return true
	}
	return false
}

// IsPrediction reports whether the kind is served by a remote prediction endpoint.
func (k SourceKind) IsPrediction() bool {
	return k == SourceKindML || k == SourceKindSocial || k == SourceKindNews
}

// Direction is the directional opinion of a signal.
type Direction string

const (
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
	DirectionNeutral Direction = "neutral"
)

// Sign maps bullish to +1, bearish to -1 and anything else to 0.
func (d Direction) Sign() float64 {
	switch d {
	case DirectionBullish:
		return 1
	case DirectionBearish:
		return -1
	}
	return 0
}

// IsValid checks if the direction is a known value.
func (d Direction) IsValid() bool {
	return d == DirectionBullish || d == DirectionBearish || d == DirectionNeutral
}

// DirectionFromScore returns the direction of a signed score.
// Scores within eps of zero are neutral.
func DirectionFromScore(score, eps float64) Direction {
	switch {
	case score > eps:
		return DirectionBullish
	case score < -eps:
		return DirectionBearish
	}
	return DirectionNeutral
}

// SignalSnapshot is one source's output for one (symbol, tick).
type SignalSnapshot struct {
	SourceID   string     `json:"source_id"`
	Kind       SourceKind `json:"kind"`
	Symbol     string     `json:"symbol"`
	Timestamp  time.Time  `json:"timestamp"`  // tick time the signal refers to
	Value      float64    `json:"value"`      // raw normalized value (e.g. RSI, predicted return)
	Direction  Direction  `json:"direction"`  // bullish | bearish | neutral
	Confidence float64    `json:"confidence"` // [0,1]
}

// Normalize clamps confidence into [0,1] and coerces unknown directions to neutral.
func (s *SignalSnapshot) Normalize() {
	if !s.Direction.IsValid() {
		s.Direction = DirectionNeutral
	}
	if math.IsNaN(s.Confidence) || s.Confidence < 0 {
		s.Confidence = 0
	}
	if s.Confidence > 1 {
		s.Confidence = 1
	}
}

// Contribution is one source's share of an AggregatedSignal.
type Contribution struct {
	SourceID   string    `json:"source_id"`
	Weight     float64   `json:"weight"` // applied (renormalized) weight
	Direction  Direction `json:"direction"`
	Confidence float64   `json:"confidence"`
	Value      float64   `json:"value"`
}

// AggregatedSignal is the combination of snapshots for one (bot, symbol, tick).
type AggregatedSignal struct {
	Method        string         `json:"method"`
	Direction     Direction      `json:"direction"`
	Confidence    float64        `json:"confidence"` // [0,1]
	Score         float64        `json:"score"`      // signed, weighted_average only
	Contributions []Contribution `json:"contributions"`
	Reason        string         `json:"reason,omitempty"`
}
