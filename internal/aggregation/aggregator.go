// Package aggregation combines per-source signal snapshots into one AggregatedSignal.
package aggregation

import (
	"fmt"
	"math"

	"stock-bot-lab/internal/domain"
)

// directionEps is the magnitude below which a weighted score counts as neutral.
const directionEps = 1e-9

// present is an enabled source that produced a snapshot this tick.
type present struct {
	cfg  domain.SourceConfig
	snap domain.SignalSnapshot
}

// Aggregate combines snapshots with the given method.
//
// Only sources that are both enabled in sources and present in snapshots take
// part; weights are renormalized over them. Zero present sources yields a
// neutral signal with zero confidence. Never returns an error: configuration
// problems fail closed to neutral with the reason recorded.
func Aggregate(method domain.AggregationMethod, sources []domain.SourceConfig, snapshots map[string]domain.SignalSnapshot) domain.AggregatedSignal {
	if method == nil {
		return neutral("", "no aggregation method configured")
	}

	ps := collect(sources, snapshots)
	if len(ps) == 0 {
		return neutral(method.Name(), "no signal sources available")
	}

	switch m := method.(type) {
	case domain.WeightedAverage:
		return weightedAverage(ps)
	case domain.EnsembleVoting:
		return ensembleVoting(ps)
	case domain.ThresholdBased:
		return thresholdBased(ps)
	case domain.CustomRule:
		return customRule(m.Rules, ps)
	}
	return neutral(method.Name(), fmt.Sprintf("unsupported aggregation method %q", method.Name()))
}

// collect returns enabled, present sources in configured order.
func collect(sources []domain.SourceConfig, snapshots map[string]domain.SignalSnapshot) []present {
	out := make([]present, 0, len(sources))
	for _, cfg := range sources {
		if !cfg.Enabled {
			continue
		}
		snap, ok := snapshots[cfg.ID]
		if !ok {
			continue
		}
		snap.Normalize()
		out = append(out, present{cfg: cfg, snap: snap})
	}
	return out
}

// renormalize returns each present source's weight divided by the present total.
// If every present weight is zero the sources share equally.
func renormalize(ps []present) []float64 {
	total := 0.0
	for _, p := range ps {
		total += p.cfg.Weight
	}
	weights := make([]float64, len(ps))
	for i, p := range ps {
		if total > 0 {
			weights[i] = p.cfg.Weight / total
		} else {
			weights[i] = 1 / float64(len(ps))
		}
	}
	return weights
}

func contributions(ps []present, weights []float64) []domain.Contribution {
	out := make([]domain.Contribution, len(ps))
	for i, p := range ps {
		out[i] = domain.Contribution{
			SourceID:   p.cfg.ID,
			Weight:     weights[i],
			Direction:  p.snap.Direction,
			Confidence: p.snap.Confidence,
			Value:      p.snap.Value,
		}
	}
	return out
}

func weightedAverage(ps []present) domain.AggregatedSignal {
	weights := renormalize(ps)
	score := 0.0
	for i, p := range ps {
		score += p.snap.Confidence * p.snap.Direction.Sign() * weights[i]
	}
	return domain.AggregatedSignal{
		Method:        domain.AggregationWeightedAverage,
		Direction:     domain.DirectionFromScore(score, directionEps),
		Confidence:    clamp01(math.Abs(score)),
		Score:         score,
		Contributions: contributions(ps, weights),
	}
}

func ensembleVoting(ps []present) domain.AggregatedSignal {
	votes := map[domain.Direction]int{}
	for _, p := range ps {
		votes[p.snap.Direction]++
	}

	weights := make([]float64, len(ps))
	for i := range weights {
		weights[i] = 1 / float64(len(ps))
	}

	// Deterministic iteration so ties are detected the same way every time.
	dirs := []domain.Direction{domain.DirectionBullish, domain.DirectionBearish, domain.DirectionNeutral}
	best, bestVotes, tied := domain.DirectionNeutral, -1, false
	for _, dir := range dirs {
		switch {
		case votes[dir] > bestVotes:
			best, bestVotes, tied = dir, votes[dir], false
		case votes[dir] == bestVotes:
			tied = true
		}
	}

	sig := domain.AggregatedSignal{
		Method:        domain.AggregationEnsembleVoting,
		Direction:     best,
		Confidence:    float64(bestVotes) / float64(len(ps)),
		Contributions: contributions(ps, weights),
	}
	if tied {
		sig.Direction = domain.DirectionNeutral
		sig.Reason = "vote tie"
	}
	return sig
}

func thresholdBased(ps []present) domain.AggregatedSignal {
	weights := renormalize(ps)
	sig := domain.AggregatedSignal{
		Method:        domain.AggregationThresholdBased,
		Direction:     domain.DirectionNeutral,
		Contributions: contributions(ps, weights),
	}

	dir := ps[0].snap.Direction
	if dir == domain.DirectionNeutral {
		sig.Reason = fmt.Sprintf("source %s is neutral", ps[0].cfg.ID)
		return sig
	}
	confidence := 0.0
	for i, p := range ps {
		if p.snap.Direction != dir {
			sig.Reason = "sources disagree on direction"
			return sig
		}
		if p.snap.Confidence <= p.cfg.Threshold {
			sig.Reason = fmt.Sprintf("source %s confidence %.3f not above threshold %.3f", p.cfg.ID, p.snap.Confidence, p.cfg.Threshold)
			return sig
		}
		confidence += p.snap.Confidence * weights[i]
	}

	sig.Direction = dir
	sig.Confidence = clamp01(confidence)
	sig.Score = dir.Sign() * sig.Confidence
	return sig
}

func neutral(method, reason string) domain.AggregatedSignal {
	return domain.AggregatedSignal{
		Method:    method,
		Direction: domain.DirectionNeutral,
		Reason:    reason,
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
