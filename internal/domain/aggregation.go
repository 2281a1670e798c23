package domain

import (
	"fmt"
)

// Aggregation method names as they appear in configuration.
const (
	AggregationWeightedAverage = "weighted_average"
	AggregationEnsembleVoting  = "ensemble_voting"
	AggregationThresholdBased  = "threshold_based"
	AggregationCustomRule      = "custom_rule"
)

// AggregationMethod is a closed set of strategies for combining signals.
// Only the variants declared in this package implement it.
type AggregationMethod interface {
	Name() string
	isAggregationMethod()
}

// WeightedAverage combines confidence × direction sign × renormalized weight.
type WeightedAverage struct{}

// EnsembleVoting picks the majority direction among present sources.
type EnsembleVoting struct{}

// ThresholdBased fires only when every present source clears its threshold in one direction.
type ThresholdBased struct{}

// CustomRule evaluates a declarative rule set over source outputs.
type CustomRule struct {
	Rules RuleSet
}

func (WeightedAverage) Name() string { return AggregationWeightedAverage }
func (EnsembleVoting) Name() string { return AggregationEnsembleVoting }
func (ThresholdBased) Name() string { return AggregationThresholdBased }
func (CustomRule) Name() string { return AggregationCustomRule }

func (WeightedAverage) isAggregationMethod() {}
func (EnsembleVoting) isAggregationMethod() {}
func (ThresholdBased) isAggregationMethod() {}
func (CustomRule) isAggregationMethod() {}

// ParseAggregationMethod builds a method from its configured name.
// rules is required for custom_rule and ignored otherwise.
func ParseAggregationMethod(name string, rules *RuleSet) (AggregationMethod, error) {
	switch name {
	case AggregationWeightedAverage:
		return WeightedAverage{}, nil
	case AggregationEnsembleVoting:
		return EnsembleVoting{}, nil
	case AggregationThresholdBased:
		return ThresholdBased{}, nil
	case AggregationCustomRule:
		if rules == nil {
			return nil, fmt.Errorf("%w: custom_rule requires rules", ErrInvalidConfig)
		}
		if err := rules.Validate(); err != nil {
			return nil, err
		}
		return CustomRule{Rules: *rules}, nil
	}
	return nil, fmt.Errorf("%w: unknown aggregation method %q", ErrInvalidConfig, name)
}

// RulesOf returns the rule set of a custom_rule method, or nil.
func RulesOf(m AggregationMethod) *RuleSet {
	if cr, ok := m.(CustomRule); ok {
		rs := cr.Rules
		return &rs
	}
	return nil
}
