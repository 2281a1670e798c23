package aggregation

import (
	"fmt"

	"stock-bot-lab/internal/domain"
)

// customRule evaluates the buy and sell trees against present sources.
// Any evaluation error fails closed to neutral.
func customRule(rules domain.RuleSet, ps []present) domain.AggregatedSignal {
	weights := renormalize(ps)
	sig := domain.AggregatedSignal{
		Method:        domain.AggregationCustomRule,
		Direction:     domain.DirectionNeutral,
		Contributions: contributions(ps, weights),
	}

	if err := rules.Validate(); err != nil {
		sig.Reason = "malformed rule: " + err.Error()
		return sig
	}

	env := make(map[string]domain.SignalSnapshot, len(ps))
	for _, p := range ps {
		env[p.cfg.ID] = p.snap
	}

	buy, err := evalTree(rules.Buy, env)
	if err != nil {
		sig.Reason = "buy rule: " + err.Error()
		return sig
	}
	sell, err := evalTree(rules.Sell, env)
	if err != nil {
		sig.Reason = "sell rule: " + err.Error()
		return sig
	}

	switch {
	case buy && sell:
		sig.Reason = "buy and sell rules both matched"
		return sig
	case buy:
		sig.Direction = domain.DirectionBullish
	case sell:
		sig.Direction = domain.DirectionBearish
	default:
		sig.Reason = "no rule matched"
		return sig
	}

	confidence := 0.0
	for i, p := range ps {
		confidence += p.snap.Confidence * weights[i]
	}
	sig.Confidence = clamp01(confidence)
	sig.Score = sig.Direction.Sign() * sig.Confidence
	return sig
}

// evalTree evaluates an optional tree; a missing tree never matches.
func evalTree(n *domain.RuleNode, env map[string]domain.SignalSnapshot) (bool, error) {
	if n == nil {
		return false, nil
	}
	return Eval(n, env)
}

// Eval evaluates a rule node against the snapshots present this tick.
// A comparison on an absent source is false rather than an error.
func Eval(n *domain.RuleNode, env map[string]domain.SignalSnapshot) (bool, error) {
	if n == nil {
		return false, fmt.Errorf("%w: nil rule node", domain.ErrInvalidConfig)
	}

	switch n.Op {
	case domain.RuleOpAnd:
		for _, a := range n.Args {
			ok, err := Eval(a, env)
			if err != nil || !ok {
				return false, err
			}
		}
		return len(n.Args) > 0, nil

	case domain.RuleOpOr:
		for _, a := range n.Args {
			ok, err := Eval(a, env)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case domain.RuleOpNot:
		if len(n.Args) != 1 {
			return false, fmt.Errorf("%w: not needs exactly one argument", domain.ErrInvalidConfig)
		}
		ok, err := Eval(n.Args[0], env)
		return !ok && err == nil, err

	case domain.RuleOpPresent:
		_, ok := env[n.Source]
		return ok, nil

	case domain.RuleOpGt, domain.RuleOpGte, domain.RuleOpLt, domain.RuleOpLte, domain.RuleOpEq:
		snap, ok := env[n.Source]
		if !ok {
			return false, nil
		}
		if n.Field == domain.RuleFieldDirection {
			if n.Op != domain.RuleOpEq {
				return false, fmt.Errorf("%w: direction supports only eq", domain.ErrInvalidConfig)
			}
			return snap.Direction == domain.Direction(n.Text), nil
		}
		if n.Number == nil {
			return false, fmt.Errorf("%w: %s needs a number", domain.ErrInvalidConfig, n.Op)
		}
		lhs, err := field(snap, n.Field)
		if err != nil {
			return false, err
		}
		return compare(n.Op, lhs, *n.Number), nil
	}
	return false, fmt.Errorf("%w: unknown operator %q", domain.ErrInvalidConfig, n.Op)
}

func field(s domain.SignalSnapshot, name string) (float64, error) {
	switch name {
	case domain.RuleFieldValue:
		return s.Value, nil
	case domain.RuleFieldConfidence:
		return s.Confidence, nil
	case domain.RuleFieldSign:
		return s.Direction.Sign(), nil
	}
	return 0, fmt.Errorf("%w: unknown field %q", domain.ErrInvalidConfig, name)
}

func compare(op string, a, b float64) bool {
	switch op {
	case domain.RuleOpGt:
		return a > b
	case domain.RuleOpGte:
		return a >= b
	case domain.RuleOpLt:
		return a < b
	case domain.RuleOpLte:
		return a <= b
	}
	return a == b
}
