package domain

import (
	"fmt"
)

// Rule operators.
const (
	RuleOpAnd     = "and"
	RuleOpOr      = "or"
	RuleOpNot     = "not"
	RuleOpGt      = "gt"
	RuleOpGte     = "gte"
	RuleOpLt      = "lt"
	RuleOpLte     = "lte"
	RuleOpEq      = "eq"
	RuleOpPresent = "present"
)

// Source fields a comparison node may read.
const (
	RuleFieldValue      = "value"
	RuleFieldConfidence = "confidence"
	RuleFieldDirection  = "direction"
	RuleFieldSign       = "sign"
)

// RuleNode is one node of a custom aggregation rule tree.
//
// Boolean nodes (and, or, not) use Args. Comparison nodes (gt, gte, lt, lte, eq)
// read Field of Source and compare it with Number, or with Text for direction.
// present is true when Source produced a snapshot this tick.
type RuleNode struct {
	Op     string      `json:"op" mapstructure:"op"`
	Args   []*RuleNode `json:"args,omitempty" mapstructure:"args"`
	Source string      `json:"source,omitempty" mapstructure:"source"`
	Field  string      `json:"field,omitempty" mapstructure:"field"`
	Number *float64    `json:"number,omitempty" mapstructure:"number"`
	Text   string      `json:"text,omitempty" mapstructure:"text"`
}

// RuleSet holds the buy and sell trees. A tick is bullish when only Buy holds,
// bearish when only Sell holds, neutral otherwise.
type RuleSet struct {
	Buy  *RuleNode `json:"buy,omitempty" mapstructure:"buy"`
	Sell *RuleNode `json:"sell,omitempty" mapstructure:"sell"`
}

// Validate checks the structure of both trees.
func (rs RuleSet) Validate() error {
	if rs.Buy == nil && rs.Sell == nil {
		return fmt.Errorf("%w: rule set has neither buy nor sell tree", ErrInvalidConfig)
	}
	if rs.Buy != nil {
		if err := rs.Buy.Validate(); err != nil {
			return fmt.Errorf("buy rule: %w", err)
		}
	}
	if rs.Sell != nil {
		if err := rs.Sell.Validate(); err != nil {
			return fmt.Errorf("sell rule: %w", err)
		}
	}
	return nil
}

// Validate checks that the node and its children are well formed.
func (n *RuleNode) Validate() error {
	if n == nil {
		return fmt.Errorf("%w: nil rule node", ErrInvalidConfig)
	}
	switch n.Op {
	case RuleOpAnd, RuleOpOr:
		if len(n.Args) == 0 {
			return fmt.Errorf("%w: %s needs at least one argument", ErrInvalidConfig, n.Op)
		}
		for _, a := range n.Args {
			if err := a.Validate(); err != nil {
				return err
			}
		}
		return nil
	case RuleOpNot:
		if len(n.Args) != 1 {
			return fmt.Errorf("%w: not needs exactly one argument", ErrInvalidConfig)
		}
		return n.Args[0].Validate()
	case RuleOpPresent:
		if n.Source == "" {
			return fmt.Errorf("%w: present needs a source", ErrInvalidConfig)
		}
		return nil
	case RuleOpGt, RuleOpGte, RuleOpLt, RuleOpLte, RuleOpEq:
		if n.Source == "" {
			return fmt.Errorf("%w: %s needs a source", ErrInvalidConfig, n.Op)
		}
		switch n.Field {
		case RuleFieldValue, RuleFieldConfidence, RuleFieldSign:
			if n.Number == nil {
				return fmt.Errorf("%w: %s on %s needs a number", ErrInvalidConfig, n.Op, n.Field)
			}
		case RuleFieldDirection:
			if n.Op != RuleOpEq || !Direction(n.Text).IsValid() {
				return fmt.Errorf("%w: direction supports only eq with bullish|bearish|neutral", ErrInvalidConfig)
			}
		default:
			return fmt.Errorf("%w: unknown field %q", ErrInvalidConfig, n.Field)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown operator %q", ErrInvalidConfig, n.Op)
}

// Sources returns every source id referenced by the tree.
func (n *RuleNode) Sources() []string {
	if n == nil {
		return nil
	}
	var out []string
	if n.Source != "" {
		out = append(out, n.Source)
	}
	for _, a := range n.Args {
		out = append(out, a.Sources()...)
	}
	return out
}
