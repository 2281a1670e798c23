package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// PersistenceMode selects how a signal must persist before it may fire.
type PersistenceMode string

const (
	PersistenceNone         PersistenceMode = ""
	PersistenceTickCount    PersistenceMode = "tick_count"
	PersistenceTimeDuration PersistenceMode = "time_duration"
)

// IsValid checks if the mode is a known value.
func (m PersistenceMode) IsValid() bool {
	return m == PersistenceNone || m == PersistenceTickCount || m == PersistenceTimeDuration
}

// PersistenceConfig configures signal persistence gating.
// Value is a tick count in tick_count mode and seconds in time_duration mode.
type PersistenceConfig struct {
	Mode  PersistenceMode `json:"mode"`
	Value float64         `json:"value"`
}

// Duration returns Value as a time.Duration (time_duration mode).
func (p PersistenceConfig) Duration() time.Duration {
	return time.Duration(p.Value * float64(time.Second))
}

// Ticks returns Value as a tick count, at least 1 (tick_count mode).
func (p PersistenceConfig) Ticks() int {
	n := int(math.Round(p.Value))
	if n < 1 {
		return 1
	}
	return n
}

// InitialPosition is an existing holding a bot starts with.
type InitialPosition struct {
	Symbol     string          `json:"symbol"`
	Quantity   int64           `json:"quantity"`
	Price      decimal.Decimal `json:"price"` // cost basis per share
	AcquiredAt time.Time       `json:"acquired_at"`
}

// Budget is a bot's starting capital: cash, existing positions, or both.
type Budget struct {
	Cash      decimal.Decimal   `json:"cash"`
	Positions []InitialPosition `json:"positions,omitempty"`
}

// RiskParams are per-bot risk limits. Percentages are expressed as 0-100.
// Zero MaxDailyTrades, MaxDailyLoss or MaxPositionSize disables that limit.
type RiskParams struct {
	RiskPerTradePct float64         `json:"risk_per_trade_pct"`
	StopLossPct     float64         `json:"stop_loss_pct"`
	TakeProfitPct   float64         `json:"take_profit_pct"`
	MaxPositionSize decimal.Decimal `json:"max_position_size"` // max market value held per symbol
	MaxDailyTrades  int             `json:"max_daily_trades"`
	MaxDailyLoss    decimal.Decimal `json:"max_daily_loss"`
}

// SourceConfig enables one signal source for a bot.
type SourceConfig struct {
	ID        string             `json:"id"`
	Kind      SourceKind         `json:"kind"`
	Enabled   bool               `json:"enabled"`
	Weight    float64            `json:"weight"`
	Threshold float64            `json:"threshold"` // threshold_based minimum confidence
	Indicator string             `json:"indicator,omitempty"`
	Endpoint  string             `json:"endpoint,omitempty"`
	Params    map[string]float64 `json:"params,omitempty"`
}

// Param returns a numeric parameter or def when unset.
func (s SourceConfig) Param(name string, def float64) float64 {
	if v, ok := s.Params[name]; ok {
		return v
	}
	return def
}

// BotConfig is an immutable, versioned bot definition.
// A simulation run references a specific (ID, Version).
type BotConfig struct {
	ID      string         `json:"id"`
	Version int            `json:"version"`
	Name    string         `json:"name"`
	Budget  Budget         `json:"budget"`
	Symbols []string       `json:"symbols"`
	Risk    RiskParams     `json:"risk"`
	Sources []SourceConfig `json:"sources"`

	Aggregation          AggregationMethod `json:"-"`
	RiskScoreThreshold   float64           `json:"risk_score_threshold"`
	RiskAdjustmentFactor float64           `json:"risk_adjustment_factor"`
	RiskBasedScaling     bool              `json:"risk_based_scaling"`
	Persistence          PersistenceConfig `json:"persistence"`

	// EntryDiscountPct > 0 places buys as target orders at price × (1 - pct/100).
	EntryDiscountPct float64 `json:"entry_discount_pct"`

	CreatedAt time.Time `json:"created_at"`
}

// EnabledSources returns the enabled sources in configured order.
func (b *BotConfig) EnabledSources() []SourceConfig {
	out := make([]SourceConfig, 0, len(b.Sources))
	for _, s := range b.Sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// Source returns the configured source with the given id.
func (b *BotConfig) Source(id string) (SourceConfig, bool) {
	for _, s := range b.Sources {
		if s.ID == id {
			return s, true
		}
	}
	return SourceConfig{}, false
}

// TradesSymbol reports whether the symbol is in the bot's universe.
func (b *BotConfig) TradesSymbol(symbol string) bool {
	for _, s := range b.Symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// Validate checks the configuration. All errors wrap ErrInvalidConfig.
func (b *BotConfig) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("%w: bot id is required", ErrInvalidConfig)
	}
	if len(b.Symbols) == 0 {
		return fmt.Errorf("%w: bot %s has no symbols", ErrInvalidConfig, b.ID)
	}
	if b.Budget.Cash.IsNegative() {
		return fmt.Errorf("%w: bot %s has negative cash", ErrInvalidConfig, b.ID)
	}
	for _, p := range b.Budget.Positions {
		if p.Symbol == "" || p.Quantity <= 0 || !p.Price.IsPositive() {
			return fmt.Errorf("%w: bot %s has an invalid initial position", ErrInvalidConfig, b.ID)
		}
	}
	if b.Budget.Cash.IsZero() && len(b.Budget.Positions) == 0 {
		return fmt.Errorf("%w: bot %s has an empty budget", ErrInvalidConfig, b.ID)
	}
	if err := b.Risk.validate(); err != nil {
		return fmt.Errorf("%w: bot %s: %v", ErrInvalidConfig, b.ID, err)
	}
	if err := b.validateSources(); err != nil {
		return err
	}
	if b.Aggregation == nil {
		return fmt.Errorf("%w: bot %s has no aggregation method", ErrInvalidConfig, b.ID)
	}
	if cr, ok := b.Aggregation.(CustomRule); ok {
		if err := cr.Rules.Validate(); err != nil {
			return fmt.Errorf("bot %s: %w", b.ID, err)
		}
	}
	if b.RiskScoreThreshold < 0 || b.RiskScoreThreshold > 100 {
		return fmt.Errorf("%w: bot %s risk_score_threshold must be in [0,100]", ErrInvalidConfig, b.ID)
	}
	if b.RiskAdjustmentFactor < 0 {
		return fmt.Errorf("%w: bot %s risk_adjustment_factor must be >= 0", ErrInvalidConfig, b.ID)
	}
	if !b.Persistence.Mode.IsValid() {
		return fmt.Errorf("%w: bot %s unknown persistence mode %q", ErrInvalidConfig, b.ID, b.Persistence.Mode)
	}
	if b.Persistence.Mode != PersistenceNone && b.Persistence.Value <= 0 {
		return fmt.Errorf("%w: bot %s persistence value must be > 0", ErrInvalidConfig, b.ID)
	}
	if b.EntryDiscountPct < 0 || b.EntryDiscountPct >= 100 {
		return fmt.Errorf("%w: bot %s entry_discount_pct must be in [0,100)", ErrInvalidConfig, b.ID)
	}
	return nil
}

func (b *BotConfig) validateSources() error {
	seen := make(map[string]struct{}, len(b.Sources))
	total := 0.0
	enabled := 0
	for _, s := range b.Sources {
		if s.ID == "" {
			return fmt.Errorf("%w: bot %s has a source without id", ErrInvalidConfig, b.ID)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("%w: bot %s has duplicate source %s", ErrInvalidConfig, b.ID, s.ID)
		}
		seen[s.ID] = struct{}{}
		if !s.Kind.IsValid() {
			return fmt.Errorf("%w: source %s has unknown kind %q", ErrInvalidConfig, s.ID, s.Kind)
		}
		if s.Weight < 0 || math.IsNaN(s.Weight) || math.IsInf(s.Weight, 0) {
			return fmt.Errorf("%w: source %s has invalid weight", ErrInvalidConfig, s.ID)
		}
		if s.Threshold < 0 || s.Threshold > 1 {
			return fmt.Errorf("%w: source %s threshold must be in [0,1]", ErrInvalidConfig, s.ID)
		}
		if s.Enabled {
			enabled++
			total += s.Weight
		}
	}
	if enabled == 0 {
		return fmt.Errorf("%w: bot %s has no enabled sources", ErrInvalidConfig, b.ID)
	}
	if total <= 0 {
		return fmt.Errorf("%w: bot %s enabled source weights sum to zero", ErrInvalidConfig, b.ID)
	}
	return nil
}

func (r RiskParams) validate() error {
	if r.RiskPerTradePct < 0 || r.RiskPerTradePct > 100 {
		return fmt.Errorf("risk_per_trade_pct must be in [0,100]")
	}
	if r.StopLossPct < 0 || r.StopLossPct >= 100 {
		return fmt.Errorf("stop_loss_pct must be in [0,100)")
	}
	if r.TakeProfitPct < 0 {
		return fmt.Errorf("take_profit_pct must be >= 0")
	}
	if r.MaxDailyTrades < 0 {
		return fmt.Errorf("max_daily_trades must be >= 0")
	}
	if r.MaxDailyLoss.IsNegative() || r.MaxPositionSize.IsNegative() {
		return fmt.Errorf("limits must be >= 0")
	}
	return nil
}

// Clone returns a deep copy. Rule trees are shared; they are never mutated after parsing.
func (b *BotConfig) Clone() *BotConfig {
	c := *b
	c.Symbols = append([]string(nil), b.Symbols...)
	c.Budget.Positions = append([]InitialPosition(nil), b.Budget.Positions...)
	c.Sources = make([]SourceConfig, len(b.Sources))
	for i, s := range b.Sources {
		if s.Params != nil {
			params := make(map[string]float64, len(s.Params))
			for k, v := range s.Params {
				params[k] = v
			}
			s.Params = params
		}
		c.Sources[i] = s
	}
	return &c
}
