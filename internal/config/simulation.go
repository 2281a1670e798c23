package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"stock-bot-lab/internal/domain"
)

// DateLayout is the format of start_date, end_date and acquired_at.
const DateLayout = "2006-01-02"

// DefaultRiskScoreThreshold applies when a bot omits risk_score_threshold.
const DefaultRiskScoreThreshold = 80.0

// Amount is a money value kept as text until it is parsed into a decimal.
// JSON accepts both numbers and strings.
type Amount string

// UnmarshalJSON accepts 100, 100.5 and "100.5".
func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*a = ""
		return nil
	}
	*a = Amount(strings.Trim(s, `"`))
	return nil
}

// Decimal parses the amount. The empty amount is zero.
func (a Amount) Decimal() (decimal.Decimal, error) {
	if a == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(string(a))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: invalid amount %q", domain.ErrInvalidConfig, string(a))
	}
	return d, nil
}

// SimulationSpec is the file and API form of a simulation request.
type SimulationSpec struct {
	Name      string    `mapstructure:"name" json:"name"`
	StartDate string    `mapstructure:"start_date" json:"start_date"`
	EndDate   string    `mapstructure:"end_date" json:"end_date"`
	Symbols   []string  `mapstructure:"symbols" json:"symbols"`
	Interval  string    `mapstructure:"interval" json:"interval"`
	Bots      []BotSpec `mapstructure:"bots" json:"bots"`
}

// BotSpec is the file and API form of a bot configuration.
type BotSpec struct {
	ID          string          `mapstructure:"id" json:"id"`
	Name        string          `mapstructure:"name" json:"name"`
	Budget      BudgetSpec      `mapstructure:"budget" json:"budget"`
	Symbols     []string        `mapstructure:"symbols" json:"symbols"`
	Risk        RiskSpec        `mapstructure:"risk" json:"risk"`
	Sources     []SourceSpec    `mapstructure:"sources" json:"sources"`
	Aggregation AggregationSpec `mapstructure:"aggregation" json:"aggregation"`

	RiskScoreThreshold   *float64        `mapstructure:"risk_score_threshold" json:"risk_score_threshold"`
	RiskAdjustmentFactor float64         `mapstructure:"risk_adjustment_factor" json:"risk_adjustment_factor"`
	RiskBasedScaling     bool            `mapstructure:"risk_based_scaling" json:"risk_based_scaling"`
	Persistence          PersistenceSpec `mapstructure:"persistence" json:"persistence"`
	EntryDiscountPct     float64         `mapstructure:"entry_discount_pct" json:"entry_discount_pct"`
}

type BudgetSpec struct {
	Cash      Amount         `mapstructure:"cash" json:"cash"`
	Positions []PositionSpec `mapstructure:"positions" json:"positions"`
}

type PositionSpec struct {
	Symbol     string `mapstructure:"symbol" json:"symbol"`
	Quantity   int64  `mapstructure:"quantity" json:"quantity"`
	Price      Amount `mapstructure:"price" json:"price"`
	AcquiredAt string `mapstructure:"acquired_at" json:"acquired_at"`
}

type RiskSpec struct {
	RiskPerTradePct float64 `mapstructure:"risk_per_trade_pct" json:"risk_per_trade_pct"`
	StopLossPct     float64 `mapstructure:"stop_loss_pct" json:"stop_loss_pct"`
	TakeProfitPct   float64 `mapstructure:"take_profit_pct" json:"take_profit_pct"`
	MaxPositionSize Amount  `mapstructure:"max_position_size" json:"max_position_size"`
	MaxDailyTrades  int     `mapstructure:"max_daily_trades" json:"max_daily_trades"`
	MaxDailyLoss    Amount  `mapstructure:"max_daily_loss" json:"max_daily_loss"`
}

// SourceSpec enables one signal source. Enabled defaults to true.
type SourceSpec struct {
	ID        string             `mapstructure:"id" json:"id"`
	Kind      string             `mapstructure:"kind" json:"kind"`
	Enabled   *bool              `mapstructure:"enabled" json:"enabled"`
	Weight    float64            `mapstructure:"weight" json:"weight"`
	Threshold float64            `mapstructure:"threshold" json:"threshold"`
	Indicator string             `mapstructure:"indicator" json:"indicator"`
	Endpoint  string             `mapstructure:"endpoint" json:"endpoint"`
	Params    map[string]float64 `mapstructure:"params" json:"params"`
}

// AggregationSpec names the method. Rules is required for custom_rule.
type AggregationSpec struct {
	Method string          `mapstructure:"method" json:"method"`
	Rules  *domain.RuleSet `mapstructure:"rules" json:"rules"`
}

type PersistenceSpec struct {
	Mode  string  `mapstructure:"mode" json:"mode"`
	Value float64 `mapstructure:"value" json:"value"`
}

// LoadSimulation reads a simulation spec file (YAML or JSON by extension).
func LoadSimulation(path string) (SimulationSpec, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return SimulationSpec{}, fmt.Errorf("read simulation spec %s: %w", path, err)
	}

	var spec SimulationSpec
	if err := v.Unmarshal(&spec); err != nil {
		return SimulationSpec{}, fmt.Errorf("decode simulation spec %s: %w", path, err)
	}
	return spec, nil
}

// Build converts s into a validated request.
func (s SimulationSpec) Build() (domain.SimulationRequest, error) {
	start, err := parseDate("start_date", s.StartDate)
	if err != nil {
		return domain.SimulationRequest{}, err
	}
	end, err := parseDate("end_date", s.EndDate)
	if err != nil {
		return domain.SimulationRequest{}, err
	}

	interval := s.Interval
	if interval == "" {
		interval = domain.Interval1Min
	}

	req := domain.SimulationRequest{
		Name:      s.Name,
		StartDate: start,
		EndDate:   end,
		Symbols:   s.Symbols,
		Interval:  interval,
	}
	for _, b := range s.Bots {
		bot, err := b.Build()
		if err != nil {
			return domain.SimulationRequest{}, err
		}
		req.Bots = append(req.Bots, bot)
	}
	if err := req.Validate(); err != nil {
		return domain.SimulationRequest{}, err
	}
	return req, nil
}

// Build converts b into a BotConfig and validates it.
// Version and CreatedAt are assigned when the config is stored.
func (b BotSpec) Build() (domain.BotConfig, error) {
	cash, err := b.Budget.Cash.Decimal()
	if err != nil {
		return domain.BotConfig{}, fmt.Errorf("bot %s cash: %w", b.ID, err)
	}
	maxPosition, err := b.Risk.MaxPositionSize.Decimal()
	if err != nil {
		return domain.BotConfig{}, fmt.Errorf("bot %s max_position_size: %w", b.ID, err)
	}
	maxLoss, err := b.Risk.MaxDailyLoss.Decimal()
	if err != nil {
		return domain.BotConfig{}, fmt.Errorf("bot %s max_daily_loss: %w", b.ID, err)
	}

	method := b.Aggregation.Method
	if method == "" {
		method = domain.AggregationWeightedAverage
	}
	agg, err := domain.ParseAggregationMethod(method, b.Aggregation.Rules)
	if err != nil {
		return domain.BotConfig{}, fmt.Errorf("bot %s: %w", b.ID, err)
	}

	threshold := DefaultRiskScoreThreshold
	if b.RiskScoreThreshold != nil {
		threshold = *b.RiskScoreThreshold
	}

	cfg := domain.BotConfig{
		ID:      b.ID,
		Name:    b.Name,
		Budget:  domain.Budget{Cash: cash},
		Symbols: b.Symbols,
		Risk: domain.RiskParams{
			RiskPerTradePct: b.Risk.RiskPerTradePct,
			StopLossPct:     b.Risk.StopLossPct,
			TakeProfitPct:   b.Risk.TakeProfitPct,
			MaxPositionSize: maxPosition,
			MaxDailyTrades:  b.Risk.MaxDailyTrades,
			MaxDailyLoss:    maxLoss,
		},
		Aggregation:          agg,
		RiskScoreThreshold:   threshold,
		RiskAdjustmentFactor: b.RiskAdjustmentFactor,
		RiskBasedScaling:     b.RiskBasedScaling,
		Persistence: domain.PersistenceConfig{
			Mode:  domain.PersistenceMode(b.Persistence.Mode),
			Value: b.Persistence.Value,
		},
		EntryDiscountPct: b.EntryDiscountPct,
	}
	if cfg.Name == "" {
		cfg.Name = cfg.ID
	}

	for _, p := range b.Budget.Positions {
		price, err := p.Price.Decimal()
		if err != nil {
			return domain.BotConfig{}, fmt.Errorf("bot %s position %s: %w", b.ID, p.Symbol, err)
		}
		var acquired time.Time
		if p.AcquiredAt != "" {
			if acquired, err = parseDate("acquired_at", p.AcquiredAt); err != nil {
				return domain.BotConfig{}, fmt.Errorf("bot %s position %s: %w", b.ID, p.Symbol, err)
			}
		}
		cfg.Budget.Positions = append(cfg.Budget.Positions, domain.InitialPosition{
			Symbol:     p.Symbol,
			Quantity:   p.Quantity,
			Price:      price,
			AcquiredAt: acquired,
		})
	}

	for _, s := range b.Sources {
		enabled := true
		if s.Enabled != nil {
			enabled = *s.Enabled
		}
		weight := s.Weight
		if weight == 0 {
			weight = 1
		}
		cfg.Sources = append(cfg.Sources, domain.SourceConfig{
			ID:        s.ID,
			Kind:      domain.SourceKind(s.Kind),
			Enabled:   enabled,
			Weight:    weight,
			Threshold: s.Threshold,
			Indicator: s.Indicator,
			Endpoint:  s.Endpoint,
			Params:    s.Params,
		})
	}

	if err := cfg.Validate(); err != nil {
		return domain.BotConfig{}, err
	}
	return cfg, nil
}

func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: %s is required", domain.ErrInvalidConfig, field)
	}
	t, err := time.ParseInLocation(DateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD, got %q", domain.ErrInvalidConfig, field, value)
	}
	return t, nil
}
