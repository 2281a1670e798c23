package signal

import (
	"context"
	"fmt"
	"math"

	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/indicators"
)

// Indicator names accepted in SourceConfig.Indicator.
const (
	IndicatorRSI       = "rsi"
	IndicatorEMACross  = "ema_cross"
	IndicatorMACD      = "macd"
	IndicatorBollinger = "bollinger"
	IndicatorMomentum  = "momentum"
)

// IndicatorSource interprets a pure indicator series as a directional signal.
type IndicatorSource struct {
	cfg domain.SourceConfig
}

// NewIndicatorSource validates the indicator name and returns a source.
func NewIndicatorSource(cfg domain.SourceConfig) (*IndicatorSource, error) {
	switch cfg.Indicator {
	case IndicatorRSI, IndicatorEMACross, IndicatorMACD, IndicatorBollinger, IndicatorMomentum:
		return &IndicatorSource{cfg: cfg}, nil
	}
	return nil, fmt.Errorf("%w: source %s has unknown indicator %q", domain.ErrInvalidConfig, cfg.ID, cfg.Indicator)
}

func (s *IndicatorSource) ID() string              { return s.cfg.ID }
func (s *IndicatorSource) Kind() domain.SourceKind { return s.cfg.Kind }

// Signal computes the indicator over the close history.
// Not enough history yields no snapshot.
func (s *IndicatorSource) Signal(_ context.Context, in Input) (*domain.SignalSnapshot, error) {
	closes := indicators.Closes(in.History)
	if len(closes) == 0 {
		return nil, nil
	}
	price := in.Price
	if price <= 0 {
		price = closes[len(closes)-1]
	}

	switch s.cfg.Indicator {
	case IndicatorRSI:
		return s.rsi(in, closes)
	case IndicatorEMACross:
		return s.emaCross(in, closes)
	case IndicatorMACD:
		return s.macd(in, closes, price)
	case IndicatorBollinger:
		return s.bollinger(in, closes, price)
	case IndicatorMomentum:
		return s.momentum(in, closes)
	}
	return nil, fmt.Errorf("unknown indicator %q", s.cfg.Indicator)
}

// rsi: oversold is bullish, overbought is bearish; confidence grows with the
// distance beyond the band.
func (s *IndicatorSource) rsi(in Input, closes []float64) (*domain.SignalSnapshot, error) {
	period := int(s.cfg.Param("period", 14))
	oversold := s.cfg.Param("oversold", 30)
	overbought := s.cfg.Param("overbought", 70)

	v, ok := indicators.Last(indicators.RSI(closes, period))
	if !ok {
		return nil, nil
	}
	switch {
	case v < oversold && oversold > 0:
		return snapshot(s.cfg.ID, s.cfg.Kind, in, v, domain.DirectionBullish, (oversold-v)/oversold), nil
	case v > overbought && overbought < 100:
		return snapshot(s.cfg.ID, s.cfg.Kind, in, v, domain.DirectionBearish, (v-overbought)/(100-overbought)), nil
	}
	return snapshot(s.cfg.ID, s.cfg.Kind, in, v, domain.DirectionNeutral, 0), nil
}

func (s *IndicatorSource) emaCross(in Input, closes []float64) (*domain.SignalSnapshot, error) {
	fast, ok1 := indicators.Last(indicators.EMA(closes, int(s.cfg.Param("fast", 9))))
	slow, ok2 := indicators.Last(indicators.EMA(closes, int(s.cfg.Param("slow", 21))))
	if !ok1 || !ok2 || slow == 0 {
		return nil, nil
	}
	diff := (fast - slow) / slow
	return scaled(s.cfg, in, diff, s.cfg.Param("scale", 10)), nil
}

func (s *IndicatorSource) macd(in Input, closes []float64, price float64) (*domain.SignalSnapshot, error) {
	res := indicators.MACD(closes,
		int(s.cfg.Param("fast", 12)),
		int(s.cfg.Param("slow", 26)),
		int(s.cfg.Param("signal", 9)))
	hist, ok := indicators.Last(res.Histogram)
	if !ok || price == 0 {
		return nil, nil
	}
	return scaled(s.cfg, in, hist/price, s.cfg.Param("scale", 100)), nil
}

// bollinger: a close under the lower band is bullish (mean reversion), over
// the upper band bearish.
func (s *IndicatorSource) bollinger(in Input, closes []float64, price float64) (*domain.SignalSnapshot, error) {
	bands := indicators.Bollinger(closes, int(s.cfg.Param("period", 20)), s.cfg.Param("deviations", 2))
	upper, ok1 := indicators.Last(bands.Upper)
	middle, ok2 := indicators.Last(bands.Middle)
	lower, ok3 := indicators.Last(bands.Lower)
	if !ok1 || !ok2 || !ok3 {
		return nil, nil
	}
	half := upper - middle
	if half <= 0 {
		return snapshot(s.cfg.ID, s.cfg.Kind, in, 0, domain.DirectionNeutral, 0), nil
	}
	// %b-like position: -1 at the lower band, +1 at the upper band.
	pos := (price - middle) / half
	switch {
	case price < lower:
		return snapshot(s.cfg.ID, s.cfg.Kind, in, pos, domain.DirectionBullish, (lower-price)/half), nil
	case price > upper:
		return snapshot(s.cfg.ID, s.cfg.Kind, in, pos, domain.DirectionBearish, (price-upper)/half), nil
	}
	return snapshot(s.cfg.ID, s.cfg.Kind, in, pos, domain.DirectionNeutral, 0), nil
}

func (s *IndicatorSource) momentum(in Input, closes []float64) (*domain.SignalSnapshot, error) {
	v, ok := indicators.Last(indicators.Momentum(closes, int(s.cfg.Param("period", 10))))
	if !ok {
		return nil, nil
	}
	return scaled(s.cfg, in, v, s.cfg.Param("scale", 10)), nil
}

// scaled turns a signed value into a snapshot with confidence min(|v|×scale, 1).
func scaled(cfg domain.SourceConfig, in Input, v, scale float64) *domain.SignalSnapshot {
	dir := domain.DirectionFromScore(v, 1e-12)
	return snapshot(cfg.ID, cfg.Kind, in, v, dir, math.Min(math.Abs(v)*scale, 1))
}

// PatternSource reports the most recent candle pattern.
type PatternSource struct {
	cfg domain.SourceConfig
}

// NewPatternSource creates a candle pattern source.
func NewPatternSource(cfg domain.SourceConfig) *PatternSource {
	return &PatternSource{cfg: cfg}
}

func (s *PatternSource) ID() string              { return s.cfg.ID }
func (s *PatternSource) Kind() domain.SourceKind { return s.cfg.Kind }

// Signal returns a neutral snapshot when no pattern is detected.
func (s *PatternSource) Signal(_ context.Context, in Input) (*domain.SignalSnapshot, error) {
	if len(in.History) == 0 {
		return nil, nil
	}
	p, ok := indicators.DetectPattern(in.History)
	if !ok {
		return snapshot(s.cfg.ID, s.cfg.Kind, in, 0, domain.DirectionNeutral, 0), nil
	}
	dir := domain.DirectionBullish
	if p.Signal < 0 {
		dir = domain.DirectionBearish
	}
	return snapshot(s.cfg.ID, s.cfg.Kind, in, float64(p.Signal)*p.Strength, dir, p.Strength), nil
}

var (
	_ Source = (*IndicatorSource)(nil)
	_ Source = (*PatternSource)(nil)
)
