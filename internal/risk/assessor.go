// Package risk scores trading risk, scales positions and emits protective exits.
package risk

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"stock-bot-lab/internal/domain"
)

// Risk score component weights. They sum to 1 so the score spans [0,100].
const (
	lossWeight          = 0.4
	tradeWeight         = 0.3
	concentrationWeight = 0.3
)

// Input is everything the assessor looks at for one (bot, symbol, tick).
type Input struct {
	Signal      domain.AggregatedSignal
	Params      domain.RiskParams
	Threshold   float64 // risk_score_threshold
	Adjustment  float64 // risk_adjustment_factor
	Scaling     bool    // risk-based position scaling
	DailyTrades int
	DailyLoss   decimal.Decimal // non-negative
	Exposure    decimal.Decimal // market value held in the symbol
	Equity      decimal.Decimal // cash plus market value
}

// Assess computes the risk score, scale factor and hard override.
//
// score = 100 × (0.4 × loss usage + 0.3 × trade usage + 0.3 × concentration),
// each component clamped to [0,1]. A disabled limit contributes zero.
func Assess(in Input) domain.RiskAssessment {
	lossUsage := 0.0
	if in.Params.MaxDailyLoss.IsPositive() {
		lossUsage = ratio(in.DailyLoss, in.Params.MaxDailyLoss)
	}
	tradeUsage := 0.0
	if in.Params.MaxDailyTrades > 0 {
		tradeUsage = clamp01(float64(in.DailyTrades) / float64(in.Params.MaxDailyTrades))
	}
	concentration := 0.0
	if in.Equity.IsPositive() {
		concentration = ratio(in.Exposure, in.Equity)
	}

	score := 100 * (lossWeight*lossUsage + tradeWeight*tradeUsage + concentrationWeight*concentration)
	score = math.Max(0, math.Min(100, score))

	a := domain.RiskAssessment{
		Score:       score,
		ScaleFactor: ScaleFactor(score, in.Adjustment),
	}
	if lossUsage >= 1 {
		a.Reasons = append(a.Reasons, "daily loss limit reached")
	}
	if tradeUsage >= 1 {
		a.Reasons = append(a.Reasons, "max daily trades reached")
	}
	if concentration >= 0.5 {
		a.Reasons = append(a.Reasons, fmt.Sprintf("position concentration %.0f%%", concentration*100))
	}
	if score > in.Threshold {
		a.Override = true
		a.Reasons = append(a.Reasons, fmt.Sprintf("risk score %.1f above threshold %.1f", score, in.Threshold))
	}
	return a
}

// ScaleFactor returns 1 - (score/100) × adjustment, clamped to [0,1].
// It is non-increasing in score for any non-negative adjustment.
func ScaleFactor(score, adjustment float64) float64 {
	return clamp01(1 - (score/100)*adjustment)
}

// ScaledConfidence applies the scale factor when scaling is enabled.
func ScaledConfidence(confidence float64, a domain.RiskAssessment, scaling bool) float64 {
	if !scaling {
		return confidence
	}
	return clamp01(confidence * a.ScaleFactor)
}

func ratio(num, den decimal.Decimal) float64 {
	if !den.IsPositive() {
		return 0
	}
	f, _ := num.Div(den).Float64()
	return clamp01(f)
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
