package indicators

import (
	"math"

	"stock-bot-lab/internal/domain"
)

// Candle pattern names.
const (
	PatternHigherLows       = "higher_lows"
	PatternLowerHighs       = "lower_highs"
	PatternBullishEngulfing = "bullish_engulfing"
	PatternBearishEngulfing = "bearish_engulfing"
	PatternBullishPinbar    = "bullish_pinbar"
	PatternBearishPinbar    = "bearish_pinbar"
)

// minCandleHeight is the smallest body or range considered a real candle.
const minCandleHeight = 0.001

// Pattern is a detected candle pattern on the most recent bars.
// Signal is +1 bullish or -1 bearish; Strength is in [0,1].
type Pattern struct {
	Name     string
	Signal   int
	Strength float64
}

// DetectPattern checks the last bars for a three-bar, then two-bar, then
// single-bar pattern and returns the first match.
func DetectPattern(bars []domain.Bar) (Pattern, bool) {
	n := len(bars)
	if n >= 3 {
		if p, ok := threeBar(bars[n-3], bars[n-2], bars[n-1]); ok {
			return p, true
		}
	}
	if n >= 2 {
		if p, ok := engulfing(bars[n-2], bars[n-1]); ok {
			return p, true
		}
	}
	if n >= 1 {
		return pinbar(bars[n-1])
	}
	return Pattern{}, false
}

func threeBar(c2, c1, c0 domain.Bar) (Pattern, bool) {
	if c0.Low > c1.Low && c1.Low > c2.Low && c2.Low > 0 {
		return Pattern{
			Name:     PatternHigherLows,
			Signal:   1,
			Strength: math.Min((c0.Low-c2.Low)/c2.Low*10, 1),
		}, true
	}
	if c0.High < c1.High && c1.High < c2.High && c2.High > 0 {
		return Pattern{
			Name:     PatternLowerHighs,
			Signal:   -1,
			Strength: math.Min((c2.High-c0.High)/c2.High*10, 1),
		}, true
	}
	return Pattern{}, false
}

func engulfing(prev, curr domain.Bar) (Pattern, bool) {
	prevSize := math.Abs(prev.Close - prev.Open)
	currSize := math.Abs(curr.Close - curr.Open)
	if currSize < minCandleHeight {
		return Pattern{}, false
	}
	strength := 1.0
	if prevSize > 0 {
		strength = math.Min(currSize/prevSize, 1)
	}
	switch {
	case curr.Open < prev.Close && curr.Close > prev.Open:
		return Pattern{Name: PatternBullishEngulfing, Signal: 1, Strength: strength}, true
	case curr.Open > prev.Close && curr.Close < prev.Open:
		return Pattern{Name: PatternBearishEngulfing, Signal: -1, Strength: strength}, true
	}
	return Pattern{}, false
}

func pinbar(c domain.Bar) (Pattern, bool) {
	body := math.Abs(c.Close - c.Open)
	upper := c.High - math.Max(c.Open, c.Close)
	lower := math.Min(c.Open, c.Close) - c.Low
	total := c.High - c.Low
	if total < minCandleHeight {
		return Pattern{}, false
	}
	if body >= total*0.3 {
		return Pattern{}, false
	}
	if lower > total*0.6 {
		return Pattern{Name: PatternBullishPinbar, Signal: 1, Strength: lower / total}, true
	}
	if upper > total*0.6 {
		return Pattern{Name: PatternBearishPinbar, Signal: -1, Strength: upper / total}, true
	}
	return Pattern{}, false
}

// Closes extracts close prices.
func Closes(bars []domain.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
