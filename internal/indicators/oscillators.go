package indicators

import "math"

// RSI returns the relative strength index using Wilder smoothing.
// A window with no losses reads 100.
func RSI(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) < period+1 {
		return out
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			gain += change
		} else {
			loss -= change
		}
	}
	gain /= float64(period)
	loss /= float64(period)
	out[period] = rsiValue(gain, loss)

	for i := period + 1; i < len(values); i++ {
		change := values[i] - values[i-1]
		up, down := 0.0, 0.0
		if change > 0 {
			up = change
		} else {
			down = -change
		}
		gain = (gain*float64(period-1) + up) / float64(period)
		loss = (loss*float64(period-1) + down) / float64(period)
		out[i] = rsiValue(gain, loss)
	}
	return out
}

func rsiValue(gain, loss float64) float64 {
	if loss == 0 {
		return 100
	}
	rs := gain / loss
	return 100 - 100/(1+rs)
}

// MACDResult holds the MACD line, its signal line and histogram.
type MACDResult struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes fast EMA minus slow EMA, its signal EMA and the histogram.
// Default periods are 12, 26 and 9.
func MACD(values []float64, fast, slow, signal int) MACDResult {
	n := len(values)
	res := MACDResult{MACD: nanSlice(n), Signal: nanSlice(n), Histogram: nanSlice(n)}
	if fast <= 0 || slow <= fast || signal <= 0 || n < slow {
		return res
	}

	fastEMA := EMA(values, fast)
	slowEMA := EMA(values, slow)
	for i := slow - 1; i < n; i++ {
		res.MACD[i] = fastEMA[i] - slowEMA[i]
	}

	line := res.MACD[slow-1:]
	sig := EMA(line, signal)
	for i, v := range sig {
		j := i + slow - 1
		res.Signal[j] = v
		if !math.IsNaN(v) {
			res.Histogram[j] = res.MACD[j] - v
		}
	}
	return res
}

// BandsResult holds Bollinger bands.
type BandsResult struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Bollinger computes SMA bands at deviations population standard deviations.
func Bollinger(values []float64, period int, deviations float64) BandsResult {
	n := len(values)
	res := BandsResult{Upper: nanSlice(n), Middle: SMA(values, period), Lower: nanSlice(n)}
	if period <= 0 || n < period {
		return res
	}
	for i := period - 1; i < n; i++ {
		mean := res.Middle[i]
		sq := 0.0
		for _, v := range values[i-period+1 : i+1] {
			d := v - mean
			sq += d * d
		}
		sd := math.Sqrt(sq / float64(period))
		res.Upper[i] = mean + deviations*sd
		res.Lower[i] = mean - deviations*sd
	}
	return res
}
