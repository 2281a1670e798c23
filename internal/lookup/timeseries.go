// Package lookup resolves prices at a point in time from ordered series.
package lookup

import (
	"time"

	"stock-bot-lab/internal/domain"
)

// LastClose returns the latest close per symbol among bars at or before target.
// Symbols without such a bar are absent from the result.
func LastClose(target time.Time, bars []domain.Bar) map[string]float64 {
	out := make(map[string]float64)
	latest := make(map[string]time.Time)
	for _, b := range bars {
		if b.Timestamp.After(target) {
			continue
		}
		if ts, ok := latest[b.Symbol]; ok && ts.After(b.Timestamp) {
			continue
		}
		latest[b.Symbol] = b.Timestamp
		out[b.Symbol] = b.Close
	}
	return out
}
