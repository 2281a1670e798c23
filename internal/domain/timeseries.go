package domain

import "time"

// Bar is one OHLCV candle for a symbol.
// Corresponds to price_bars table in ClickHouse.
type Bar struct {
	Symbol    string    `json:"symbol"`    // ticker, e.g. AAPL
	Interval  string    `json:"interval"`  // bar interval: 1m, 5m, 1h, 1d
	Timestamp time.Time `json:"timestamp"` // bar open time (UTC)
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Tick is one timestamped price observation for a symbol.
// Corresponds to ticks table in ClickHouse. Bars are replayed as ticks at their close.
type Tick struct {
	Symbol    string    `json:"symbol"`    // ticker
	Timestamp time.Time `json:"timestamp"` // observation time (UTC)
	Price     float64   `json:"price"`     // trade or close price
	Volume    float64   `json:"volume"`    // traded volume at this observation
}

// Supported bar intervals.
const (
	Interval1Min  = "1m"
	Interval5Min  = "5m"
	Interval1Hour = "1h"
	Interval1Day  = "1d"
)

// TickFromBar converts a bar into a tick stamped at the bar's timestamp.
func TickFromBar(b Bar) Tick {
	return Tick{
		Symbol:    b.Symbol,
		Timestamp: b.Timestamp,
		Price:     b.Close,
		Volume:    b.Volume,
	}
}

// BarFromTick converts a tick into a flat bar so indicator history can be built from ticks.
func BarFromTick(t Tick, interval string) Bar {
	return Bar{
		Symbol:    t.Symbol,
		Interval:  interval,
		Timestamp: t.Timestamp,
		Open:      t.Price,
		High:      t.Price,
		Low:       t.Price,
		Close:     t.Price,
		Volume:    t.Volume,
	}
}

// DayStart truncates t to 00:00 UTC of its calendar day.
func DayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// TradingDays returns every weekday in [start, end] (inclusive) as UTC day starts.
func TradingDays(start, end time.Time) []time.Time {
	var days []time.Time
	for d := DayStart(start); !d.After(DayStart(end)); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		days = append(days, d)
	}
	return days
}
