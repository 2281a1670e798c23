// Package marketdata reads historical bars and ticks from CSV files.
//
// Bars:  symbol,timestamp,open,high,low,close,volume
// Ticks: symbol,timestamp,price,volume
//
// The first row is a header. Timestamps are RFC 3339 or unix seconds and
// are stored in UTC.
package marketdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"stock-bot-lab/internal/domain"
)

// ErrMalformed is returned for rows that cannot be parsed.
var ErrMalformed = errors.New("malformed market data")

var (
	barHeader  = []string{"symbol", "timestamp", "open", "high", "low", "close", "volume"}
	tickHeader = []string{"symbol", "timestamp", "price", "volume"}
)

// ReadBars parses bars at interval from r.
func ReadBars(r io.Reader, interval string) ([]*domain.Bar, error) {
	var out []*domain.Bar
	err := readRows(r, barHeader, func(line int, rec []string) error {
		ts, err := parseTime(rec[1])
		if err != nil {
			return err
		}
		nums, err := parseFloats(rec[2:])
		if err != nil {
			return err
		}
		b := &domain.Bar{
			Symbol:    strings.ToUpper(strings.TrimSpace(rec[0])),
			Interval:  interval,
			Timestamp: ts,
			Open:      nums[0],
			High:      nums[1],
			Low:       nums[2],
			Close:     nums[3],
			Volume:    nums[4],
		}
		if b.Symbol == "" || b.Close <= 0 || b.High < b.Low {
			return fmt.Errorf("invalid bar")
		}
		out = append(out, b)
		return nil
	})
	return out, err
}

// ReadTicks parses ticks from r.
func ReadTicks(r io.Reader) ([]*domain.Tick, error) {
	var out []*domain.Tick
	err := readRows(r, tickHeader, func(line int, rec []string) error {
		ts, err := parseTime(rec[1])
		if err != nil {
			return err
		}
		nums, err := parseFloats(rec[2:])
		if err != nil {
			return err
		}
		t := &domain.Tick{
			Symbol:    strings.ToUpper(strings.TrimSpace(rec[0])),
			Timestamp: ts,
			Price:     nums[0],
			Volume:    nums[1],
		}
		if t.Symbol == "" || t.Price <= 0 {
			return fmt.Errorf("invalid tick")
		}
		out = append(out, t)
		return nil
	})
	return out, err
}

// ReadBarsFile opens path and parses it with ReadBars.
func ReadBarsFile(path, interval string) ([]*domain.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	bars, err := ReadBars(f, interval)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bars, nil
}

// ReadTicksFile opens path and parses it with ReadTicks.
func ReadTicksFile(path string) ([]*domain.Tick, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	ticks, err := ReadTicks(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ticks, nil
}

func readRows(r io.Reader, header []string, fn func(line int, rec []string) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(header)
	cr.TrimLeadingSpace = true

	first, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: header: %v", ErrMalformed, err)
	}
	for i, h := range header {
		if !strings.EqualFold(strings.TrimSpace(first[i]), h) {
			return fmt.Errorf("%w: expected header %s", ErrMalformed, strings.Join(header, ","))
		}
	}

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if err := fn(line, rec); err != nil {
			return fmt.Errorf("%w: line %d: %v", ErrMalformed, line, err)
		}
	}
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q", s)
	}
	return t.UTC(), nil
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("number %q", f)
		}
		out[i] = v
	}
	return out, nil
}
