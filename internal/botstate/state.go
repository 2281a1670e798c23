// Package botstate holds the mutable runtime state of one bot: its ledger,
// executor, persistence streaks and per-symbol price history.
package botstate

import (
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/execution"
	"stock-bot-lab/internal/ledger"
	"stock-bot-lab/internal/observability"
	"stock-bot-lab/internal/persistence"
	"stock-bot-lab/internal/signal"
)

// DefaultHistoryWindow is the number of bars kept per symbol for indicators.
const DefaultHistoryWindow = 200

// Options configures a State.
type Options struct {
	Owner         string // run id or paper-trading scope, used for deterministic ids
	Config        domain.BotConfig
	Sources       []signal.Source
	HistoryWindow int
	Logger        *zap.Logger
	Metrics       *observability.Metrics
}

// State is exclusively owned by one bot within one run.
type State struct {
	Config   domain.BotConfig
	Sources  []signal.Source
	Ledger   *ledger.Ledger
	Tracker  *persistence.Tracker
	Executor *execution.Executor

	// InitialEquity is cash plus initial positions at cost.
	InitialEquity decimal.Decimal

	mu      sync.RWMutex
	window  int
	history map[string][]domain.Bar
	prices  map[string]decimal.Decimal
}

// New creates the runtime state for a bot, seeding the ledger from its budget.
func New(opts Options) *State {
	window := opts.HistoryWindow
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	l := ledger.New(opts.Owner, opts.Config.Budget)
	return &State{
		Config:  opts.Config,
		Sources: opts.Sources,
		Ledger:  l,
		Tracker: persistence.NewTracker(opts.Config.Persistence),
		Executor: execution.NewExecutor(execution.Options{
			Owner:   opts.Owner,
			BotID:   opts.Config.ID,
			Risk:    opts.Config.Risk,
			Ledger:  l,
			Logger:  opts.Logger,
			Metrics: opts.Metrics,
		}),
		InitialEquity: l.Equity(nil),
		window:        window,
		history:       make(map[string][]domain.Bar),
		prices:        make(map[string]decimal.Decimal),
	}
}

// Observe appends bar to the symbol's history, records its close as the
// latest price and returns a copy of the history.
func (s *State) Observe(bar domain.Bar) []domain.Bar {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := append(s.history[bar.Symbol], bar)
	if len(h) > s.window {
		h = append([]domain.Bar(nil), h[len(h)-s.window:]...)
	}
	s.history[bar.Symbol] = h
	s.prices[bar.Symbol] = decimal.NewFromFloat(bar.Close)

	return append([]domain.Bar(nil), h...)
}

// Warm preloads history without changing the latest prices.
func (s *State) Warm(bars []domain.Bar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range bars {
		h := append(s.history[b.Symbol], b)
		if len(h) > s.window {
			h = h[len(h)-s.window:]
		}
		s.history[b.Symbol] = h
	}
}

// Mark sets the latest price of a symbol without touching its history.
func (s *State) Mark(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = decimal.NewFromFloat(price)
}

// History returns a copy of the symbol's history.
func (s *State) History(symbol string) []domain.Bar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Bar(nil), s.history[symbol]...)
}

// Prices returns a copy of the latest known price per symbol.
func (s *State) Prices() map[string]decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(s.prices))
	for k, v := range s.prices {
		out[k] = v
	}
	return out
}

// Snapshot values the ledger at the latest known prices.
func (s *State) Snapshot() domain.LedgerSnapshot {
	return s.Ledger.Snapshot(s.Prices())
}
