// Package backtest drives one bot through replayed market events.
package backtest

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stock-bot-lab/internal/botstate"
	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/execution"
	"stock-bot-lab/internal/idhash"
	"stock-bot-lab/internal/observability"
	"stock-bot-lab/internal/replay"
)

// ErrCancelled stops a replay when the run was cancelled between ticks.
var ErrCancelled = errors.New("simulation cancelled")

// ReasonEndOfDay is recorded on target orders cancelled at the close.
const ReasonEndOfDay = "end of day"

// Evaluator produces a decision for one bot on one bar.
type Evaluator interface {
	Evaluate(ctx context.Context, st *botstate.State, bar domain.Bar) domain.Evaluation
}

// Options configures an Engine.
type Options struct {
	RunID     string
	State     *botstate.State
	Evaluator Evaluator

	// Cancelled is polled before and after each evaluation.
	Cancelled func() bool

	ArchiveSignals bool
	Logger         *zap.Logger
	Metrics        *observability.Metrics
}

// DayOutput is everything one bot produced for one simulated day.
type DayOutput struct {
	Daily   *domain.DailyResult
	Ticks   []*domain.TickResult
	Orders  []*domain.Order
	Signals []*domain.ArchivedSignal
}

// Engine executes one bot's decisions during replay.
// Implements replay.ReplayEngine.
type Engine struct {
	runID     string
	st        *botstate.State
	evaluator Evaluator
	cancelled func() bool
	archive   bool
	logger    *zap.Logger
	metrics   *observability.Metrics

	day       time.Time
	events    int
	decisions int
	ticks     []*domain.TickResult
	signals   []*domain.ArchivedSignal
}

// NewEngine creates a new backtest engine.
func NewEngine(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := opts.Metrics
	if m == nil {
		m = observability.DefaultMetrics
	}
	cancelled := opts.Cancelled
	if cancelled == nil {
		cancelled = func() bool { return false }
	}
	return &Engine{
		runID:     opts.RunID,
		st:        opts.State,
		evaluator: opts.Evaluator,
		cancelled: cancelled,
		archive:   opts.ArchiveSignals,
		logger:    logger.With(zap.String("run_id", opts.RunID), zap.String("bot_id", opts.State.Config.ID)),
		metrics:   m,
	}
}

// State returns the bot's runtime state.
func (e *Engine) State() *botstate.State {
	return e.st
}

// StartDay resets daily counters and buffers.
func (e *Engine) StartDay(day time.Time) {
	e.day = domain.DayStart(day)
	e.events = 0
	e.decisions = 0
	e.ticks = nil
	e.signals = nil
	e.st.Executor.StartDay(e.day)
}

// OnEvent evaluates and executes one tick for the bot.
// Implements replay.ReplayEngine.
//
// Steps:
//  1. Skip symbols outside the bot's universe; stop if cancelled
//  2. Fill waiting target orders the price has crossed
//  3. Evaluate, then re-check cancellation and discard if cancelled
//  4. Execute protective exits, then the decision
//  5. Record the tick result
func (e *Engine) OnEvent(ctx context.Context, event *replay.Event) error {
	// 1. Universe and cancellation
	if !e.st.Config.TradesSymbol(event.Symbol) {
		return nil
	}
	if e.cancelled() {
		return ErrCancelled
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	e.events++

	// 2. Target orders
	filled := e.st.Executor.OnPrice(event.Symbol, event.Bar.Close, event.Timestamp)

	// 3. Evaluate
	ev := e.evaluator.Evaluate(ctx, e.st, event.Bar)
	if e.cancelled() {
		return ErrCancelled
	}

	// 4. Execute
	var executed []*domain.Order
	executed = append(executed, filled...)
	for _, exit := range ev.Exits {
		e.decisions++
		if o := e.execute(exit, false); o != nil {
			executed = append(executed, o)
		}
	}

	d := ev.Decision
	if d.Action != domain.ActionHold {
		e.decisions++
		asTarget := e.st.Config.EntryDiscountPct > 0 && d.Action == domain.ActionBuy
		if asTarget && e.hasWaiting(d.Symbol) {
			// one resting entry per symbol
		} else if o := e.execute(d, asTarget); o != nil {
			executed = append(executed, o)
		}
	}

	// 5. Record
	e.record(event, ev, executed)
	if e.archive {
		for _, s := range d.Signals {
			e.signals = append(e.signals, &domain.ArchivedSignal{RunID: e.runID, BotID: e.st.Config.ID, SignalSnapshot: s})
		}
	}
	return nil
}

// execute applies a decision and returns the resulting order, if one was created.
func (e *Engine) execute(d domain.Decision, asTarget bool) *domain.Order {
	var (
		o   *domain.Order
		err error
	)
	if asTarget {
		pct := decimal.NewFromFloat(e.st.Config.EntryDiscountPct)
		target := d.Price.Mul(decimal.NewFromInt(100).Sub(pct)).Div(decimal.NewFromInt(100))
		o, err = e.st.Executor.PlaceTarget(d, target)
	} else {
		o, err = e.st.Executor.Execute(d)
	}
	if err != nil {
		level := e.logger.Warn
		if errors.Is(err, execution.ErrLimitExceeded) {
			level = e.logger.Debug
		}
		level("decision not executed",
			zap.String("symbol", d.Symbol),
			zap.String("action", string(d.Action)),
			zap.Error(err),
		)
		return nil
	}
	return o
}

func (e *Engine) hasWaiting(symbol string) bool {
	for _, o := range e.st.Executor.Orders() {
		if o.Symbol == symbol && o.Status == domain.OrderStatusWaiting {
			return true
		}
	}
	return false
}

func (e *Engine) record(event *replay.Event, ev domain.Evaluation, orders []*domain.Order) {
	d := ev.Decision
	action := d.Action
	quantity := d.Quantity
	reason := d.Reason
	if len(ev.Exits) > 0 {
		action = domain.ActionSell
		quantity = 0
		reasons := make([]string, 0, len(ev.Exits))
		for _, x := range ev.Exits {
			quantity += x.Quantity
			reasons = append(reasons, x.Reason)
		}
		reason = strings.Join(reasons, ",")
	}

	tr := &domain.TickResult{
		ID:         idhash.ComputeTickResultID(e.runID, e.st.Config.ID, event.Symbol, event.Timestamp),
		RunID:      e.runID,
		BotID:      e.st.Config.ID,
		Symbol:     event.Symbol,
		Timestamp:  event.Timestamp,
		Price:      event.Bar.Close,
		Action:     action,
		Confidence: d.Confidence,
		RiskScore:  d.RiskScore,
		Quantity:   quantity,
		Reason:     reason,
	}
	for _, o := range orders {
		tr.OrderStatus = o.Status
		if o.Status == domain.OrderStatusDone {
			tr.TradeExecuted = true
		}
	}

	snap := e.st.Snapshot()
	tr.Cash = snap.Cash
	tr.CumulativeProfit = snap.Equity.Sub(e.st.InitialEquity)

	e.ticks = append(e.ticks, tr)
	e.metrics.RecordTick(string(action))
}

// EndDay cancels open target orders and returns the day's records.
func (e *Engine) EndDay(at time.Time) DayOutput {
	cancelled := e.st.Executor.CancelAll(ReasonEndOfDay, at)
	if len(cancelled) > 0 {
		e.logger.Debug("target orders cancelled at close", zap.Int("count", len(cancelled)))
	}

	daily := e.st.Executor.Daily()
	snap := e.st.Snapshot()
	out := DayOutput{
		Daily: &domain.DailyResult{
			ID:               idhash.ComputeDailyResultID(e.runID, e.st.Config.ID, e.day),
			RunID:            e.runID,
			BotID:            e.st.Config.ID,
			Day:              e.day,
			Decisions:        e.decisions,
			TradesExecuted:   daily.Trades,
			TradeExecuted:    daily.Trades > 0,
			Cash:             snap.Cash,
			RealizedPnL:      snap.RealizedPnL,
			DailyRealizedPnL: daily.RealizedPnL,
			UnrealizedPnL:    snap.UnrealizedPnL,
			Equity:           snap.Equity,
			CumulativeProfit: snap.Equity.Sub(e.st.InitialEquity),
			Lots:             snap.Lots,
			CreatedAt:        at,
		},
		Ticks:   e.ticks,
		Orders:  e.st.Executor.DrainTerminal(),
		Signals: e.signals,
	}
	e.ticks = nil
	e.signals = nil
	return out
}

// Flush returns the tick results recorded since the last flush and forgets them.
func (e *Engine) Flush() []*domain.TickResult {
	out := e.ticks
	e.ticks = nil
	return out
}

// Events returns the number of events processed today.
func (e *Engine) Events() int {
	return e.events
}

// Ensure Engine implements replay.ReplayEngine
var _ replay.ReplayEngine = (*Engine)(nil)
