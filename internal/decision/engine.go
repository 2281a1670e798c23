// Package decision turns signals, risk and persistence into one trading decision.
package decision

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stock-bot-lab/internal/aggregation"
	"stock-bot-lab/internal/botstate"
	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/observability"
	"stock-bot-lab/internal/risk"
	"stock-bot-lab/internal/signal"
)

// Hold reasons.
const (
	ReasonNotInUniverse        = "symbol not in bot universe"
	ReasonInvalidPrice         = "invalid price"
	ReasonProtectiveExit       = "protective exit executed this tick"
	ReasonNoSignal             = "no directional signal"
	ReasonPersistence          = "persistence not satisfied"
	ReasonNoPosition           = "no position to sell"
	ReasonMaxDailyTrades       = "max daily trades reached"
	ReasonDailyLossReached     = "daily loss limit reached"
	ReasonSellExceedsDailyLoss = "sell would exceed daily loss limit"
	ReasonBelowOneShare        = "position size below one share"
	ReasonMaxPosition          = "max position size reached"
)

// Options configures an Engine.
type Options struct {
	Collector *signal.Collector
	Logger    *zap.Logger
	Metrics   *observability.Metrics
}

// Engine is stateless; all mutable state lives in botstate.State.
type Engine struct {
	collector *signal.Collector
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// New creates an Engine.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := opts.Metrics
	if m == nil {
		m = observability.DefaultMetrics
	}
	c := opts.Collector
	if c == nil {
		c = signal.NewCollector(signal.CollectorOptions{Logger: logger, Metrics: m})
	}
	return &Engine{collector: c, logger: logger, metrics: m}
}

// Evaluate produces the decision for one bot on one bar (a tick is a flat bar).
// It never fails: every problem resolves to hold with a reason.
//
// Steps:
//  1. Record the bar in the bot's history
//  2. Emit stop-loss/take-profit exits for triggered lots
//  3. Collect snapshots from the bot's sources concurrently
//  4. Aggregate them with the bot's method
//  5. Observe persistence (always, so streaks stay continuous)
//  6. Assess risk: override, scale factor
//  7. Pick the action, size it and apply the daily gates
func (e *Engine) Evaluate(ctx context.Context, st *botstate.State, bar domain.Bar) domain.Evaluation {
	cfg := &st.Config
	base := domain.Decision{
		BotID:     cfg.ID,
		Symbol:    bar.Symbol,
		Timestamp: bar.Timestamp,
		Action:    domain.ActionHold,
	}

	if !cfg.TradesSymbol(bar.Symbol) {
		base.Reason = ReasonNotInUniverse
		return domain.Evaluation{Decision: base}
	}
	if bar.Close <= 0 {
		base.Reason = ReasonInvalidPrice
		return domain.Evaluation{Decision: base}
	}
	price := decimal.NewFromFloat(bar.Close)
	base.Price = price

	// 1. History
	history := st.Observe(bar)

	// 2. Protective exits
	exits := e.protectiveExits(st, bar, price)

	// 3. Collect
	snaps := e.collector.Collect(ctx, st.Sources, signal.Input{
		Symbol:    bar.Symbol,
		Timestamp: bar.Timestamp,
		Price:     bar.Close,
		History:   history,
	})

	// 4. Aggregate
	agg := aggregation.Aggregate(cfg.Aggregation, cfg.Sources, snaps)

	// 5. Persistence
	pst := st.Tracker.Observe(bar.Symbol, agg.Direction, bar.Timestamp)

	d := base
	d.Signals = orderedSnapshots(cfg.Sources, snaps)
	d.Aggregated = &agg
	d.Persistence = &pst

	if len(exits) > 0 {
		d.Reason = ReasonProtectiveExit
		return domain.Evaluation{Exits: exits, Decision: d}
	}

	// 6. Risk
	daily := st.Executor.Daily()
	prices := st.Prices()
	equity := st.Ledger.Equity(prices)
	exposure := st.Ledger.Exposure(bar.Symbol, price)
	assessment := risk.Assess(risk.Input{
		Signal:      agg,
		Params:      cfg.Risk,
		Threshold:   cfg.RiskScoreThreshold,
		Adjustment:  cfg.RiskAdjustmentFactor,
		Scaling:     cfg.RiskBasedScaling,
		DailyTrades: daily.Trades,
		DailyLoss:   daily.Loss(),
		Exposure:    exposure,
		Equity:      equity,
	})
	d.Risk = &assessment
	d.RiskScore = assessment.Score
	d.Confidence = risk.ScaledConfidence(agg.Confidence, assessment, cfg.RiskBasedScaling)

	// 7. Action
	switch {
	case agg.Direction == domain.DirectionNeutral:
		d.Reason = ReasonNoSignal
		if agg.Reason != "" {
			d.Reason += ": " + agg.Reason
		}
		return domain.Evaluation{Decision: d}
	case assessment.Override:
		e.metrics.RecordRiskOverride()
		d.Reason = fmt.Sprintf("risk score %.1f above threshold %.1f", assessment.Score, cfg.RiskScoreThreshold)
		return domain.Evaluation{Decision: d}
	case !pst.Permitted:
		d.Reason = ReasonPersistence
		return domain.Evaluation{Decision: d}
	}

	if cfg.Risk.MaxDailyTrades > 0 && daily.Trades >= cfg.Risk.MaxDailyTrades {
		d.Reason = ReasonMaxDailyTrades
		return domain.Evaluation{Decision: d}
	}

	scale := 1.0
	if cfg.RiskBasedScaling {
		scale = assessment.ScaleFactor
	}

	if agg.Direction == domain.DirectionBullish {
		e.sizeBuy(st, &d, daily, price, equity, exposure, scale)
	} else {
		e.sizeSell(st, &d, daily, price, scale)
	}
	return domain.Evaluation{Decision: d}
}

func (e *Engine) sizeBuy(st *botstate.State, d *domain.Decision, daily domain.DailyStats, price, equity, exposure decimal.Decimal, scale float64) {
	params := st.Config.Risk
	if params.MaxDailyLoss.IsPositive() && daily.Loss().GreaterThanOrEqual(params.MaxDailyLoss) {
		d.Reason = ReasonDailyLossReached
		return
	}
	if params.MaxPositionSize.IsPositive() && exposure.GreaterThanOrEqual(params.MaxPositionSize) {
		d.Reason = ReasonMaxPosition
		return
	}
	qty := risk.BuyQuantity(risk.SizeInput{
		Params:   params,
		Price:    price,
		Equity:   equity,
		Cash:     st.Ledger.Cash(),
		Exposure: exposure,
		Scale:    scale,
	})
	if qty < 1 {
		d.Reason = ReasonBelowOneShare
		return
	}
	d.Action = domain.ActionBuy
	d.Quantity = qty
	d.Reason = fmt.Sprintf("%s signal %.2f", d.Aggregated.Direction, d.Aggregated.Confidence)
}

func (e *Engine) sizeSell(st *botstate.State, d *domain.Decision, daily domain.DailyStats, price decimal.Decimal, scale float64) {
	position := st.Ledger.Position(d.Symbol)
	if position <= 0 {
		d.Reason = ReasonNoPosition
		return
	}
	qty := risk.SellQuantity(position, scale, st.Config.RiskBasedScaling)
	if qty < 1 {
		d.Reason = ReasonBelowOneShare
		return
	}

	params := st.Config.Risk
	if params.MaxDailyLoss.IsPositive() {
		preview, err := st.Ledger.PreviewSell(d.Symbol, qty, price)
		if err == nil {
			projected := daily.RealizedPnL.Add(preview.RealizedPnL)
			if projected.IsNegative() && projected.Neg().GreaterThan(params.MaxDailyLoss) {
				d.Reason = ReasonSellExceedsDailyLoss
				return
			}
		}
	}

	d.Action = domain.ActionSell
	d.Quantity = qty
	d.Reason = fmt.Sprintf("%s signal %.2f", d.Aggregated.Direction, d.Aggregated.Confidence)
}

// protectiveExits builds one sell decision per lot whose stop-loss or
// take-profit level the bar's close has reached.
func (e *Engine) protectiveExits(st *botstate.State, bar domain.Bar, price decimal.Decimal) []domain.Decision {
	triggered := risk.ProtectiveExits(st.Ledger.Lots(bar.Symbol), price, st.Config.Risk)
	if len(triggered) == 0 {
		return nil
	}
	out := make([]domain.Decision, 0, len(triggered))
	for _, x := range triggered {
		e.metrics.RecordProtectiveExit(x.Reason)
		e.logger.Debug("protective exit",
			zap.String("bot_id", st.Config.ID),
			zap.String("symbol", bar.Symbol),
			zap.String("lot_id", x.Lot.ID),
			zap.String("reason", x.Reason),
		)
		out = append(out, domain.Decision{
			BotID:      st.Config.ID,
			Symbol:     bar.Symbol,
			Timestamp:  bar.Timestamp,
			Action:     domain.ActionSell,
			Confidence: 1,
			Quantity:   x.Lot.Remaining,
			Price:      price,
			Reason:     x.Reason,
			LotID:      x.Lot.ID,
		})
	}
	return out
}

// orderedSnapshots lists snapshots in configured source order, then any
// unconfigured ones by id.
func orderedSnapshots(sources []domain.SourceConfig, snaps map[string]domain.SignalSnapshot) []domain.SignalSnapshot {
	out := make([]domain.SignalSnapshot, 0, len(snaps))
	seen := make(map[string]struct{}, len(snaps))
	for _, sc := range sources {
		if s, ok := snaps[sc.ID]; ok {
			out = append(out, s)
			seen[sc.ID] = struct{}{}
		}
	}
	var rest []string
	for id := range snaps {
		if _, ok := seen[id]; !ok {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	for _, id := range rest {
		out = append(out, snaps[id])
	}
	return out
}
