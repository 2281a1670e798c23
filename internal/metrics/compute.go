package metrics

import (
	"sort"

	"github.com/shopspring/decimal"

	"stock-bot-lab/internal/domain"
)

// computeSummary calculates a bot's summary from its daily results and orders.
// Daily results are sorted by day and orders by seq before the order-dependent
// metrics (drawdown, loss streak) are computed.
func computeSummary(cfg domain.BotConfig, daily []*domain.DailyResult, orders []*domain.Order) domain.BotSummary {
	days := make([]*domain.DailyResult, len(daily))
	copy(days, daily)
	sort.Slice(days, func(i, j int) bool { return days[i].Day.Before(days[j].Day) })

	sorted := make([]*domain.Order, len(orders))
	copy(sorted, orders)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })

	initial := initialEquity(cfg.Budget)
	s := domain.BotSummary{
		BotID:         cfg.ID,
		BotName:       cfg.Name,
		InitialEquity: initial,
		FinalEquity:   initial,
		DaysSimulated: len(days),
	}
	if n := len(days); n > 0 {
		s.FinalEquity = days[n-1].Equity
		s.RealizedPnL = days[n-1].RealizedPnL
	}
	s.TotalProfit = s.FinalEquity.Sub(initial)
	if initial.IsPositive() {
		s.ReturnPct, _ = s.TotalProfit.Div(initial).Mul(decimal.NewFromInt(100)).Float64()
	}

	// Order outcomes
	var sells []*domain.Order
	for _, o := range sorted {
		switch o.Status {
		case domain.OrderStatusDone:
			s.TotalTrades++
			if o.TransactionType == domain.TransactionBuy {
				s.BuyTrades++
			} else {
				s.SellTrades++
				sells = append(sells, o)
			}
		case domain.OrderStatusInsufficientFunds:
			s.InsufficientFunds++
		case domain.OrderStatusCancelled:
			s.CancelledOrders++
		}
	}
	for _, o := range sells {
		if o.RealizedPnL.IsPositive() {
			s.WinningTrades++
		} else {
			s.LosingTrades++
		}
	}
	s.WinRate = computeWinRate(s.WinningTrades, len(sells))
	s.MaxConsecutiveLosses = computeMaxConsecutiveLosses(sells)

	equity := make([]float64, len(days))
	for i, d := range days {
		equity[i], _ = d.Equity.Float64()
	}
	start, _ := initial.Float64()
	s.MaxDrawdown, s.MaxDrawdownPct = computeMaxDrawdown(start, equity)

	return s
}

// initialEquity is cash plus initial positions at cost.
func initialEquity(b domain.Budget) decimal.Decimal {
	total := b.Cash
	for _, p := range b.Positions {
		total = total.Add(p.Price.Mul(decimal.NewFromInt(p.Quantity)))
	}
	return total
}

// computeWinRate calculates win rate as wins / total.
func computeWinRate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total)
}

// computeMaxDrawdown calculates the worst peak-to-trough fall of an equity
// curve starting at start. Returns the absolute amount and the percentage of
// the peak it fell from. Equity must be in chronological order.
func computeMaxDrawdown(start float64, equity []float64) (float64, float64) {
	peak := start
	maxDrawdown := 0.0
	maxPct := 0.0

	for _, e := range equity {
		if e > peak {
			peak = e
		}
		drawdown := peak - e
		if drawdown > maxDrawdown {
			maxDrawdown = drawdown
		}
		if peak > 0 && drawdown/peak*100 > maxPct {
			maxPct = drawdown / peak * 100
		}
	}
	return maxDrawdown, maxPct
}

// computeMaxConsecutiveLosses finds the longest streak of sells with realized P&L <= 0.
// Sells must be in chronological order.
func computeMaxConsecutiveLosses(sells []*domain.Order) int {
	maxStreak := 0
	currentStreak := 0

	for _, o := range sells {
		if !o.RealizedPnL.IsPositive() {
			currentStreak++
			if currentStreak > maxStreak {
				maxStreak = currentStreak
			}
		} else {
			currentStreak = 0
		}
	}
	return maxStreak
}
