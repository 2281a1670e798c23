package metrics

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"stock-bot-lab/internal/domain"
)

var day0 = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func makeDaily(botID string, i int, equity float64) *domain.DailyResult {
	return &domain.DailyResult{BotID: botID, Day: day0.AddDate(0, 0, i), Equity: dec(equity)}
}

func makeSell(seq int64, pnl float64) *domain.Order {
	return &domain.Order{
		Seq:             seq,
		TransactionType: domain.TransactionSell,
		Status:          domain.OrderStatusDone,
		RealizedPnL:     dec(pnl),
	}
}

func TestComputeMaxDrawdown(t *testing.T) {
	dd, pct := computeMaxDrawdown(1000, []float64{1100, 990, 1050, 880, 1200})
	// peak 1100, trough 880
	if math.Abs(dd-220) > 1e-9 {
		t.Errorf("expected drawdown 220, got %f", dd)
	}
	if math.Abs(pct-20) > 1e-9 {
		t.Errorf("expected 20%%, got %f", pct)
	}
}

func TestComputeMaxDrawdown_StartIsPeak(t *testing.T) {
	dd, _ := computeMaxDrawdown(1000, []float64{900, 950})
	if math.Abs(dd-100) > 1e-9 {
		t.Errorf("expected drawdown 100 from initial equity, got %f", dd)
	}
}

func TestComputeMaxDrawdown_Empty(t *testing.T) {
	dd, pct := computeMaxDrawdown(1000, nil)
	if dd != 0 || pct != 0 {
		t.Errorf("expected zero drawdown, got %f / %f", dd, pct)
	}
}

func TestComputeMaxConsecutiveLosses(t *testing.T) {
	sells := []*domain.Order{makeSell(1, -5), makeSell(2, 0), makeSell(3, 10), makeSell(4, -1), makeSell(5, -2), makeSell(6, -3)}
	if got := computeMaxConsecutiveLosses(sells); got != 3 {
		t.Errorf("expected streak 3, got %d", got)
	}
}

func TestComputeWinRate_NoTrades(t *testing.T) {
	if got := computeWinRate(0, 0); got != 0 {
		t.Errorf("expected 0, got %f", got)
	}
}

func TestComputeSummary(t *testing.T) {
	cfg := domain.BotConfig{
		ID:   "bot-1",
		Name: "momentum",
		Budget: domain.Budget{
			Cash:      dec(500),
			Positions: []domain.InitialPosition{{Symbol: "AAPL", Quantity: 5, Price: dec(100)}},
		},
	}
	daily := []*domain.DailyResult{
		makeDaily("bot-1", 1, 1100),
		makeDaily("bot-1", 0, 1050),
	}
	daily[0].RealizedPnL = dec(60)

	orders := []*domain.Order{
		makeSell(3, -20),
		{Seq: 1, TransactionType: domain.TransactionBuy, Status: domain.OrderStatusDone},
		makeSell(2, 80),
		{Seq: 4, TransactionType: domain.TransactionBuy, Status: domain.OrderStatusInsufficientFunds},
		{Seq: 5, TransactionType: domain.TransactionBuy, Status: domain.OrderStatusCancelled},
	}

	s := computeSummary(cfg, daily, orders)

	if !s.InitialEquity.Equal(dec(1000)) {
		t.Errorf("expected initial equity 1000, got %s", s.InitialEquity)
	}
	if !s.FinalEquity.Equal(dec(1100)) {
		t.Errorf("expected final equity from the last day, got %s", s.FinalEquity)
	}
	if !s.TotalProfit.Equal(dec(100)) {
		t.Errorf("expected profit 100, got %s", s.TotalProfit)
	}
	if math.Abs(s.ReturnPct-10) > 1e-9 {
		t.Errorf("expected return 10%%, got %f", s.ReturnPct)
	}
	if s.TotalTrades != 3 || s.BuyTrades != 1 || s.SellTrades != 2 {
		t.Errorf("unexpected trade counts: %+v", s)
	}
	if s.WinningTrades != 1 || s.LosingTrades != 1 || s.WinRate != 0.5 {
		t.Errorf("unexpected win/loss: %d/%d rate %f", s.WinningTrades, s.LosingTrades, s.WinRate)
	}
	if s.InsufficientFunds != 1 || s.CancelledOrders != 1 {
		t.Errorf("unexpected failed order counts: %d/%d", s.InsufficientFunds, s.CancelledOrders)
	}
	if s.DaysSimulated != 2 {
		t.Errorf("expected 2 days, got %d", s.DaysSimulated)
	}
	if s.MaxConsecutiveLosses != 1 {
		t.Errorf("expected streak 1, got %d", s.MaxConsecutiveLosses)
	}
}

func TestComputeSummary_NoResults(t *testing.T) {
	cfg := domain.BotConfig{ID: "bot-1", Budget: domain.Budget{Cash: dec(1000)}}
	s := computeSummary(cfg, nil, nil)
	if !s.FinalEquity.Equal(dec(1000)) || !s.TotalProfit.IsZero() {
		t.Errorf("expected untouched equity, got %s / %s", s.FinalEquity, s.TotalProfit)
	}
	if s.ReturnPct != 0 || s.WinRate != 0 {
		t.Errorf("expected zero rates, got %f / %f", s.ReturnPct, s.WinRate)
	}
}
