package risk

import (
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-bot-lab/internal/domain"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestAssess_NoUsageIsZero(t *testing.T) {
	a := Assess(Input{
		Params:     domain.RiskParams{MaxDailyTrades: 10, MaxDailyLoss: dec("100")},
		Threshold:  50,
		Adjustment: 1,
		Equity:     dec("1000"),
	})
	assert.Equal(t, 0.0, a.Score)
	assert.Equal(t, 1.0, a.ScaleFactor)
	assert.False(t, a.Override)
}

func TestAssess_FullUsageOverrides(t *testing.T) {
	a := Assess(Input{
		Params:      domain.RiskParams{MaxDailyTrades: 2, MaxDailyLoss: dec("50")},
		Threshold:   80,
		Adjustment:  1,
		DailyTrades: 2,
		DailyLoss:   dec("60"),
		Exposure:    dec("1000"),
		Equity:      dec("1000"),
	})
	assert.InDelta(t, 100.0, a.Score, 1e-9)
	assert.True(t, a.Override)
	assert.Equal(t, 0.0, a.ScaleFactor)
	assert.Contains(t, a.Reasons, "daily loss limit reached")
}

func TestAssess_DisabledLimitsContributeNothing(t *testing.T) {
	a := Assess(Input{
		DailyTrades: 50,
		DailyLoss:   dec("1000"),
		Equity:      dec("1000"),
		Threshold:   10,
	})
	assert.Equal(t, 0.0, a.Score)
	assert.False(t, a.Override)
}

func TestAssess_ScoreAlwaysInRange(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for i := 0; i < 500; i++ {
		a := Assess(Input{
			Params: domain.RiskParams{
				MaxDailyTrades: r.Intn(5),
				MaxDailyLoss:   decimal.NewFromInt(int64(r.Intn(100))),
			},
			Threshold:   r.Float64() * 100,
			Adjustment:  r.Float64() * 3,
			DailyTrades: r.Intn(20),
			DailyLoss:   decimal.NewFromInt(int64(r.Intn(500))),
			Exposure:    decimal.NewFromInt(int64(r.Intn(2000))),
			Equity:      decimal.NewFromInt(int64(r.Intn(2000))),
		})
		require.GreaterOrEqual(t, a.Score, 0.0)
		require.LessOrEqual(t, a.Score, 100.0)
		require.GreaterOrEqual(t, a.ScaleFactor, 0.0)
		require.LessOrEqual(t, a.ScaleFactor, 1.0)
	}
}

func TestScaleFactor_NonIncreasing(t *testing.T) {
	for _, adj := range []float64{0, 0.5, 1, 2, 10} {
		prev := ScaleFactor(0, adj)
		for score := 1.0; score <= 100; score++ {
			cur := ScaleFactor(score, adj)
			if cur > prev {
				t.Fatalf("adj=%v: scale rose from %v to %v at score %v", adj, prev, cur, score)
			}
			prev = cur
		}
	}
	assert.Equal(t, 1.0, ScaleFactor(100, 0))
	assert.Equal(t, 0.5, ScaleFactor(50, 1))
	assert.Equal(t, 0.0, ScaleFactor(80, 2))
}

func TestBuyQuantity(t *testing.T) {
	tests := []struct {
		name string
		in   SizeInput
		want int64
	}{
		{
			name: "stop loss sizing",
			// risk 2% of 10000 = 200; per share 100 × 5% = 5 → 40 shares
			in: SizeInput{
				Params: domain.RiskParams{RiskPerTradePct: 2, StopLossPct: 5},
				Price:  dec("100"), Equity: dec("10000"), Cash: dec("10000"), Scale: 1,
			},
			want: 40,
		},
		{
			name: "no stop loss",
			// 10% of 1000 = 100 / 30 → 3
			in: SizeInput{
				Params: domain.RiskParams{RiskPerTradePct: 10},
				Price:  dec("30"), Equity: dec("1000"), Cash: dec("1000"), Scale: 1,
			},
			want: 3,
		},
		{
			name: "scaled",
			in: SizeInput{
				Params: domain.RiskParams{RiskPerTradePct: 2, StopLossPct: 5},
				Price:  dec("100"), Equity: dec("10000"), Cash: dec("10000"), Scale: 0.5,
			},
			want: 20,
		},
		{
			name: "capped by cash",
			in: SizeInput{
				Params: domain.RiskParams{RiskPerTradePct: 2, StopLossPct: 5},
				Price:  dec("100"), Equity: dec("10000"), Cash: dec("750"), Scale: 1,
			},
			want: 7,
		},
		{
			name: "capped by max position",
			in: SizeInput{
				Params: domain.RiskParams{RiskPerTradePct: 2, StopLossPct: 5, MaxPositionSize: dec("1500")},
				Price:  dec("100"), Equity: dec("10000"), Cash: dec("10000"), Exposure: dec("1000"), Scale: 1,
			},
			want: 5,
		},
		{
			name: "max position already reached",
			in: SizeInput{
				Params: domain.RiskParams{RiskPerTradePct: 2, MaxPositionSize: dec("1000")},
				Price:  dec("100"), Equity: dec("10000"), Cash: dec("10000"), Exposure: dec("1000"), Scale: 1,
			},
			want: 0,
		},
		{
			name: "below one share",
			in: SizeInput{
				Params: domain.RiskParams{RiskPerTradePct: 1},
				Price:  dec("500"), Equity: dec("1000"), Cash: dec("1000"), Scale: 1,
			},
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuyQuantity(tt.in))
		})
	}
}

func TestSellQuantity(t *testing.T) {
	assert.Equal(t, int64(10), SellQuantity(10, 0.3, false))
	assert.Equal(t, int64(3), SellQuantity(10, 0.35, true))
	assert.Equal(t, int64(0), SellQuantity(0, 1, false))
}

func TestProtectiveExits(t *testing.T) {
	at := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	lots := []domain.PortfolioLot{
		{ID: "a", Symbol: "AAPL", Quantity: 10, Remaining: 10, Price: dec("100"), AcquiredAt: at},
		{ID: "b", Symbol: "AAPL", Quantity: 5, Remaining: 5, Price: dec("90"), AcquiredAt: at},
		{ID: "c", Symbol: "AAPL", Quantity: 5, Remaining: 0, Price: dec("200"), AcquiredAt: at},
	}
	params := domain.RiskParams{StopLossPct: 5, TakeProfitPct: 5}

	// 95 hits the stop of lot a and the take-profit of lot b (94.5).
	exits := ProtectiveExits(lots, dec("95"), params)
	require.Len(t, exits, 2)
	assert.Equal(t, "a", exits[0].Lot.ID)
	assert.Equal(t, domain.ReasonStopLoss, exits[0].Reason)
	assert.Equal(t, "b", exits[1].Lot.ID)
	assert.Equal(t, domain.ReasonTakeProfit, exits[1].Reason)

	assert.Empty(t, ProtectiveExits(lots, dec("94"), domain.RiskParams{}))
	assert.Empty(t, ProtectiveExits(lots, dec("96"), domain.RiskParams{StopLossPct: 5}))
}
