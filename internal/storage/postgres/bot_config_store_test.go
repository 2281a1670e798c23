package postgres

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/storage"
)

func testBot(id string, version int) *domain.BotConfig {
	return &domain.BotConfig{
		ID:      id,
		Version: version,
		Name:    "Momentum " + id,
		Budget: domain.Budget{
			Cash: decimal.NewFromInt(10000),
			Positions: []domain.InitialPosition{
				{Symbol: "AAPL", Quantity: 5, Price: decimal.RequireFromString("180.25")},
			},
		},
		Symbols: []string{"AAPL", "MSFT"},
		Risk: domain.RiskParams{
			RiskPerTradePct: 40,
			StopLossPct:     5,
			TakeProfitPct:   10,
			MaxDailyTrades:  3,
			MaxDailyLoss:    decimal.NewFromInt(500),
		},
		Sources: []domain.SourceConfig{
			{ID: "rsi", Kind: domain.SourceKindIndicator, Enabled: true, Weight: 1, Indicator: "rsi", Params: map[string]float64{"period": 14}},
		},
		Aggregation:        domain.WeightedAverage{},
		RiskScoreThreshold: 70,
		Persistence:        domain.PersistenceConfig{Mode: domain.PersistenceTickCount, Value: 2},
		CreatedAt:          time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestBotConfigStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBotConfigStore(pool)
	ctx := context.Background()

	bot := testBot("bot-a", 1)
	require.NoError(t, store.Insert(ctx, bot))

	got, err := store.Get(ctx, "bot-a", 1)
	require.NoError(t, err)
	assert.Equal(t, bot.Name, got.Name)
	assert.Equal(t, bot.Symbols, got.Symbols)
	assert.True(t, got.Budget.Cash.Equal(bot.Budget.Cash))
	require.Len(t, got.Budget.Positions, 1)
	assert.True(t, got.Budget.Positions[0].Price.Equal(decimal.RequireFromString("180.25")))
	assert.Equal(t, 14.0, got.Sources[0].Param("period", 0))
	assert.Equal(t, domain.PersistenceTickCount, got.Persistence.Mode)
	assert.Equal(t, domain.AggregationWeightedAverage, got.Aggregation.Name())
	assert.True(t, got.CreatedAt.Equal(bot.CreatedAt))

	assert.ErrorIs(t, store.Insert(ctx, bot), storage.ErrDuplicateKey)

	_, err = store.Get(ctx, "bot-a", 2)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBotConfigStore_CustomRuleRoundTrip(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBotConfigStore(pool)
	ctx := context.Background()

	threshold := 30.0
	bot := testBot("bot-rules", 1)
	bot.Aggregation = domain.CustomRule{Rules: domain.RuleSet{
		Buy: &domain.RuleNode{Op: domain.RuleOpLt, Source: "rsi", Field: domain.RuleFieldValue, Number: &threshold},
	}}
	require.NoError(t, store.Insert(ctx, bot))

	got, err := store.Get(ctx, "bot-rules", 1)
	require.NoError(t, err)
	cr, ok := got.Aggregation.(domain.CustomRule)
	require.True(t, ok, "expected custom rule, got %T", got.Aggregation)
	require.NotNil(t, cr.Rules.Buy)
	assert.Equal(t, domain.RuleOpLt, cr.Rules.Buy.Op)
	assert.Equal(t, 30.0, *cr.Rules.Buy.Number)
	assert.Nil(t, cr.Rules.Sell)
}

func TestBotConfigStore_GetLatest(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBotConfigStore(pool)
	ctx := context.Background()

	_, err := store.GetLatest(ctx, "bot-a")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	for _, v := range []int{1, 3, 2} {
		bot := testBot("bot-a", v)
		bot.Name = "v" + strconv.Itoa(v)
		require.NoError(t, store.Insert(ctx, bot))
	}

	got, err := store.GetLatest(ctx, "bot-a")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Version)
	assert.Equal(t, "v3", got.Name)
}

func TestBotConfigStore_InvalidInput(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBotConfigStore(pool)
	ctx := context.Background()

	assert.ErrorIs(t, store.Insert(ctx, nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Insert(ctx, testBot("bot-a", 0)), storage.ErrInvalidInput)

	noMethod := testBot("bot-a", 1)
	noMethod.Aggregation = nil
	assert.ErrorIs(t, store.Insert(ctx, noMethod), storage.ErrInvalidInput)
}
