package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/storage"
)

func TestBotSimulationConfigStore_PinsVersions(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	bots := NewBotConfigStore(pool)
	runs := NewSimulationRunStore(pool)
	pins := NewBotSimulationConfigStore(pool)

	v1 := testBot("bot-b", 1)
	v2 := testBot("bot-b", 2)
	v2.Risk.StopLossPct = 8
	require.NoError(t, bots.Insert(ctx, v1))
	require.NoError(t, bots.Insert(ctx, v2))
	require.NoError(t, bots.Insert(ctx, testBot("bot-a", 1)))
	require.NoError(t, runs.Insert(ctx, testRun("run-1", time.Now().UTC())))

	require.NoError(t, pins.InsertBulk(ctx, []*domain.BotSimulationConfig{
		{RunID: "run-1", BotID: "bot-b", BotVersion: 1},
		{RunID: "run-1", BotID: "bot-a", BotVersion: 1},
	}))

	got, err := pins.GetByRunID(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "bot-a", got[0].BotID)
	assert.Equal(t, "bot-b", got[1].BotID)
	assert.Equal(t, 1, got[1].Config.Version)
	assert.Equal(t, 5.0, got[1].Config.Risk.StopLossPct)
	assert.NotNil(t, got[1].Config.Aggregation)

	err = pins.InsertBulk(ctx, []*domain.BotSimulationConfig{{RunID: "run-1", BotID: "bot-a", BotVersion: 1}})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	empty, err := pins.GetByRunID(ctx, "run-unknown")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDailyResultStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewDailyResultStore(pool)
	ctx := context.Background()
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	r := &domain.DailyResult{
		ID: "dr-1", RunID: "run-1", BotID: "bot-a", Day: day,
		Decisions: 3, TradesExecuted: 2, TradeExecuted: true,
		Cash:             decimal.RequireFromString("6000.50"),
		RealizedPnL:      decimal.RequireFromString("12.5"),
		DailyRealizedPnL: decimal.RequireFromString("12.5"),
		UnrealizedPnL:    decimal.RequireFromString("-3.25"),
		Equity:           decimal.RequireFromString("10009.25"),
		CumulativeProfit: decimal.RequireFromString("9.25"),
		Lots: []domain.PortfolioLot{
			{ID: "lot-1", Symbol: "AAPL", Quantity: 40, Remaining: 20, Price: decimal.NewFromInt(100), AcquiredAt: day.Add(15 * time.Hour)},
		},
		CreatedAt: day.Add(21 * time.Hour),
	}
	require.NoError(t, store.Insert(ctx, r))

	next := r.Clone()
	next.ID = "dr-2"
	next.Day = day.AddDate(0, 0, 1)
	next.Lots = nil
	require.NoError(t, store.Insert(ctx, next))

	got, err := store.GetByRunID(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Day.Equal(day))
	assert.True(t, got[0].Cash.Equal(r.Cash))
	assert.True(t, got[0].UnrealizedPnL.Equal(r.UnrealizedPnL))
	require.Len(t, got[0].Lots, 1)
	assert.Equal(t, int64(20), got[0].Lots[0].Remaining)
	assert.Empty(t, got[1].Lots)

	// Same (run, bot, day) under another id still conflicts
	dup := r.Clone()
	dup.ID = "dr-3"
	assert.ErrorIs(t, store.Insert(ctx, dup), storage.ErrDuplicateKey)
	assert.ErrorIs(t, store.Insert(ctx, r), storage.ErrDuplicateKey)
}

func TestOrderStore_InsertBulkAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewOrderStore(pool)
	ctx := context.Background()
	at := time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)

	order := func(id, bot string, seq int64, status domain.OrderStatus) *domain.Order {
		return &domain.Order{
			ID: id, Seq: seq, RunID: "run-1", BotID: bot, Symbol: "AAPL",
			TransactionType: domain.TransactionSell, OrderType: domain.OrderTypeMarket,
			Quantity: 10, FillPrice: decimal.RequireFromString("101.5"),
			Status: status, Reason: domain.ReasonStopLoss, LotID: "lot-" + id,
			RealizedPnL: decimal.RequireFromString("15"), CreatedAt: at, UpdatedAt: at,
			History: []domain.OrderTransition{
				{From: domain.OrderStatusWaiting, To: domain.OrderStatusInProgress, At: at},
				{From: domain.OrderStatusInProgress, To: status, At: at},
			},
		}
	}

	require.NoError(t, store.InsertBulk(ctx, []*domain.Order{
		order("o-3", "bot-b", 1, domain.OrderStatusDone),
		order("o-2", "bot-a", 2, domain.OrderStatusCancelled),
		order("o-1", "bot-a", 1, domain.OrderStatusDone),
	}))

	got, err := store.GetByRunID(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "o-1", got[0].ID)
	assert.Equal(t, "o-2", got[1].ID)
	assert.Equal(t, "o-3", got[2].ID)
	assert.Equal(t, domain.OrderStatusCancelled, got[1].Status)
	assert.Equal(t, domain.TransactionSell, got[0].TransactionType)
	assert.True(t, got[0].RealizedPnL.Equal(decimal.NewFromInt(15)))
	assert.Equal(t, "lot-o-1", got[0].LotID)
	require.Len(t, got[0].History, 2)
	assert.Equal(t, domain.OrderStatusDone, got[0].History[1].To)

	// Whole batch rolls back on a duplicate
	err = store.InsertBulk(ctx, []*domain.Order{
		order("o-4", "bot-a", 3, domain.OrderStatusDone),
		order("o-1", "bot-a", 1, domain.OrderStatusDone),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	got, err = store.GetByRunID(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, got, 3)
}
