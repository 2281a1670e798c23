package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/storage"
)

func testRun(id string, createdAt time.Time) *domain.SimulationRun {
	return &domain.SimulationRun{
		ID:        id,
		Name:      "run " + id,
		Status:    domain.RunStatusPending,
		StartDate: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC),
		Symbols:   []string{"AAPL", "MSFT"},
		Interval:  domain.Interval1Min,
		TotalDays: 5,
		TotalBots: 2,
		CreatedAt: createdAt,
	}
}

func TestSimulationRunStore_InsertUpdateGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSimulationRunStore(pool)
	ctx := context.Background()
	created := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

	run := testRun("run-1", created)
	require.NoError(t, store.Insert(ctx, run))
	assert.ErrorIs(t, store.Insert(ctx, run), storage.ErrDuplicateKey)

	got, err := store.GetByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusPending, got.Status)
	assert.True(t, got.CurrentDay.IsZero())
	assert.Nil(t, got.StartedAt)
	assert.Equal(t, []string{"AAPL", "MSFT"}, got.Symbols)

	started := created.Add(time.Minute)
	run.Status = domain.RunStatusRunning
	run.StartedAt = &started
	run.CurrentDay = run.StartDate.AddDate(0, 0, 1)
	run.DaysCompleted = 1
	run.Progress = 20
	require.NoError(t, store.Update(ctx, run))

	got, err = store.GetByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusRunning, got.Status)
	assert.Equal(t, 20.0, got.Progress)
	assert.Equal(t, 1, got.DaysCompleted)
	assert.True(t, got.CurrentDay.Equal(run.CurrentDay))
	require.NotNil(t, got.StartedAt)
	assert.True(t, got.StartedAt.Equal(started))
	assert.Nil(t, got.FinishedAt)

	assert.ErrorIs(t, store.Update(ctx, testRun("missing", created)), storage.ErrNotFound)

	_, err = store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSimulationRunStore_ListNewestFirst(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSimulationRunStore(pool)
	ctx := context.Background()
	base := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.Insert(ctx, testRun("old", base)))
	require.NoError(t, store.Insert(ctx, testRun("new", base.Add(time.Hour))))
	require.NoError(t, store.Insert(ctx, testRun("mid", base.Add(time.Minute))))

	all, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "new", all[0].ID)
	assert.Equal(t, "mid", all[1].ID)
	assert.Equal(t, "old", all[2].ID)

	limited, err := store.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
