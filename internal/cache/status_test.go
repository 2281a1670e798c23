package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"stock-bot-lab/internal/domain"
)

func TestStatusCache_PublishAndGet(t *testing.T) {
	ctx := context.Background()
	sc := NewStatusCache(NewMemoryStore(), time.Hour, nil)

	_, found, err := sc.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.False(t, found)

	p := domain.RunProgress{RunID: "run-1", Status: domain.RunStatusRunning, Progress: 40, DaysCompleted: 2, TotalDays: 5}
	require.NoError(t, sc.PublishProgress(ctx, p))

	p.Progress = 60
	p.DaysCompleted = 3
	require.NoError(t, sc.PublishProgress(ctx, p))

	got, found, err := sc.Get(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 60.0, got.Progress)
	assert.Equal(t, 3, got.DaysCompleted)
	assert.Equal(t, domain.RunStatusRunning, got.Status)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, s.Set(ctx, "forever", []byte("v"), 0))

	now = now.Add(2 * time.Minute)
	_, found, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = s.Get(ctx, "forever")
	require.NoError(t, err)
	assert.True(t, found)

	require.NoError(t, s.Delete(ctx, "forever"))
	_, found, _ = s.Get(ctx, "forever")
	assert.False(t, found)
}

func TestStatusKey(t *testing.T) {
	assert.Equal(t, "sbl:run:abc:status", StatusKey("abc"))
}

func TestRedisStore_StatusRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	defer func() { _ = container.Terminate(ctx) }()

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	store := NewRedisStore(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	defer store.Close()
	require.NoError(t, store.Ping(ctx))

	sc := NewStatusCache(store, time.Minute, nil)
	require.NoError(t, sc.PublishProgress(ctx, domain.RunProgress{RunID: "run-1", Status: domain.RunStatusCompleted, Progress: 100}))

	got, found, err := sc.Get(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.RunStatusCompleted, got.Status)

	ttl, err := store.Client.TTL(ctx, StatusKey("run-1")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}
