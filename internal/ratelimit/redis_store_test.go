package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "test:rl:"), mr
}

func TestRedisStoreFixedWindow(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)
	limiter := NewLimiter(store, time.Minute, zap.NewNop(), nil)

	got := []bool{}
	for i := 0; i < 4; i++ {
		got = append(got, limiter.Allow(ctx, 5, "appeal.create", 3))
	}
	assert.Equal(t, []bool{true, true, true, false}, got)

	left, ok := limiter.TimeUntilReset(ctx, 5, "appeal.create")
	require.True(t, ok)
	assert.LessOrEqual(t, left, time.Minute)
	assert.Positive(t, left)
	assert.Equal(t, 0, limiter.RemainingAttempts(ctx, 5, "appeal.create", 3))

	mr.FastForward(time.Minute)
	assert.True(t, limiter.Allow(ctx, 5, "appeal.create", 3))
}

func TestRedisStorePeekMissing(t *testing.T) {
	store, _ := newRedisStore(t)

	_, _, found, err := store.Peek(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisStoreDelete(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	_, _, err := store.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:rl:k"))

	require.NoError(t, store.Delete(ctx, "k"))
	assert.False(t, mr.Exists("test:rl:k"))
}

func TestRedisStoreUnavailableAdmits(t *testing.T) {
	store, mr := newRedisStore(t)
	limiter := NewLimiter(store, time.Minute, zap.NewNop(), nil)
	mr.Close()

	assert.True(t, limiter.Allow(context.Background(), 1, "a", 0))
}
