package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMultiLevel(t *testing.T) (*MultiLevelCache, *RedisCache, *MemoryCache) {
	l2, _ := setupTestRedis(t)
	l1 := NewMemoryCache(100, time.Minute)
	breaker := NewCircuitBreaker(BreakerConfig{MaxFailures: 1, OpenTimeout: time.Hour, HalfOpenSuccesses: 1})
	return NewMultiLevelCache(l1, l2, WithBreaker(breaker), WithL1TTL(time.Minute)), l2, l1
}

func TestMultiLevelCache_WritesBothLevels(t *testing.T) {
	c, l2, l1 := setupMultiLevel(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", testPayload{Name: "x"}, 10*time.Minute))

	var got testPayload
	assert.NoError(t, l1.Get(ctx, "k", &got))
	assert.NoError(t, l2.Get(ctx, "k", &got))
}

func TestMultiLevelCache_L2HitPopulatesL1(t *testing.T) {
	c, l2, l1 := setupMultiLevel(t)
	ctx := context.Background()

	require.NoError(t, l2.Set(ctx, "k", testPayload{Name: "from-redis"}, time.Minute))

	var got testPayload
	require.NoError(t, c.Get(ctx, "k", &got))
	assert.Equal(t, "from-redis", got.Name)
	assert.Equal(t, 1, l1.Len())

	require.NoError(t, c.Get(ctx, "k", &got))
	m := c.Metrics()
	assert.Equal(t, int64(1), m.L1Hits)
	assert.Equal(t, int64(1), m.L2Hits)
}

func TestMultiLevelCache_Miss(t *testing.T) {
	c, _, _ := setupMultiLevel(t)

	var got testPayload
	assert.ErrorIs(t, c.Get(context.Background(), "absent", &got), ErrCacheMiss)
	assert.Equal(t, int64(1), c.Metrics().Misses)
	assert.Equal(t, int64(0), c.Metrics().Errors)
}

func TestMultiLevelCache_DeletePatternBothLevels(t *testing.T) {
	c, l2, l1 := setupMultiLevel(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "task:alice:1", 1, time.Minute))
	require.NoError(t, c.Set(ctx, "task:bob:1", 2, time.Minute))
	require.NoError(t, c.DeletePattern(ctx, "task:alice:*"))

	var got int
	assert.ErrorIs(t, l1.Get(ctx, "task:alice:1", &got), ErrCacheMiss)
	assert.ErrorIs(t, l2.Get(ctx, "task:alice:1", &got), ErrCacheMiss)
	assert.NoError(t, c.Get(ctx, "task:bob:1", &got))
}

func TestMultiLevelCache_DegradesWhenRedisFails(t *testing.T) {
	l2, mr := setupTestRedis(t)
	l1 := NewMemoryCache(100, time.Minute)
	breaker := NewCircuitBreaker(BreakerConfig{MaxFailures: 1, OpenTimeout: time.Hour, HalfOpenSuccesses: 1})
	c := NewMultiLevelCache(l1, l2, WithBreaker(breaker))
	ctx := context.Background()

	mr.Close()

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute), "l2 failures are absorbed")
	assert.Equal(t, BreakerOpen, breaker.State())
	assert.ErrorIs(t, c.Health(ctx), ErrCacheDown)

	var got string
	require.NoError(t, c.Get(ctx, "k", &got))
	assert.Equal(t, "v", got)
}

func TestMultiLevelCache_L1Only(t *testing.T) {
	c := NewMultiLevelCache(NewMemoryCache(10, time.Minute), nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", 7, time.Minute))
	var got int
	require.NoError(t, c.Get(ctx, "k", &got))
	assert.Equal(t, 7, got)
	assert.NoError(t, c.Health(ctx))
	assert.NotContains(t, c.Stats(), "l2")
}
