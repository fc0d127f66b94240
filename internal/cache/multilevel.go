package cache

import (
	"context"
	"errors"
	"log"
	"time"
)

// MultiLevelCache reads from the in-process L1 first and falls back to Redis.
// Redis errors are absorbed: the L2 sits behind a circuit breaker and a failing
// L2 degrades to L1-only operation instead of failing the request.
type MultiLevelCache struct {
	l1      *MemoryCache
	l2      Cache
	breaker *CircuitBreaker
	metrics *CacheMetrics
	l1TTL   time.Duration
}

type MultiLevelOption func(*MultiLevelCache)

func WithL1TTL(ttl time.Duration) MultiLevelOption {
	return func(c *MultiLevelCache) { c.l1TTL = ttl }
}

func WithBreaker(cb *CircuitBreaker) MultiLevelOption {
	return func(c *MultiLevelCache) { c.breaker = cb }
}

// NewMultiLevelCache combines l1 with an optional l2. A nil l2 gives an
// L1-only cache.
func NewMultiLevelCache(l1 *MemoryCache, l2 Cache, opts ...MultiLevelOption) *MultiLevelCache {
	c := &MultiLevelCache{
		l1:      l1,
		l2:      l2,
		breaker: NewCircuitBreaker(DefaultBreakerConfig()),
		metrics: NewCacheMetrics(),
		l1TTL:   time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *MultiLevelCache) l1Lifetime(ttl time.Duration) time.Duration {
	if ttl > 0 && ttl < c.l1TTL {
		return ttl
	}
	return c.l1TTL
}

func (c *MultiLevelCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := c.l1.Set(ctx, key, value, c.l1Lifetime(ttl)); err != nil {
		c.metrics.RecordError()
		return err
	}
	c.metrics.RecordSet()

	c.onL2("set", func() error { return c.l2.Set(ctx, key, value, ttl) })
	return nil
}

func (c *MultiLevelCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := c.l1.Get(ctx, key, dest); err == nil {
		c.metrics.RecordL1Hit()
		return nil
	}

	if c.l2 != nil {
		err := c.breaker.Execute(func() error { return c.l2.Get(ctx, key, dest) })
		switch {
		case err == nil:
			c.metrics.RecordL2Hit()
			_ = c.l1.Set(ctx, key, dest, c.l1TTL)
			return nil
		case errors.Is(err, ErrCacheMiss):
		default:
			c.metrics.RecordError()
		}
	}

	c.metrics.RecordMiss()
	return ErrCacheMiss
}

func (c *MultiLevelCache) Delete(ctx context.Context, keys ...string) error {
	_ = c.l1.Delete(ctx, keys...)
	c.metrics.RecordDelete()

	c.onL2("delete", func() error { return c.l2.Delete(ctx, keys...) })
	return nil
}

func (c *MultiLevelCache) DeletePattern(ctx context.Context, pattern string) error {
	if err := c.l1.DeletePattern(ctx, pattern); err != nil {
		return err
	}
	c.metrics.RecordDelete()

	c.onL2("delete pattern", func() error { return c.l2.DeletePattern(ctx, pattern) })
	return nil
}

func (c *MultiLevelCache) onL2(op string, fn func() error) {
	if c.l2 == nil {
		return
	}
	if err := c.breaker.Execute(fn); err != nil {
		c.metrics.RecordError()
		if !errors.Is(err, ErrBreakerOpen) {
			log.Printf("cache: l2 %s failed: %v", op, err)
		}
	}
}

func (c *MultiLevelCache) Metrics() MetricsSnapshot {
	return c.metrics.Snapshot()
}

func (c *MultiLevelCache) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"l1":      c.l1.Stats(),
		"metrics": c.metrics.Snapshot(),
		"breaker": c.breaker.Stats(),
	}
	if c.l2 != nil {
		stats["l2"] = c.l2.Stats()
	}
	return stats
}

// Health reports ErrCacheDown when the L2 breaker is open, otherwise the L2
// ping result.
func (c *MultiLevelCache) Health(ctx context.Context) error {
	if c.l2 == nil {
		return nil
	}
	if c.breaker.State() == BreakerOpen {
		return ErrCacheDown
	}
	return c.l2.Health(ctx)
}

func (c *MultiLevelCache) Close() error {
	_ = c.l1.Close()
	if c.l2 != nil {
		return c.l2.Close()
	}
	return nil
}
