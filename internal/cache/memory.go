package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const defaultMemoryTTL = 5 * time.Minute

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryCache is a process-local LRU with a TTL ceiling. Values are stored
// JSON-encoded so a hit never hands out a reference shared with another
// caller. Entries set with a shorter TTL expire at their own deadline.
type MemoryCache struct {
	mu         sync.Mutex
	lru        *expirable.LRU[string, memoryEntry]
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

// NewMemoryCache holds at most maxEntries values (0 means unbounded), none of
// them longer than ttl.
func NewMemoryCache(maxEntries int, ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = defaultMemoryTTL
	}
	return &MemoryCache{
		lru:        expirable.NewLRU[string, memoryEntry](maxEntries, nil, ttl),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

func (m *MemoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	if ttl <= 0 || ttl > m.ttl {
		ttl = m.ttl
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lru.Add(key, memoryEntry{data: data, expiresAt: m.now().Add(ttl)})
	return nil
}

func (m *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	entry, ok := m.lru.Get(key)
	if ok && !m.now().Before(entry.expiresAt) {
		m.lru.Remove(key)
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		return ErrCacheMiss
	}
	if err := json.Unmarshal(entry.data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal cached data: %w", err)
	}
	return nil
}

func (m *MemoryCache) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		m.lru.Remove(key)
	}
	return nil
}

func (m *MemoryCache) DeletePattern(_ context.Context, pattern string) error {
	if _, err := path.Match(pattern, ""); err != nil {
		return fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range m.lru.Keys() {
		if ok, _ := path.Match(pattern, key); ok {
			m.lru.Remove(key)
		}
	}
	return nil
}

func (m *MemoryCache) Len() int {
	return m.lru.Len()
}

func (m *MemoryCache) Stats() map[string]interface{} {
	return map[string]interface{}{
		"entries":     m.Len(),
		"max_entries": m.maxEntries,
		"ttl":         m.ttl.String(),
	}
}

func (m *MemoryCache) Health(context.Context) error {
	return nil
}

func (m *MemoryCache) Close() error {
	m.lru.Purge()
	return nil
}
