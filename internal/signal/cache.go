package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores recent signals so repeated aggregation cycles within a
// source's TTL avoid redundant provider calls. Implementations must be
// safe for concurrent use; Get must never block on provider I/O.
type Cache interface {
	Get(ctx context.Context, key string) (RawSignal, bool)
	Set(ctx context.Context, key string, sig RawSignal, ttl time.Duration)
}

type memoryEntry struct {
	sig       RawSignal
	expiresAt time.Time
}

// MemoryCache is the default in-process signal cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemoryCache creates an in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (RawSignal, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return RawSignal{}, false
	}
	return entry.sig, true
}

func (c *MemoryCache) Set(_ context.Context, key string, sig RawSignal, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = memoryEntry{sig: sig, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

// RedisCache shares cached signals across bot instances. Failures
// degrade to cache misses; the provider call path stays available.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a Redis-backed signal cache.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) (RawSignal, bool) {
	raw, err := c.client.Get(ctx, "signal:"+key).Bytes()
	if err != nil {
		return RawSignal{}, false
	}
	var sig RawSignal
	if err := json.Unmarshal(raw, &sig); err != nil {
		return RawSignal{}, false
	}
	return sig, true
}

func (c *RedisCache) Set(ctx context.Context, key string, sig RawSignal, ttl time.Duration) {
	raw, err := json.Marshal(sig)
	if err != nil {
		return
	}
	c.client.Set(ctx, "signal:"+key, raw, ttl)
}

// CacheKey builds the cache key for a source/symbol pair.
func CacheKey(source, symbol string) string {
	return fmt.Sprintf("%s:%s", source, symbol)
}
