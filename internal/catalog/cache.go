package catalog

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"commerce-agent/internal/models"
	"commerce-agent/internal/redisclient"
	"commerce-agent/internal/util"

	"go.uber.org/zap"
)

// DefaultCacheTTL bounds repeated identical searches
const DefaultCacheTTL = 30 * time.Second

// Cache stores search results by key. Entries are pure functions of their
// key, so concurrent writers may overwrite each other.
type Cache interface {
	Get(ctx context.Context, key string) ([]models.CatalogItem, bool)
	Set(ctx context.Context, key string, items []models.CatalogItem)
}

type cacheEntry struct {
	storedAt time.Time
	items    []models.CatalogItem
}

// MemoryCache is a process-local TTL cache with lazy eviction on read
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryCache creates a new in-memory search cache
func NewMemoryCache(ttl time.Duration, now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]models.CatalogItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.storedAt) >= c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.items, true
}

func (c *MemoryCache) Set(_ context.Context, key string, items []models.CatalogItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{storedAt: c.now(), items: items}
}

// Len returns the number of stored entries, expired ones included
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// RedisCache shares search results between instances. Redis expires keys itself.
type RedisCache struct {
	redis  *redisclient.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache creates a Redis-backed search cache
func NewRedisCache(redis *redisclient.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{redis: redis, ttl: ttl, logger: util.GetLogger()}
}

// Get treats Redis errors as misses
func (c *RedisCache) Get(ctx context.Context, key string) ([]models.CatalogItem, bool) {
	b, ok, err := c.redis.GetCache(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	var items []models.CatalogItem
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, false
	}
	return items, true
}

// Set is best effort. A failed write only costs a later miss.
func (c *RedisCache) Set(ctx context.Context, key string, items []models.CatalogItem) {
	b, err := json.Marshal(items)
	if err != nil {
		c.logger.Warn("Failed to encode search cache entry", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.redis.SetCache(ctx, key, b, c.ttl); err != nil {
		c.logger.Warn("Failed to write search cache entry", zap.String("key", key), zap.Error(err))
	}
}
