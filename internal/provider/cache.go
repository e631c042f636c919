package provider

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// CachedProvider provides 2-tier caching of search results: L1 in-memory + L2 Redis.
// Only successful searches are cached.
type CachedProvider struct {
	next       Provider
	rdb        *redis.Client // nil if Redis unavailable
	ttl        time.Duration
	maxEntries int
	log        zerolog.Logger

	l1     sync.Map // key → *cacheEntry
	hits   atomic.Int64
	misses atomic.Int64

	now func() time.Time
}

type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

func NewCachedProvider(next Provider, rdb *redis.Client, ttl time.Duration, maxEntries int, log zerolog.Logger) *CachedProvider {
	return &CachedProvider{
		next:       next,
		rdb:        rdb,
		ttl:        ttl,
		maxEntries: maxEntries,
		log:        log,
		now:        time.Now,
	}
}

// CacheKey builds a deterministic cache key from the query with runs of whitespace
// collapsed. Case is preserved.
func CacheKey(query string) string {
	norm := strings.Join(strings.Fields(query), " ")
	hash := sha256.Sum256([]byte(norm))
	return fmt.Sprintf("songify:search:%x", hash[:12])
}

func (c *CachedProvider) Search(ctx context.Context, query string) ([]SearchResultItem, error) {
	key := CacheKey(query)
	if items, ok := c.get(ctx, key); ok {
		c.hits.Add(1)
		return items, nil
	}
	c.misses.Add(1)

	items, err := c.next.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, items)
	return items, nil
}

// Stats returns current cache hit/miss counters.
func (c *CachedProvider) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *CachedProvider) get(ctx context.Context, key string) ([]SearchResultItem, bool) {
	if val, ok := c.l1.Load(key); ok {
		entry := val.(*cacheEntry)
		if c.now().Before(entry.expiresAt) {
			var items []SearchResultItem
			if json.Unmarshal(entry.data, &items) == nil {
				c.log.Debug().Str("key", key).Msg("cache: L1 hit")
				return items, true
			}
		}
		c.l1.Delete(key) // expired or corrupt
	}

	if c.rdb == nil {
		return nil, false
	}
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Debug().Err(err).Msg("cache: L2 get failed")
		}
		return nil, false
	}
	var items []SearchResultItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, false
	}
	c.log.Debug().Str("key", key).Msg("cache: L2 hit")
	c.l1.Store(key, &cacheEntry{data: data, expiresAt: c.now().Add(c.ttl)})
	return items, true
}

func (c *CachedProvider) set(ctx context.Context, key string, items []SearchResultItem) {
	data, err := json.Marshal(items)
	if err != nil {
		return
	}

	c.evictIfNeeded()
	c.l1.Store(key, &cacheEntry{data: data, expiresAt: c.now().Add(c.ttl)})

	if c.rdb != nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.log.Debug().Err(err).Msg("cache: L2 set failed")
		}
	}
}

// evictIfNeeded removes expired entries first, then the entries closest to expiry,
// until L1 is under maxEntries.
func (c *CachedProvider) evictIfNeeded() {
	if c.maxEntries <= 0 {
		return
	}

	count := 0
	c.l1.Range(func(_, _ any) bool {
		count++
		return true
	})
	if count < c.maxEntries {
		return
	}

	now := c.now()
	c.l1.Range(func(key, val any) bool {
		if now.After(val.(*cacheEntry).expiresAt) {
			c.l1.Delete(key)
			count--
		}
		return true
	})

	for count >= c.maxEntries {
		var oldestKey any
		var oldestAt time.Time
		c.l1.Range(func(key, val any) bool {
			e := val.(*cacheEntry)
			if oldestKey == nil || e.expiresAt.Before(oldestAt) {
				oldestKey, oldestAt = key, e.expiresAt
			}
			return true
		})
		if oldestKey == nil {
			return
		}
		c.l1.Delete(oldestKey)
		count--
	}
}
