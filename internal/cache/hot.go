// Package cache implements the Pricing Fabric's two caching tiers: a
// bounded hot price cache with LRU eviction under a TTL, and an immutable
// historical OHLC cache with LRU eviction and no TTL. The hot tier
// auto-detects a Redis backend via REDIS_ADDR and falls back to in-memory.
package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/sawpanic/scbot/internal/domain"
)

// HotCache stores the most recent PriceQuote per (coin_key, chain), subject
// to a price-freshness TTL and an LRU size cap.
type HotCache interface {
	Get(key string) (domain.PriceQuote, bool)
	Set(key string, quote domain.PriceQuote, ttl time.Duration)
}

type hotEntry struct {
	quote domain.PriceQuote
	exp   time.Time
	elem  *list.Element
}

// memoryHotCache is an LRU-bounded, TTL-aware in-process hot cache. Entries
// are evicted least-recently-used once maxEntries is exceeded, independent
// of TTL expiry.
type memoryHotCache struct {
	mu         sync.Mutex
	m          map[string]*hotEntry
	lru        *list.List // front = most recently used
	maxEntries int
}

// NewHotCache constructs a bounded in-memory hot cache. maxEntries <= 0
// disables the LRU size cap (TTL eviction only).
func NewHotCache(maxEntries int) HotCache {
	return &memoryHotCache{
		m:          make(map[string]*hotEntry),
		lru:        list.New(),
		maxEntries: maxEntries,
	}
}

func (c *memoryHotCache) Get(key string) (domain.PriceQuote, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.m[key]
	if !ok {
		return domain.PriceQuote{}, false
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		c.removeLocked(key, e)
		return domain.PriceQuote{}, false
	}
	c.lru.MoveToFront(e.elem)
	return e.quote, true
}

func (c *memoryHotCache) Set(key string, quote domain.PriceQuote, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.m[key]; ok {
		existing.quote = quote
		if ttl != 0 {
			existing.exp = time.Now().Add(ttl)
		}
		c.lru.MoveToFront(existing.elem)
		return
	}

	elem := c.lru.PushFront(key)
	e := &hotEntry{quote: quote, elem: elem}
	if ttl != 0 {
		e.exp = time.Now().Add(ttl)
	}
	c.m[key] = e

	if c.maxEntries > 0 {
		for len(c.m) > c.maxEntries {
			oldest := c.lru.Back()
			if oldest == nil {
				break
			}
			c.removeLocked(oldest.Value.(string), c.m[oldest.Value.(string)])
		}
	}
}

func (c *memoryHotCache) removeLocked(key string, e *hotEntry) {
	if e == nil {
		return
	}
	c.lru.Remove(e.elem)
	delete(c.m, key)
}

// redisHotCache adapts HotCache onto a shared Redis instance so multiple
// processes can share hot quotes.
type redisHotCache struct {
	r *redis.Client
}

// NewAutoHotCache returns a Redis-backed hot cache when REDIS_ADDR is set,
// otherwise an in-process LRU cache bounded at maxEntries.
func NewAutoHotCache(maxEntries int) HotCache {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return &redisHotCache{r: redis.NewClient(&redis.Options{Addr: addr})}
	}
	return NewHotCache(maxEntries)
}

func (r *redisHotCache) Get(key string) (domain.PriceQuote, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	raw, err := r.r.Get(ctx, key).Bytes()
	if err != nil {
		return domain.PriceQuote{}, false
	}
	var quote domain.PriceQuote
	if err := json.Unmarshal(raw, &quote); err != nil {
		return domain.PriceQuote{}, false
	}
	return quote, true
}

func (r *redisHotCache) Set(key string, quote domain.PriceQuote, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	raw, err := json.Marshal(quote)
	if err != nil {
		return
	}
	_ = r.r.Set(ctx, key, raw, ttl).Err()
}
