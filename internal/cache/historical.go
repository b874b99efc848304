package cache

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/sawpanic/scbot/internal/domain"
)

// HistoricalKey identifies one immutable OHLC bucket.
type HistoricalKey struct {
	CoinKey     string
	Chain       domain.Chain
	Date        string // YYYY-MM-DD, UTC
	Granularity domain.Granularity
}

func (k HistoricalKey) String() string {
	return fmt.Sprintf("%s|%s|%s|%s", k.CoinKey, k.Chain, k.Date, k.Granularity)
}

// HistoricalCache stores immutable OHLC candle windows with no TTL, only a
// size-bounded LRU: historical prices are immutable, so entries never
// expire, they are only evicted under the size cap.
type HistoricalCache struct {
	mu         sync.Mutex
	m          map[string]*historicalEntry
	lru        *list.List
	maxEntries int
}

type historicalEntry struct {
	candles []domain.Candle
	elem    *list.Element
}

// NewHistoricalCache constructs a historical cache bounded at maxEntries
// buckets. maxEntries <= 0 disables the bound.
func NewHistoricalCache(maxEntries int) *HistoricalCache {
	return &HistoricalCache{
		m:          make(map[string]*historicalEntry),
		lru:        list.New(),
		maxEntries: maxEntries,
	}
}

func (c *HistoricalCache) Get(key HistoricalKey) ([]domain.Candle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key.String()
	e, ok := c.m[k]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(e.elem)
	return e.candles, true
}

func (c *HistoricalCache) Set(key HistoricalKey, candles []domain.Candle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key.String()
	if existing, ok := c.m[k]; ok {
		existing.candles = candles
		c.lru.MoveToFront(existing.elem)
		return
	}

	elem := c.lru.PushFront(k)
	c.m[k] = &historicalEntry{candles: candles, elem: elem}

	if c.maxEntries > 0 {
		for len(c.m) > c.maxEntries {
			oldest := c.lru.Back()
			if oldest == nil {
				break
			}
			key := oldest.Value.(string)
			c.lru.Remove(oldest)
			delete(c.m, key)
		}
	}
}
