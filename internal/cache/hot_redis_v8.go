package cache

import (
	"context"
	"encoding/json"
	"time"

	redisv8 "github.com/go-redis/redis/v8"

	"github.com/sawpanic/scbot/internal/domain"
)

// redisHotCacheV8 adapts HotCache onto a go-redis v8 client. Production
// wiring uses the v9 client (redisHotCache); this variant exists so the
// cache layer can be exercised against github.com/go-redis/redismock/v8 in
// tests without dragging the v8 client into the live code path.
type redisHotCacheV8 struct {
	r *redisv8.Client
}

// NewRedisV8HotCache wraps an existing go-redis v8 client as a HotCache.
func NewRedisV8HotCache(client *redisv8.Client) HotCache {
	return &redisHotCacheV8{r: client}
}

func (r *redisHotCacheV8) Get(key string) (domain.PriceQuote, bool) {
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

func (r *redisHotCacheV8) Set(key string, quote domain.PriceQuote, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	raw, err := json.Marshal(quote)
	if err != nil {
		return
	}
	_ = r.r.Set(ctx, key, raw, ttl).Err()
}
