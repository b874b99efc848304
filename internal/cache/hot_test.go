package cache

import (
	"encoding/json"
	"testing"
	"time"

	redisv8 "github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/scbot/internal/domain"
)

func TestMemoryHotCache_LRUEvictsOldest(t *testing.T) {
	c := NewHotCache(2)
	q := func(p float64) domain.PriceQuote {
		return domain.PriceQuote{PriceUSD: decimal.NewFromFloat(p)}
	}

	c.Set("a", q(1), time.Minute)
	c.Set("b", q(2), time.Minute)
	c.Set("c", q(3), time.Minute) // evicts "a", the least recently used

	if _, ok := c.Get("a"); ok {
		t.Errorf("expected a to be evicted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Errorf("expected b to survive")
	}
	if _, ok := c.Get("c"); !ok {
		t.Errorf("expected c to survive")
	}
}

func TestMemoryHotCache_TTLExpiry(t *testing.T) {
	c := NewHotCache(0)
	c.Set("a", domain.PriceQuote{PriceUSD: decimal.NewFromInt(1)}, -time.Second)

	if _, ok := c.Get("a"); ok {
		t.Errorf("expected expired entry to be evicted on read")
	}
}

func TestRedisV8HotCache_GetSet(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewRedisV8HotCache(client)

	quote := domain.PriceQuote{PriceUSD: decimal.NewFromFloat(1.47), Source: domain.SourcePrimaryDEX}
	raw, err := json.Marshal(quote)
	require.NoError(t, err)

	mock.ExpectGet("AVICI|ethereum").SetVal(string(raw))

	got, ok := c.Get("AVICI|ethereum")
	require.True(t, ok)
	assert.True(t, got.PriceUSD.Equal(quote.PriceUSD))

	mock.ExpectSet("AVICI|ethereum", raw, time.Minute).SetVal("OK")
	c.Set("AVICI|ethereum", quote, time.Minute)

	require.NoError(t, mock.ExpectationsWereMet())
}

var _ = redisv8.Nil // keep the v8 import exercised even if unused directly elsewhere
