package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/scbot/internal/domain"
	"github.com/sawpanic/scbot/internal/pricing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		Name:         "agg_a",
		Host:         "agg-a.example",
		BaseURL:      srv.URL,
		Source:       domain.SourceSpotAggregatorA,
		Capabilities: []string{"spot", "at", "ohlc"},
	})
}

func TestFetchSpot(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/spot", r.URL.Path)
		require.Equal(t, "AVICI", r.URL.Query().Get("coin"))
		w.Write([]byte(`{"price_usd":"1.47","as_of":1748800800,"volume_24h_usd":"12000","confidence":"0.95"}`))
	})

	q, err := c.FetchSpot(context.Background(), "AVICI", domain.ChainEthereum)
	require.NoError(t, err)
	assert.Equal(t, "1.47", q.PriceUSD.String())
	assert.Equal(t, domain.SourceSpotAggregatorA, q.Source)
	require.NotNil(t, q.Volume24hUSD)
	assert.Equal(t, "12000", q.Volume24hUSD.String())
}

func TestFetchSpot_UnknownVolumeStaysNil(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"price_usd":"2.00","as_of":1748800800,"confidence":"0.9"}`))
	})

	q, err := c.FetchSpot(context.Background(), "TOK", domain.ChainSolana)
	require.NoError(t, err)
	assert.Nil(t, q.Volume24hUSD)
}

func TestFetchSpot_NonPositivePriceRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"price_usd":"0","as_of":1748800800}`))
	})

	_, err := c.FetchSpot(context.Background(), "TOK", domain.ChainSolana)
	assert.Error(t, err)
}

func TestFetchOHLC(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ohlc", r.URL.Path)
		require.Equal(t, "hourly", r.URL.Query().Get("granularity"))
		w.Write([]byte(`[{"open_time":1748800800,"open":"1.40","high":"1.52","low":"1.38","close":"1.50","volume":"900"}]`))
	})

	candles, err := c.FetchOHLC(context.Background(), "AVICI", domain.ChainEthereum,
		time.Unix(1748800800, 0), time.Unix(1748887200, 0), domain.GranularityHourly)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.Equal(t, "1.52", candles[0].High.String())
}

func TestFetch_ErrorStatusSurfaced(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.FetchAt(context.Background(), "TOK", domain.ChainOther, time.Now())
	assert.Error(t, err)
}

func TestCapabilities(t *testing.T) {
	c := NewClient(Config{
		Name: "ohlc_archive", Host: "x", BaseURL: "http://x",
		Source: domain.SourceHistoricalOHLC, Capabilities: []string{"ohlc"},
	})
	assert.True(t, c.Capabilities()[pricing.CapOHLC])
	assert.False(t, c.Capabilities()[pricing.CapSpot])
}
