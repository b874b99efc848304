package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/scbot/internal/cache"
	"github.com/sawpanic/scbot/internal/domain"
	"github.com/sawpanic/scbot/internal/net/budget"
	"github.com/sawpanic/scbot/internal/net/ratelimit"
)

type fakeProvider struct {
	name  string
	host  string
	caps  map[Capability]bool
	spot  func(ctx context.Context, coinKey string, chain domain.Chain) (domain.PriceQuote, error)
	at    func(ctx context.Context, coinKey string, chain domain.Chain, at time.Time) (domain.PriceQuote, error)
	ohlc  func(ctx context.Context, coinKey string, chain domain.Chain, from, to time.Time, g domain.Granularity) ([]domain.Candle, error)
}

func (f *fakeProvider) Name() string                       { return f.name }
func (f *fakeProvider) Host() string                       { return f.host }
func (f *fakeProvider) Capabilities() map[Capability]bool { return f.caps }

func (f *fakeProvider) FetchSpot(ctx context.Context, coinKey string, chain domain.Chain) (domain.PriceQuote, error) {
	return f.spot(ctx, coinKey, chain)
}
func (f *fakeProvider) FetchAt(ctx context.Context, coinKey string, chain domain.Chain, at time.Time) (domain.PriceQuote, error) {
	return f.at(ctx, coinKey, chain, at)
}
func (f *fakeProvider) FetchOHLC(ctx context.Context, coinKey string, chain domain.Chain, from, to time.Time, g domain.Granularity) ([]domain.Candle, error) {
	return f.ohlc(ctx, coinKey, chain, from, to, g)
}

func newTestFabric(t *testing.T, providers ...*fakeProvider) *Fabric {
	t.Helper()
	rl := ratelimit.NewManager()
	bm := budget.NewManager()
	for _, p := range providers {
		rl.AddProvider(p.name, 100, 100)
		bm.AddProvider(p.name, 1_000_000, 0, 0.99)
	}
	breakers := NewBreakerSet(3, 10*time.Second)
	list := make([]Provider, len(providers))
	for i, p := range providers {
		list[i] = p
	}
	return NewFabric(
		map[domain.Chain][]Provider{domain.ChainEthereum: list},
		cache.NewHotCache(100),
		cache.NewHistoricalCache(100),
		rl, bm, breakers,
		2*time.Hour,
	)
}

func TestFabric_GetCurrent_FallsBackOnFailure(t *testing.T) {
	failing := &fakeProvider{
		name: "primary", host: "primary.example", caps: map[Capability]bool{CapSpot: true},
		spot: func(ctx context.Context, coinKey string, chain domain.Chain) (domain.PriceQuote, error) {
			return domain.PriceQuote{}, errors.New("boom")
		},
	}
	working := &fakeProvider{
		name: "fallback", host: "fallback.example", caps: map[Capability]bool{CapSpot: true},
		spot: func(ctx context.Context, coinKey string, chain domain.Chain) (domain.PriceQuote, error) {
			return domain.PriceQuote{PriceUSD: decimal.NewFromFloat(2.5)}, nil
		},
	}
	f := newTestFabric(t, failing, working)

	got, err := f.GetCurrent(context.Background(), "AVICI", domain.ChainEthereum)
	if err != nil {
		t.Fatalf("GetCurrent: %v", err)
	}
	if !got.PriceUSD.Equal(decimal.NewFromFloat(2.5)) {
		t.Errorf("price = %v, want 2.5", got.PriceUSD)
	}
}

func TestFabric_GetCurrent_CachesResult(t *testing.T) {
	calls := 0
	p := &fakeProvider{
		name: "primary", host: "primary.example", caps: map[Capability]bool{CapSpot: true},
		spot: func(ctx context.Context, coinKey string, chain domain.Chain) (domain.PriceQuote, error) {
			calls++
			return domain.PriceQuote{PriceUSD: decimal.NewFromFloat(1)}, nil
		},
	}
	f := newTestFabric(t, p)

	if _, err := f.GetCurrent(context.Background(), "AVICI", domain.ChainEthereum); err != nil {
		t.Fatalf("GetCurrent #1: %v", err)
	}
	if _, err := f.GetCurrent(context.Background(), "AVICI", domain.ChainEthereum); err != nil {
		t.Fatalf("GetCurrent #2: %v", err)
	}
	if calls != 1 {
		t.Errorf("provider called %d times, want 1 (second call should hit hot cache)", calls)
	}
}

func TestFabric_GetCurrent_SkipsCapabilityMismatch(t *testing.T) {
	noSpot := &fakeProvider{
		name: "ohlc-only", host: "ohlc.example", caps: map[Capability]bool{CapOHLC: true},
		spot: func(ctx context.Context, coinKey string, chain domain.Chain) (domain.PriceQuote, error) {
			t.Fatalf("capability-mismatched provider should never be called for spot")
			return domain.PriceQuote{}, nil
		},
	}
	f := newTestFabric(t, noSpot)

	_, err := f.GetCurrent(context.Background(), "AVICI", domain.ChainEthereum)
	if !errors.Is(err, ErrAllSourcesUnavailable) {
		t.Fatalf("err = %v, want ErrAllSourcesUnavailable", err)
	}
}

func TestFabric_GetOHLCWindow_CachesHistoricalBucket(t *testing.T) {
	calls := 0
	p := &fakeProvider{
		name: "hist", host: "hist.example", caps: map[Capability]bool{CapOHLC: true},
		ohlc: func(ctx context.Context, coinKey string, chain domain.Chain, from, to time.Time, g domain.Granularity) ([]domain.Candle, error) {
			calls++
			return []domain.Candle{{Open: decimal.NewFromFloat(1)}}, nil
		},
	}
	f := newTestFabric(t, p)
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	if _, err := f.GetOHLCWindow(context.Background(), "AVICI", domain.ChainEthereum, from, to, domain.GranularityDaily); err != nil {
		t.Fatalf("GetOHLCWindow #1: %v", err)
	}
	if _, err := f.GetOHLCWindow(context.Background(), "AVICI", domain.ChainEthereum, from, to, domain.GranularityDaily); err != nil {
		t.Fatalf("GetOHLCWindow #2: %v", err)
	}
	if calls != 1 {
		t.Errorf("provider called %d times, want 1 (second call should hit historical cache)", calls)
	}
}
