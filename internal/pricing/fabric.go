package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/scbot/internal/cache"
	"github.com/sawpanic/scbot/internal/domain"
	"github.com/sawpanic/scbot/internal/net/budget"
	"github.com/sawpanic/scbot/internal/net/ratelimit"
)

// ErrAllSourcesUnavailable is returned when every configured provider for a
// chain was skipped or failed.
var ErrAllSourcesUnavailable = errors.New("all_sources_unavailable")

// Fabric routes price calls across an ordered, per-chain provider list,
// enforcing rate limits, daily budgets, and circuit breakers before ever
// reaching a provider client. Grounded on
// internal/providers/runtime/fallback_chains.go's FallbackManager:
// cache-first, then primary-then-fallbacks-in-order with per-provider
// skip checks, stopping at the first success.
type Fabric struct {
	providers map[domain.Chain][]Provider

	hot  cache.HotCache
	hist *cache.HistoricalCache

	rl       *ratelimit.Manager
	budget   *budget.Manager
	breakers *BreakerSet

	hotTTL time.Duration
	obs    Observer
}

// Observer receives fabric-internal events for metrics export. All methods
// must be cheap and non-blocking.
type Observer interface {
	CacheHit(tier string)
	CacheMiss(tier string)
	ProviderRequest(provider, outcome string)
}

// SetObserver attaches an optional metrics observer.
func (f *Fabric) SetObserver(obs Observer) { f.obs = obs }

func (f *Fabric) observeCache(tier string, hit bool) {
	if f.obs == nil {
		return
	}
	if hit {
		f.obs.CacheHit(tier)
	} else {
		f.obs.CacheMiss(tier)
	}
}

func (f *Fabric) observeProvider(provider string, err error) {
	if f.obs == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	f.obs.ProviderRequest(provider, outcome)
}

// NewFabric constructs a Fabric. providers gives the ordered per-chain
// routing list; callers register rate limits and budgets on rl/bm for each
// provider name before use. A hotTTL of zero or less keeps spot quotes out
// of the hot cache.
func NewFabric(providers map[domain.Chain][]Provider, hot cache.HotCache, hist *cache.HistoricalCache, rl *ratelimit.Manager, bm *budget.Manager, breakers *BreakerSet, hotTTL time.Duration) *Fabric {
	return &Fabric{
		providers: providers,
		hot:       hot,
		hist:      hist,
		rl:        rl,
		budget:    bm,
		breakers:  breakers,
		hotTTL:    hotTTL,
	}
}

func hotKey(coinKey string, chain domain.Chain) string {
	return fmt.Sprintf("%s|%s", coinKey, chain)
}

// skip reports whether provider p should be bypassed for this call: rate
// bucket exhausted, breaker open, or capability not declared.
func (f *Fabric) skip(p Provider, cap Capability) bool {
	if !cap.has(p.Capabilities()) {
		return true
	}
	if f.breakers.IsOpen(p.Name()) {
		return true
	}
	if f.rl.ShouldSkip(p.Name(), p.Host()) {
		return true
	}
	var exhausted *budget.BudgetExhaustedError
	if err := f.budget.Allow(p.Name()); errors.As(err, &exhausted) {
		return true
	}
	return false
}

// GetCurrent implements get_current(coin_key, chain).
func (f *Fabric) GetCurrent(ctx context.Context, coinKey string, chain domain.Chain) (domain.PriceQuote, error) {
	key := hotKey(coinKey, chain)
	if q, ok := f.hot.Get(key); ok {
		f.observeCache("hot", true)
		return q, nil
	}
	f.observeCache("hot", false)

	for _, p := range f.providers[chain] {
		if f.skip(p, CapSpot) {
			continue
		}
		result, err := f.breakers.Execute(p.Name(), func() (interface{}, error) {
			return p.FetchSpot(ctx, coinKey, chain)
		})
		f.observeProvider(p.Name(), err)
		if err != nil {
			continue
		}
		quote := result.(domain.PriceQuote)
		_ = f.budget.Consume(p.Name())
		if f.hotTTL > 0 {
			f.hot.Set(key, quote, f.hotTTL)
		}
		return quote, nil
	}
	return domain.PriceQuote{}, ErrAllSourcesUnavailable
}

// GetAt implements get_at(coin_key, chain, timestamp) (historical spot).
func (f *Fabric) GetAt(ctx context.Context, coinKey string, chain domain.Chain, at time.Time) (domain.PriceQuote, error) {
	for _, p := range f.providers[chain] {
		if f.skip(p, CapAt) {
			continue
		}
		result, err := f.breakers.Execute(p.Name(), func() (interface{}, error) {
			return p.FetchAt(ctx, coinKey, chain, at)
		})
		f.observeProvider(p.Name(), err)
		if err != nil {
			continue
		}
		_ = f.budget.Consume(p.Name())
		return result.(domain.PriceQuote), nil
	}
	return domain.PriceQuote{}, ErrAllSourcesUnavailable
}

// GetOHLCWindow implements get_ohlc_window(coin_key, chain, from, to,
// granularity). Historical buckets are immutable and cached without TTL.
func (f *Fabric) GetOHLCWindow(ctx context.Context, coinKey string, chain domain.Chain, from, to time.Time, granularity domain.Granularity) ([]domain.Candle, error) {
	histKey := cache.HistoricalKey{
		CoinKey:     coinKey,
		Chain:       chain,
		Date:        from.UTC().Format("2006-01-02") + "_" + to.UTC().Format("2006-01-02"),
		Granularity: granularity,
	}
	if candles, ok := f.hist.Get(histKey); ok {
		f.observeCache("historical", true)
		return candles, nil
	}
	f.observeCache("historical", false)

	for _, p := range f.providers[chain] {
		if f.skip(p, CapOHLC) {
			continue
		}
		result, err := f.breakers.Execute(p.Name(), func() (interface{}, error) {
			return p.FetchOHLC(ctx, coinKey, chain, from, to, granularity)
		})
		f.observeProvider(p.Name(), err)
		if err != nil {
			continue
		}
		candles := result.([]domain.Candle)
		_ = f.budget.Consume(p.Name())
		f.hist.Set(histKey, candles)
		return candles, nil
	}
	return nil, ErrAllSourcesUnavailable
}

// percentDiff returns |a-b|/b as a float64, or 0 if b is zero.
func percentDiff(a, b decimal.Decimal) float64 {
	if b.IsZero() {
		return 0
	}
	diff := a.Sub(b).Abs()
	ratio, _ := diff.Div(b).Float64()
	return ratio
}
