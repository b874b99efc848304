// Package pricing implements the Pricing Fabric: an ordered,
// capability-aware, rate/budget/circuit-guarded router over price
// providers, backed by a hot cache and a historical cache.
package pricing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/scbot/internal/domain"
)

// Capability names one call shape a Provider can serve.
type Capability string

const (
	CapSpot  Capability = "spot"
	CapAt    Capability = "at"
	CapOHLC  Capability = "ohlc"
)

// Provider is one upstream price source. Each declares the subset of calls
// it can serve and its own rate budget; the fabric never calls a provider
// for a capability it has not declared; capability-mismatched calls skip
// straight to the next provider in the chain.
type Provider interface {
	Name() string
	Host() string
	Capabilities() map[Capability]bool

	FetchSpot(ctx context.Context, coinKey string, chain domain.Chain) (domain.PriceQuote, error)
	FetchAt(ctx context.Context, coinKey string, chain domain.Chain, at time.Time) (domain.PriceQuote, error)
	FetchOHLC(ctx context.Context, coinKey string, chain domain.Chain, from, to time.Time, granularity domain.Granularity) ([]domain.Candle, error)
}

func (p Capability) has(caps map[Capability]bool) bool {
	return caps[p]
}

// entryConfidenceBand returns the [low, high] confidence band for an
// EntrySourceTag.
func entryConfidenceBand(tag domain.EntrySourceTag) (low, high float64) {
	switch tag {
	case domain.EntryMessageText:
		return 0.85, 0.95
	case domain.EntryHistoricalOHLC:
		return 0.70, 0.85
	case domain.EntryCurrentPriceFallback:
		return 0.20, 0.40
	default:
		return 0, 0
	}
}

// EntryConfidence returns the midpoint of the provenance band for tag,
// before any discrepancy/late-pump adjustments are applied.
func EntryConfidence(tag domain.EntrySourceTag) decimal.Decimal {
	low, high := entryConfidenceBand(tag)
	return decimal.NewFromFloat((low + high) / 2)
}
