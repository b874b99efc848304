package pricing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/scbot/internal/domain"
)

const (
	discrepancyThreshold = 0.10
	discrepancyPenalty   = 0.10
	latePumpThreshold    = 0.50
	latePumpMultiplier   = 0.80
)

// EntryResolution is the outcome of resolving a signal candidate's entry
// price: the provenance-weighted price, its source tag,
// and the audit flags that feed into final confidence.
type EntryResolution struct {
	EntryPrice       decimal.Decimal
	Source           domain.EntrySourceTag
	Confidence       decimal.Decimal
	PriceDiscrepancy bool
	LatePump         bool
}

// ResolveEntry implements the full entry-price provenance logic: prefer a
// valid message-text price, cross-check it against historical OHLC at the
// same timestamp (discrepancy rule), fall back to historical OHLC or the
// current price when no text price is available, then apply the late-pump
// check when the entry came from message text.
func (f *Fabric) ResolveEntry(ctx context.Context, coinKey string, chain domain.Chain, textPrice *decimal.Decimal, textPriceValid bool, messageTime time.Time) (EntryResolution, error) {
	var res EntryResolution

	histQuote, histErr := f.GetAt(ctx, coinKey, chain, messageTime)

	switch {
	case textPriceValid:
		res.EntryPrice = *textPrice
		res.Source = domain.EntryMessageText
		res.Confidence = EntryConfidence(domain.EntryMessageText)

		if histErr == nil && percentDiff(*textPrice, histQuote.PriceUSD) > discrepancyThreshold {
			res.PriceDiscrepancy = true
			// The higher-confidence band (message text) wins; the
			// historical figure is discarded from the entry but the
			// flag keeps it auditable via the signal record.
			res.Confidence = res.Confidence.Sub(decimal.NewFromFloat(discrepancyPenalty))
		}

	case histErr == nil:
		res.EntryPrice = histQuote.PriceUSD
		res.Source = domain.EntryHistoricalOHLC
		res.Confidence = EntryConfidence(domain.EntryHistoricalOHLC)

	default:
		current, err := f.GetCurrent(ctx, coinKey, chain)
		if err != nil {
			return EntryResolution{}, ErrAllSourcesUnavailable
		}
		res.EntryPrice = current.PriceUSD
		res.Source = domain.EntryCurrentPriceFallback
		res.Confidence = EntryConfidence(domain.EntryCurrentPriceFallback)
	}

	if res.Source == domain.EntryMessageText {
		if dayOpen, err := f.dayOpen(ctx, coinKey, chain, messageTime); err == nil && !dayOpen.IsZero() {
			if percentDiff(res.EntryPrice, dayOpen) > latePumpThreshold && res.EntryPrice.GreaterThan(dayOpen) {
				res.LatePump = true
				res.Confidence = res.Confidence.Mul(decimal.NewFromFloat(latePumpMultiplier))
			}
		}
	}

	return res, nil
}

// dayOpen fetches the UTC day's opening price for coinKey as of at, used by
// the late-pump check.
func (f *Fabric) dayOpen(ctx context.Context, coinKey string, chain domain.Chain, at time.Time) (decimal.Decimal, error) {
	dayStart := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
	candles, err := f.GetOHLCWindow(ctx, coinKey, chain, dayStart, dayStart.Add(24*time.Hour), domain.GranularityDaily)
	if err != nil || len(candles) == 0 {
		return decimal.Zero, err
	}
	return candles[0].Open, nil
}
