package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceQuote is a single-use return value from the Pricing Fabric. Selected
// fields are copied into Signal.entry or a Checkpoint; the quote itself is
// never stored directly.
type PriceQuote struct {
	PriceUSD decimal.Decimal `json:"price_usd"`
	Source   PriceSource     `json:"source"`
	AsOf     time.Time       `json:"as_of"`

	MarketCapUSD      *decimal.Decimal `json:"market_cap_usd,omitempty"`
	Volume24hUSD      *decimal.Decimal `json:"volume_24h_usd,omitempty"` // nil = unknown, never a terminating zero
	LiquidityUSD      *decimal.Decimal `json:"liquidity_usd,omitempty"`
	PriceChange24hPct *decimal.Decimal `json:"price_change_24h_pct,omitempty"`

	Confidence decimal.Decimal `json:"confidence"`

	PriceDiscrepancy bool `json:"price_discrepancy,omitempty"`
	LatePump         bool `json:"late_pump,omitempty"`
}

// Candle is one OHLC bar returned by get_ohlc_window.
type Candle struct {
	OpenTime time.Time       `json:"open_time"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	Volume   *decimal.Decimal `json:"volume,omitempty"`
}

// Granularity is the closed set of OHLC bar widths the fabric supports.
type Granularity string

const (
	GranularityHourly Granularity = "hourly"
	GranularityDaily  Granularity = "daily"
)
