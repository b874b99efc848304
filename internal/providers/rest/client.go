// Package rest is a JSON-over-HTTP price provider client. Every configured
// upstream (DEX indexer, spot aggregator, OHLC archive) speaks the same
// neutral wire shape through a per-provider base URL, so the Pricing
// Fabric's ordered routing list is built entirely from configuration.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/scbot/internal/domain"
	"github.com/sawpanic/scbot/internal/pricing"
)

// Config holds one provider's client configuration.
type Config struct {
	Name           string
	Host           string
	BaseURL        string
	Source         domain.PriceSource
	Capabilities   []string // subset of spot, at, ohlc
	RequestTimeout time.Duration
	UserAgent      string
}

// Client implements pricing.Provider over a neutral REST shape:
//
//	GET {base}/spot?coin=...&chain=...
//	GET {base}/at?coin=...&chain=...&ts=...
//	GET {base}/ohlc?coin=...&chain=...&from=...&to=...&granularity=...
type Client struct {
	httpClient *http.Client
	cfg        Config
	caps       map[pricing.Capability]bool
}

// NewClient creates a provider client, filling config defaults.
func NewClient(cfg Config) *Client {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "scbot/1.0"
	}

	caps := make(map[pricing.Capability]bool, len(cfg.Capabilities))
	for _, c := range cfg.Capabilities {
		caps[pricing.Capability(c)] = true
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		cfg:  cfg,
		caps: caps,
	}
}

func (c *Client) Name() string                                { return c.cfg.Name }
func (c *Client) Host() string                                { return c.cfg.Host }
func (c *Client) Capabilities() map[pricing.Capability]bool { return c.caps }

// quotePayload is the neutral spot/at response shape.
type quotePayload struct {
	PriceUSD          string  `json:"price_usd"`
	AsOf              int64   `json:"as_of"`
	MarketCapUSD      *string `json:"market_cap_usd"`
	Volume24hUSD      *string `json:"volume_24h_usd"`
	LiquidityUSD      *string `json:"liquidity_usd"`
	PriceChange24hPct *string `json:"price_change_24h_pct"`
	Confidence        string  `json:"confidence"`
}

// candlePayload is the neutral OHLC bar shape.
type candlePayload struct {
	OpenTime int64   `json:"open_time"`
	Open     string  `json:"open"`
	High     string  `json:"high"`
	Low      string  `json:"low"`
	Close    string  `json:"close"`
	Volume   *string `json:"volume"`
}

func (c *Client) FetchSpot(ctx context.Context, coinKey string, chain domain.Chain) (domain.PriceQuote, error) {
	params := url.Values{"coin": {coinKey}, "chain": {string(chain)}}
	var payload quotePayload
	if err := c.doGet(ctx, "spot", params, &payload); err != nil {
		return domain.PriceQuote{}, err
	}
	return c.toQuote(payload)
}

func (c *Client) FetchAt(ctx context.Context, coinKey string, chain domain.Chain, at time.Time) (domain.PriceQuote, error) {
	params := url.Values{
		"coin":  {coinKey},
		"chain": {string(chain)},
		"ts":    {strconv.FormatInt(at.Unix(), 10)},
	}
	var payload quotePayload
	if err := c.doGet(ctx, "at", params, &payload); err != nil {
		return domain.PriceQuote{}, err
	}
	return c.toQuote(payload)
}

func (c *Client) FetchOHLC(ctx context.Context, coinKey string, chain domain.Chain, from, to time.Time, granularity domain.Granularity) ([]domain.Candle, error) {
	params := url.Values{
		"coin":        {coinKey},
		"chain":       {string(chain)},
		"from":        {strconv.FormatInt(from.Unix(), 10)},
		"to":          {strconv.FormatInt(to.Unix(), 10)},
		"granularity": {string(granularity)},
	}
	var payload []candlePayload
	if err := c.doGet(ctx, "ohlc", params, &payload); err != nil {
		return nil, err
	}

	candles := make([]domain.Candle, 0, len(payload))
	for _, p := range payload {
		candle, err := toCandle(p)
		if err != nil {
			return nil, fmt.Errorf("%s: bad candle: %w", c.cfg.Name, err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func (c *Client) doGet(ctx context.Context, endpoint string, params url.Values, out any) error {
	u := fmt.Sprintf("%s/%s?%s", c.cfg.BaseURL, endpoint, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", c.cfg.Name, err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %s: %w", c.cfg.Name, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%s: %s: unexpected status %d", c.cfg.Name, endpoint, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: %s: decode: %w", c.cfg.Name, endpoint, err)
	}
	return nil
}

func (c *Client) toQuote(p quotePayload) (domain.PriceQuote, error) {
	price, err := decimal.NewFromString(p.PriceUSD)
	if err != nil || !price.IsPositive() {
		return domain.PriceQuote{}, fmt.Errorf("%s: bad price %q", c.cfg.Name, p.PriceUSD)
	}

	confidence := decimal.NewFromInt(1)
	if p.Confidence != "" {
		if parsed, err := decimal.NewFromString(p.Confidence); err == nil {
			confidence = parsed
		}
	}

	quote := domain.PriceQuote{
		PriceUSD:   price,
		Source:     c.cfg.Source,
		AsOf:       time.Unix(p.AsOf, 0).UTC(),
		Confidence: confidence,
	}
	quote.MarketCapUSD = parseOptional(p.MarketCapUSD)
	quote.Volume24hUSD = parseOptional(p.Volume24hUSD)
	quote.LiquidityUSD = parseOptional(p.LiquidityUSD)
	quote.PriceChange24hPct = parseOptional(p.PriceChange24hPct)
	return quote, nil
}

func toCandle(p candlePayload) (domain.Candle, error) {
	open, err := decimal.NewFromString(p.Open)
	if err != nil {
		return domain.Candle{}, err
	}
	high, err := decimal.NewFromString(p.High)
	if err != nil {
		return domain.Candle{}, err
	}
	low, err := decimal.NewFromString(p.Low)
	if err != nil {
		return domain.Candle{}, err
	}
	cls, err := decimal.NewFromString(p.Close)
	if err != nil {
		return domain.Candle{}, err
	}
	return domain.Candle{
		OpenTime: time.Unix(p.OpenTime, 0).UTC(),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    cls,
		Volume:   parseOptional(p.Volume),
	}, nil
}

// parseOptional maps a missing or malformed optional field to nil, never an
// error: unknown stays unknown.
func parseOptional(s *string) *decimal.Decimal {
	if s == nil {
		return nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil
	}
	return &d
}
