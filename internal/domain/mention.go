package domain

import "github.com/shopspring/decimal"

// Engagement holds the raw counters a Message carries for HDRB scoring.
type Engagement struct {
	Forwards  int64 `json:"forwards"`
	Reactions int64 `json:"reactions"`
	Replies   int64 `json:"replies"`
}

// Message is the inbound unit the core consumes from the message source.
type Message struct {
	ID         int64      `json:"id"`
	ChannelID  string     `json:"channel_id"`
	Timestamp  int64      `json:"timestamp"` // unix seconds, UTC
	Text       string     `json:"text"`
	Engagement Engagement `json:"engagement"`
}

// TokenMention is a candidate coin reference extracted from a Message.
// At least one of Symbol or Address must be set; the extractor drops
// mentions where neither is present.
type TokenMention struct {
	Symbol  string `json:"symbol,omitempty"`
	Address string `json:"address,omitempty"`
	Chain   Chain  `json:"chain,omitempty"`

	TextPrice      *decimal.Decimal `json:"text_price,omitempty"`
	TextPriceValid bool             `json:"text_price_valid"`

	ConfidenceHints ConfidenceHints `json:"confidence_hints"`

	Message Message `json:"-"`
}

// ConfidenceHints are detector outputs the Signal Scorer blends into a confidence.
type ConfidenceHints struct {
	SentimentPositive bool
	SentimentNegative bool
	HasAddress        bool
}

// CoinKey returns the mention's identity key: address if present, else the
// upper-cased symbol. Signals are unique on (message, channel, coin key).
func (m TokenMention) CoinKey() string {
	if m.Address != "" {
		return m.Address
	}
	return m.Symbol
}

// Valid reports whether the mention carries enough identity to be priced.
func (m TokenMention) Valid() bool {
	return m.Symbol != "" || m.Address != ""
}
