// Package mention implements the Mention Extractor: from raw
// message text, it emits zero or more TokenMention records carrying a
// symbol and/or address, an optional text-price literal, and detector hints
// the Signal Scorer later blends into a confidence.
package mention

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/scbot/internal/domain"
)

var (
	dollarSymbolRe = regexp.MustCompile(`\$([A-Za-z]{2,10})\b`)
	bareSymbolRe   = regexp.MustCompile(`\b([A-Z]{2,10})\b`)

	ethAddressRe    = regexp.MustCompile(`\b0x[a-fA-F0-9]{40}\b`)
	solanaAddressRe = regexp.MustCompile(`\b[1-9A-HJ-NP-Za-km-z]{32,44}\b`)

	textPriceRe = regexp.MustCompile(`(?i)(bought|entry|at|@)\s*\$?(\d+(\.\d+)?)`)

	positiveKeywordRe = regexp.MustCompile(`(?i)\b(moon|pump|bullish|gem|breakout|accumulate|buy)\b`)
	negativeKeywordRe = regexp.MustCompile(`(?i)\b(rug|scam|dump|bearish|avoid|sell|dead)\b`)
)

const (
	minTextPrice = "0.00000001" // 1e-8
	maxTextPrice = "1000000"    // 1e6
)

// Extractor emits TokenMention records from raw Message text.
type Extractor struct {
	vocab *Vocabulary
}

// NewExtractor constructs an Extractor backed by a domain vocabulary of
// known coin symbols: bare-word matches must hit the vocabulary,
// $-prefixed matches do not.
func NewExtractor(vocab *Vocabulary) *Extractor {
	return &Extractor{vocab: vocab}
}

// Extract returns zero or more TokenMention records for msg. A message with
// no valid mention yields an empty slice, which is not an error.
func (e *Extractor) Extract(msg domain.Message) []domain.TokenMention {
	text := msg.Text

	addresses := e.extractAddresses(text)
	symbols := e.extractSymbols(text)

	if len(addresses) == 0 && len(symbols) == 0 {
		return nil
	}

	textPrice, priceOK := e.extractTextPrice(text)
	hints := domain.ConfidenceHints{
		SentimentPositive: positiveKeywordRe.MatchString(text),
		SentimentNegative: negativeKeywordRe.MatchString(text),
	}

	mentions := make([]domain.TokenMention, 0, len(addresses)+len(symbols))

	for _, a := range addresses {
		h := hints
		h.HasAddress = true
		m := domain.TokenMention{
			Address:         a.address,
			Chain:           a.chain,
			ConfidenceHints: h,
			Message:         msg,
		}
		if priceOK {
			m.TextPrice = &textPrice
			m.TextPriceValid = true
		}
		mentions = append(mentions, m)
	}

	for _, sym := range symbols {
		m := domain.TokenMention{
			Symbol:          sym,
			Chain:           domain.ChainOther, // no address, chain unknown
			ConfidenceHints: hints,
			Message:         msg,
		}
		if priceOK {
			m.TextPrice = &textPrice
			m.TextPriceValid = true
		}
		mentions = append(mentions, m)
	}

	return mentions
}

type addressMatch struct {
	address string
	chain   domain.Chain
}

func (e *Extractor) extractAddresses(text string) []addressMatch {
	var out []addressMatch
	seen := make(map[string]struct{})

	for _, m := range ethAddressRe.FindAllString(text, -1) {
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, addressMatch{address: m, chain: domain.ChainEthereum})
	}
	for _, m := range solanaAddressRe.FindAllString(text, -1) {
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, addressMatch{address: m, chain: domain.ChainSolana})
	}
	return out
}

func (e *Extractor) extractSymbols(text string) []string {
	seen := make(map[string]struct{})
	var out []string

	for _, m := range dollarSymbolRe.FindAllStringSubmatch(text, -1) {
		sym := strings.ToUpper(m[1])
		if isDenied(sym) {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}

	if e.vocab != nil {
		for _, m := range bareSymbolRe.FindAllString(text, -1) {
			sym := strings.ToUpper(m)
			if isDenied(sym) {
				continue
			}
			if _, dup := seen[sym]; dup {
				continue
			}
			if !e.vocab.Contains(sym) {
				continue
			}
			seen[sym] = struct{}{}
			out = append(out, sym)
		}
	}

	return out
}

// extractTextPrice parses a price literal. A match outside [1e-8, 1e6] is
// dropped (the caller records nothing; extraction continues).
func (e *Extractor) extractTextPrice(text string) (decimal.Decimal, bool) {
	match := textPriceRe.FindStringSubmatch(text)
	if match == nil {
		return decimal.Zero, false
	}
	val, err := strconv.ParseFloat(match[2], 64)
	if err != nil {
		return decimal.Zero, false
	}
	price := decimal.NewFromFloat(val)
	min, _ := decimal.NewFromString(minTextPrice)
	max, _ := decimal.NewFromString(maxTextPrice)
	if price.LessThan(min) || price.GreaterThan(max) {
		return decimal.Zero, false
	}
	return price, true
}
