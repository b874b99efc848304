package mention

import (
	"testing"

	"github.com/sawpanic/scbot/internal/domain"
)

func TestExtract_DollarSymbolAlwaysAccepted(t *testing.T) {
	e := NewExtractor(nil)
	msg := domain.Message{Text: "just bought $AVICI at $1.47, looks like a gem"}

	mentions := e.Extract(msg)
	if len(mentions) != 1 {
		t.Fatalf("got %d mentions, want 1", len(mentions))
	}
	m := mentions[0]
	if m.Symbol != "AVICI" {
		t.Errorf("symbol = %q, want AVICI", m.Symbol)
	}
	if !m.TextPriceValid {
		t.Fatalf("expected a valid text price")
	}
	if got := m.TextPrice.InexactFloat64(); got != 1.47 {
		t.Errorf("text price = %v, want 1.47", got)
	}
	if !m.ConfidenceHints.SentimentPositive {
		t.Errorf("expected positive sentiment hint from 'gem'")
	}
}

func TestExtract_BareSymbolRequiresVocabulary(t *testing.T) {
	vocab := NewVocabulary("AVICI")
	e := NewExtractor(vocab)

	msg := domain.Message{Text: "AVICI is pumping hard right now"}
	mentions := e.Extract(msg)
	if len(mentions) != 1 || mentions[0].Symbol != "AVICI" {
		t.Fatalf("expected AVICI mention, got %+v", mentions)
	}

	msg2 := domain.Message{Text: "RANDOM token nobody knows about"}
	mentions2 := e.Extract(msg2)
	if len(mentions2) != 0 {
		t.Errorf("unvocabularied bare symbol should not match, got %+v", mentions2)
	}
}

func TestExtract_DenyListRejected(t *testing.T) {
	e := NewExtractor(nil)
	msg := domain.Message{Text: "paid in $USD, classic ROI play"}
	mentions := e.Extract(msg)
	if len(mentions) != 0 {
		t.Errorf("deny-listed tokens should never match, got %+v", mentions)
	}
}

func TestExtract_EthereumAddress(t *testing.T) {
	e := NewExtractor(nil)
	msg := domain.Message{Text: "contract: 0x1234567890abcdef1234567890abcdef12345678"}
	mentions := e.Extract(msg)
	if len(mentions) != 1 {
		t.Fatalf("got %d mentions, want 1", len(mentions))
	}
	if mentions[0].Chain != domain.ChainEthereum {
		t.Errorf("chain = %v, want ethereum", mentions[0].Chain)
	}
	if !mentions[0].ConfidenceHints.HasAddress {
		t.Errorf("expected HasAddress hint set")
	}
}

func TestExtract_TextPriceOutOfRangeDropped(t *testing.T) {
	e := NewExtractor(nil)
	msg := domain.Message{Text: "$AVICI entry at $5000000"}
	mentions := e.Extract(msg)
	if len(mentions) != 1 {
		t.Fatalf("got %d mentions, want 1", len(mentions))
	}
	if mentions[0].TextPriceValid {
		t.Errorf("expected out-of-range price to be dropped, extraction should still continue with the mention")
	}
}

func TestExtract_NoMentionYieldsEmpty(t *testing.T) {
	e := NewExtractor(nil)
	msg := domain.Message{Text: "gm everyone, hope you're having a good day"}
	mentions := e.Extract(msg)
	if len(mentions) != 0 {
		t.Errorf("expected no mentions, got %+v", mentions)
	}
}

func TestCoinKey_PrefersAddress(t *testing.T) {
	m := domain.TokenMention{Symbol: "AVICI", Address: "0xabc"}
	if m.CoinKey() != "0xabc" {
		t.Errorf("CoinKey() = %q, want 0xabc", m.CoinKey())
	}
}
