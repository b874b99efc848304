package outcome

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/scbot/internal/cache"
	"github.com/sawpanic/scbot/internal/clock"
	"github.com/sawpanic/scbot/internal/domain"
	"github.com/sawpanic/scbot/internal/net/budget"
	"github.com/sawpanic/scbot/internal/net/ratelimit"
	"github.com/sawpanic/scbot/internal/pricing"
)

// priceProvider is a minimal pricing.Provider test double whose spot price
// can be changed between Tick calls to simulate market movement.
type priceProvider struct {
	name  string
	price decimal.Decimal
	fail  bool
}

func (p *priceProvider) Name() string { return p.name }
func (p *priceProvider) Host() string { return p.name + ".example" }
func (p *priceProvider) Capabilities() map[pricing.Capability]bool {
	return map[pricing.Capability]bool{pricing.CapSpot: true, pricing.CapAt: true, pricing.CapOHLC: true}
}
func (p *priceProvider) FetchSpot(ctx context.Context, coinKey string, chain domain.Chain) (domain.PriceQuote, error) {
	if p.fail {
		return domain.PriceQuote{}, errors.New("down")
	}
	return domain.PriceQuote{PriceUSD: p.price}, nil
}
func (p *priceProvider) FetchAt(ctx context.Context, coinKey string, chain domain.Chain, at time.Time) (domain.PriceQuote, error) {
	return domain.PriceQuote{}, errors.New("no historical spot")
}
func (p *priceProvider) FetchOHLC(ctx context.Context, coinKey string, chain domain.Chain, from, to time.Time, g domain.Granularity) ([]domain.Candle, error) {
	return nil, errors.New("no ohlc")
}

type recordingSink struct {
	events []domain.OutcomeEvent
}

func (r *recordingSink) Record(ctx context.Context, event domain.OutcomeEvent) error {
	r.events = append(r.events, event)
	return nil
}

func newTestEngine(t *testing.T, c clock.Clock, providers ...*priceProvider) (*Engine, *recordingSink) {
	t.Helper()
	rl := ratelimit.NewManager()
	bm := budget.NewManager()
	list := make([]pricing.Provider, len(providers))
	for i, p := range providers {
		rl.AddProvider(p.name, 1000, 1000)
		bm.AddProvider(p.name, 1_000_000, 0, 0.99)
		list[i] = p
	}
	breakers := pricing.NewBreakerSet(5, time.Minute)
	fabric := pricing.NewFabric(
		map[domain.Chain][]pricing.Provider{domain.ChainEthereum: list},
		cache.NewHotCache(0), cache.NewHistoricalCache(0),
		rl, bm, breakers, 0, // hotTTL 0 means no caching between ticks
	)
	sink := &recordingSink{}
	return NewEngine(fabric, nil, sink, c), sink
}

func TestEngine_Register_DataUnavailableWhenNoProvider(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	e, _ := newTestEngine(t, fc)

	s, err := e.Register(context.Background(), 1, "chan1", "AVICI", "AVICI", "", domain.ChainEthereum, nil, false, fc.Now())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if s.Status != domain.StatusDataUnavailable {
		t.Errorf("status = %v, want data_unavailable", s.Status)
	}
	if e.scheduler.Len() != 0 {
		t.Errorf("no checkpoints should be armed, got %d scheduled items", e.scheduler.Len())
	}
}

func TestEngine_Register_ArmsSixCheckpointsAndAPoll(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	p := &priceProvider{name: "p1", price: decimal.NewFromFloat(1.0)}
	e, _ := newTestEngine(t, fc, p)

	textPrice := decimal.NewFromFloat(1.0)
	s, err := e.Register(context.Background(), 1, "chan1", "AVICI", "AVICI", "", domain.ChainEthereum, &textPrice, true, fc.Now())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if s.Status != domain.StatusInProgress {
		t.Fatalf("status = %v, want in_progress", s.Status)
	}
	if e.scheduler.Len() != 7 {
		t.Errorf("scheduler has %d items, want 7 (6 checkpoints + 1 poll)", e.scheduler.Len())
	}
}

func TestEngine_CheckpointOrdering_LaterLabelWaitsForEarlier(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	p := &priceProvider{name: "p1", price: decimal.NewFromFloat(1.0), fail: true}
	e, _ := newTestEngine(t, fc, p)

	textPrice := decimal.NewFromFloat(1.0)
	p.fail = false
	s, _ := e.Register(context.Background(), 1, "chan1", "AVICI", "AVICI", "", domain.ChainEthereum, &textPrice, true, fc.Now())
	p.fail = true // provider now down for checkpoint realization

	// Advance past both 1h and 4h due times; only 1h should attempt
	// realization (and fail) while 4h is deferred behind it.
	fc.Set(fc.Now().Add(5 * time.Hour))
	e.Tick(context.Background())

	cp1h := s.Checkpoints[domain.Checkpoint1h]
	cp4h := s.Checkpoints[domain.Checkpoint4h]
	if cp1h.Attempts == 0 {
		t.Errorf("1h checkpoint should have attempted realization")
	}
	if cp4h.Status == domain.CheckpointRealized {
		t.Errorf("4h checkpoint should not realize before 1h resolves")
	}
}

func TestEngine_Terminates_OnDrawdown(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	p := &priceProvider{name: "p1", price: decimal.NewFromFloat(10.0)}
	e, sink := newTestEngine(t, fc, p)

	textPrice := decimal.NewFromFloat(10.0)
	s, _ := e.Register(context.Background(), 1, "chan1", "AVICI", "AVICI", "", domain.ChainEthereum, &textPrice, true, fc.Now())

	fc.Set(fc.Now().Add(time.Hour))
	p.price = decimal.NewFromFloat(0.5) // 0.5/10 = 0.05 <= 0.10 drawdown threshold
	e.Tick(context.Background())

	if s.Status != domain.StatusDead {
		t.Fatalf("status = %v, want dead", s.Status)
	}
	if len(sink.events) != 1 || sink.events[0].Reason != domain.ReasonDrawdown90Pct {
		t.Fatalf("events = %+v, want one drawdown_90pct event", sink.events)
	}
}
