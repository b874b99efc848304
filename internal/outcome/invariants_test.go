package outcome

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/scbot/internal/clock"
	"github.com/sawpanic/scbot/internal/domain"
)

func TestEngine_ATHMonotonicUnderPriceSwings(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	p := &priceProvider{name: "p1", price: decimal.NewFromFloat(1.0)}
	e, _ := newTestEngine(t, fc, p)

	textPrice := decimal.NewFromFloat(1.0)
	s, _ := e.Register(context.Background(), 1, "chan1", "AVICI", "AVICI", "", domain.ChainEthereum, &textPrice, true, fc.Now())

	prev := s.AthPrice
	for _, price := range []float64{1.5, 3.0, 0.9, 2.0, 4.0, 0.5} {
		p.price = decimal.NewFromFloat(price)
		fc.Advance(time.Hour)
		e.Tick(context.Background())
		if s.Status.Terminal() {
			break
		}
		if s.AthPrice.LessThan(prev) {
			t.Fatalf("ath regressed from %s to %s", prev, s.AthPrice)
		}
		prev = s.AthPrice
	}
}

func TestEngine_TerminalSignalNeverTransitionsAgain(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	p := &priceProvider{name: "p1", price: decimal.NewFromFloat(10.0)}
	e, sink := newTestEngine(t, fc, p)

	textPrice := decimal.NewFromFloat(10.0)
	s, _ := e.Register(context.Background(), 1, "chan1", "AVICI", "AVICI", "", domain.ChainEthereum, &textPrice, true, fc.Now())

	fc.Advance(time.Hour)
	p.price = decimal.NewFromFloat(0.5)
	e.Tick(context.Background())
	if s.Status != domain.StatusDead {
		t.Fatalf("status = %v, want dead", s.Status)
	}
	diedAt := *s.TerminatedAt

	// Further price recovery and elapsed time must not touch the record.
	p.price = decimal.NewFromFloat(100.0)
	for i := 0; i < 48; i++ {
		fc.Advance(2 * time.Hour)
		e.Tick(context.Background())
	}

	if s.Status != domain.StatusDead {
		t.Fatalf("terminal status changed to %v", s.Status)
	}
	if !s.TerminatedAt.Equal(diedAt) {
		t.Errorf("terminated_at moved from %v to %v", diedAt, *s.TerminatedAt)
	}
	if len(sink.events) != 1 {
		t.Errorf("terminal signal emitted %d events, want exactly 1", len(sink.events))
	}
}

func TestEngine_CheckpointDueExactlyNowRealizesThisTick(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	p := &priceProvider{name: "p1", price: decimal.NewFromFloat(1.0)}
	e, _ := newTestEngine(t, fc, p)

	textPrice := decimal.NewFromFloat(1.0)
	s, _ := e.Register(context.Background(), 1, "chan1", "AVICI", "AVICI", "", domain.ChainEthereum, &textPrice, true, fc.Now())

	// Clock lands exactly on the 1h due timestamp.
	fc.Set(s.Checkpoints[domain.Checkpoint1h].DueAt)
	e.Tick(context.Background())

	if s.Checkpoints[domain.Checkpoint1h].Status != domain.CheckpointRealized {
		t.Error("checkpoint due exactly at the current tick must realize on this tick")
	}
}

func TestEngine_RestoreReArmsInProgressSignals(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	p := &priceProvider{name: "p1", price: decimal.NewFromFloat(1.0)}
	e, _ := newTestEngine(t, fc, p)

	s := domain.NewInProgressSignal(
		domain.NewSignalId(1, "chan1", "AVICI"), 1, "chan1", "AVICI", "AVICI", "",
		domain.ChainEthereum, fc.Now().Add(-2*time.Hour),
		decimal.NewFromFloat(1.0), decimal.NewFromFloat(0.9), domain.EntryMessageText,
	)
	terminal := &domain.Signal{
		ID: domain.NewSignalId(2, "chan1", "DEAD"), ChannelID: "chan1", CoinKey: "DEAD",
		Status: domain.StatusDead,
	}

	e.Restore(map[domain.SignalId]*domain.Signal{s.ID: s, terminal.ID: terminal})

	// Six checkpoints plus one poll for the in-progress signal; nothing for
	// the terminal one.
	if got := e.scheduler.Len(); got != 7 {
		t.Fatalf("scheduler has %d items after restore, want 7", got)
	}

	// The overdue 1h checkpoint realizes on the first tick.
	e.Tick(context.Background())
	if s.Checkpoints[domain.Checkpoint1h].Status != domain.CheckpointRealized {
		t.Error("overdue checkpoint did not realize after restore")
	}
}
