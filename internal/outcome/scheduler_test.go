package outcome

import (
	"testing"
	"time"

	"github.com/sawpanic/scbot/internal/domain"
)

func TestScheduler_PopDueOrdersByDueAt(t *testing.T) {
	s := NewScheduler()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	s.ArmCheckpoint("sig-a", domain.Checkpoint24h, base.Add(24*time.Hour))
	s.ArmCheckpoint("sig-b", domain.Checkpoint1h, base.Add(1*time.Hour))
	s.ArmCheckpoint("sig-c", domain.Checkpoint4h, base.Add(4*time.Hour))

	item, ok := s.PopDue(base.Add(30 * time.Hour))
	if !ok || item.SignalID != "sig-b" {
		t.Fatalf("first due = %+v, want sig-b", item)
	}
	item, ok = s.PopDue(base.Add(30 * time.Hour))
	if !ok || item.SignalID != "sig-c" {
		t.Fatalf("second due = %+v, want sig-c", item)
	}
	item, ok = s.PopDue(base.Add(30 * time.Hour))
	if !ok || item.SignalID != "sig-a" {
		t.Fatalf("third due = %+v, want sig-a", item)
	}
}

func TestScheduler_PopDueRespectsNotYetDue(t *testing.T) {
	s := NewScheduler()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.ArmCheckpoint("sig-a", domain.Checkpoint1h, base.Add(time.Hour))

	if _, ok := s.PopDue(base); ok {
		t.Fatalf("item due in the future should not pop")
	}
	if _, ok := s.PopDue(base.Add(time.Hour)); !ok {
		t.Fatalf("item due exactly now should pop")
	}
}

func TestScheduler_Len(t *testing.T) {
	s := NewScheduler()
	if s.Len() != 0 {
		t.Fatalf("new scheduler should be empty")
	}
	s.ArmPoll("sig-a", time.Now())
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
}
