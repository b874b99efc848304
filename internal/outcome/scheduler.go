// Package outcome implements the Outcome Engine and Scheduler: checkpoint
// realization, periodic ATH polling, and termination.
package outcome

import (
	"sync"
	"time"

	"github.com/emirpasic/gods/trees/binaryheap"

	"github.com/sawpanic/scbot/internal/domain"
)

// dueItem is one scheduler work item: either a checkpoint for a specific
// label, or a periodic ATH poll (Label == "").
type dueItem struct {
	SignalID domain.SignalId
	Label    domain.CheckpointLabel
	DueAt    time.Time
	IsPoll   bool
}

func compareDueItems(a, b interface{}) int {
	ia, ib := a.(dueItem), b.(dueItem)
	switch {
	case ia.DueAt.Before(ib.DueAt):
		return -1
	case ia.DueAt.After(ib.DueAt):
		return 1
	default:
		return 0
	}
}

// Scheduler is a single priority queue keyed on due_at, replacing a
// one-coroutine-per-signal design: every signal's pending checkpoints and
// periodic polls are entries in the same min-heap, and one loop pops
// whatever is due next.
type Scheduler struct {
	mu   sync.Mutex
	heap *binaryheap.Heap
}

// NewScheduler constructs an empty Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{heap: binaryheap.NewWith(compareDueItems)}
}

// ArmCheckpoint schedules a checkpoint due_at event for id/label.
func (s *Scheduler) ArmCheckpoint(id domain.SignalId, label domain.CheckpointLabel, dueAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heap.Push(dueItem{SignalID: id, Label: label, DueAt: dueAt})
}

// ArmPoll schedules the next 2h ATH poll for id.
func (s *Scheduler) ArmPoll(id domain.SignalId, dueAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heap.Push(dueItem{SignalID: id, DueAt: dueAt, IsPoll: true})
}

// PopDue removes and returns the earliest-due item if it is due at or
// before now. ok is false if the heap is empty or its earliest item is not
// yet due.
func (s *Scheduler) PopDue(now time.Time) (item dueItem, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	peeked, exists := s.heap.Peek()
	if !exists {
		return dueItem{}, false
	}
	if peeked.(dueItem).DueAt.After(now) {
		return dueItem{}, false
	}
	v, _ := s.heap.Pop()
	return v.(dueItem), true
}

// Len reports the number of pending scheduled items.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heap.Size()
}
