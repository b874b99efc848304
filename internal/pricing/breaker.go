package pricing

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerSet holds one gobreaker.CircuitBreaker per provider. A breaker
// opens after k consecutive failed calls, whatever the error, and lets a
// half-open probe through after a fixed timeout; the timeout does not grow
// between trips.
type BreakerSet struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	k        uint32
	timeout  time.Duration
}

// NewBreakerSet constructs a BreakerSet that trips after k consecutive
// failures and starts its half-open probe after timeout.
func NewBreakerSet(k uint32, timeout time.Duration) *BreakerSet {
	return &BreakerSet{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		k:        k,
		timeout:  timeout,
	}
}

func (b *BreakerSet) get(provider string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.breakers[provider]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    provider,
		Timeout: b.timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= b.k
		},
	})
	b.breakers[provider] = cb
	return cb
}

// IsOpen reports whether provider's breaker currently rejects calls.
func (b *BreakerSet) IsOpen(provider string) bool {
	return b.get(provider).State() == gobreaker.StateOpen
}

// Execute runs fn through provider's breaker, recording success/failure for
// future trip decisions.
func (b *BreakerSet) Execute(provider string, fn func() (interface{}, error)) (interface{}, error) {
	return b.get(provider).Execute(fn)
}
