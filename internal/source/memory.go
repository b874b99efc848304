package source

import (
	"context"
	"sync"

	"github.com/sawpanic/scbot/internal/domain"
)

// MemorySource is an in-process Source double used by the app and bootstrap
// tests: history is preloaded and Subscribe just records handlers for Push
// to invoke.
type MemorySource struct {
	mu       sync.Mutex
	history  map[string][]domain.Message
	handlers map[string]Handler
	connected bool
}

// NewMemorySource constructs an empty MemorySource.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		history:  make(map[string][]domain.Message),
		handlers: make(map[string]Handler),
	}
}

// Seed preloads channelID's history for FetchHistory to page through.
func (m *MemorySource) Seed(channelID string, messages []domain.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[channelID] = append([]domain.Message(nil), messages...)
}

// Push delivers msg to channelID's registered handler, if any, simulating
// a live message.
func (m *MemorySource) Push(channelID string, msg domain.Message) {
	m.mu.Lock()
	h, ok := m.handlers[channelID]
	m.mu.Unlock()
	if ok {
		h(msg)
	}
}

func (m *MemorySource) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	return nil
}

func (m *MemorySource) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

func (m *MemorySource) Subscribe(channelID string, handler Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[channelID] = handler
	return nil
}

// HistoryCount reports the seeded history length, giving bootstrap a
// progress denominator up front.
func (m *MemorySource) HistoryCount(ctx context.Context, channelID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.history[channelID])), nil
}

func (m *MemorySource) FetchHistory(ctx context.Context, channelID string, fromID int64, limit int) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.history[channelID]
	start := 0
	for i, msg := range all {
		if msg.ID > fromID {
			start = i
			break
		}
		start = i + 1
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	if start >= len(all) {
		return nil, nil
	}
	return append([]domain.Message(nil), all[start:end]...), nil
}
