// Package source defines the message-source boundary: the
// engine depends only on this interface, never on a concrete chat/feed
// transport.
package source

import (
	"context"

	"github.com/sawpanic/scbot/internal/domain"
)

// Handler receives one live message as it arrives.
type Handler func(domain.Message)

// Source is the upstream feed of channel messages. Implementations own
// their own reconnect policy; a disconnect never drops in-flight signals
// (reconnects leave in-flight signals unaffected).
type Source interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Subscribe(channelID string, handler Handler) error
	FetchHistory(ctx context.Context, channelID string, fromID int64, limit int) ([]domain.Message, error)
}
