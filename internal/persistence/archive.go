package persistence

import (
	"context"

	"github.com/sawpanic/scbot/internal/domain"
)

// ErrorScope distinguishes which TD estimate a prediction error belongs to.
type ErrorScope string

const (
	ScopeChannelOverall ErrorScope = "channel_overall"
	ScopeChannelCoin    ErrorScope = "channel_coin"
)

// Archiver copies rows of the unbounded prediction-error ledger to a
// durable archive. The in-memory/JSON record stays authoritative and keeps
// the whole ledger as well; the archive is an additional queryable copy.
type Archiver interface {
	ArchivePredictionError(ctx context.Context, channelID string, scope ErrorScope, rec domain.PredictionError) error
}
