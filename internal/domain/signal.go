package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SignalId is the stable identity of a Signal: hash(message_id, channel_id,
// coin_key)
type SignalId string

// NewSignalId derives a SignalId from a Signal's identity triple. It is a
// pure function of its inputs, not a random UUID, so that re-deriving it
// (e.g. during bootstrap resume) always yields the same id.
func NewSignalId(messageID int64, channelID, coinKey string) SignalId {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s", messageID, channelID, strings.ToUpper(coinKey))
	return SignalId(hex.EncodeToString(h.Sum(nil))[:32])
}

// Checkpoint is one scheduled post-mention price observation.
type Checkpoint struct {
	Label      CheckpointLabel  `json:"label"`
	DueAt      time.Time        `json:"due_at"`
	Status     CheckpointStatus `json:"status"`
	RealizedAt *time.Time       `json:"realized_at,omitempty"`
	Price      *decimal.Decimal `json:"price,omitempty"`
	Attempts   int              `json:"attempts"`
}

// ROIMultiplier returns price/entry_price for a realized checkpoint.
func (c Checkpoint) ROIMultiplier(entryPrice decimal.Decimal) (decimal.Decimal, bool) {
	if c.Price == nil || entryPrice.IsZero() {
		return decimal.Zero, false
	}
	return c.Price.Div(entryPrice), true
}

// ROIPct returns (roi_multiplier - 1) * 100 for a realized checkpoint.
func (c Checkpoint) ROIPct(entryPrice decimal.Decimal) (decimal.Decimal, bool) {
	mul, ok := c.ROIMultiplier(entryPrice)
	if !ok {
		return decimal.Zero, false
	}
	return mul.Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100)), true
}

// Signal is one per accepted mention, unique on (message_id, channel_id, coin_key).
type Signal struct {
	ID SignalId `json:"id"`

	MessageID int64  `json:"message_id"`
	ChannelID string `json:"channel_id"`
	CoinKey   string `json:"coin_key"`
	Symbol    string `json:"symbol,omitempty"`
	Address   string `json:"address,omitempty"`
	Chain     Chain  `json:"chain,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	EntryPrice      decimal.Decimal `json:"entry_price"`
	EntryConfidence decimal.Decimal `json:"entry_confidence"`
	EntrySourceTag  EntrySourceTag  `json:"entry_source_tag"`

	PriceDiscrepancy bool `json:"price_discrepancy,omitempty"`
	LatePump         bool `json:"late_pump,omitempty"`
	Suspicious       bool `json:"suspicious,omitempty"`

	PredictedROI decimal.Decimal `json:"predicted_roi"`

	Checkpoints map[CheckpointLabel]*Checkpoint `json:"checkpoints"`

	AthPrice decimal.Decimal `json:"ath_price"`
	AthAt    time.Time       `json:"ath_at"`
	// RawAthCandleHigh preserves an anomaly-clamped raw ATH for audit.
	RawAthCandleHigh *decimal.Decimal `json:"raw_ath_candle_high,omitempty"`

	Status SignalStatus `json:"status"`

	TerminatedAt     *time.Time         `json:"terminated_at,omitempty"`
	TerminatedReason TerminationReason  `json:"terminated_reason,omitempty"`

	// ExtendedWindow records whether the one-shot 30d->90d extension fired.
	ExtendedWindow bool `json:"extended_window,omitempty"`

	// ConsecutiveZeroVolumeHours and LastPollAt support the zero-volume
	// termination rule, which requires checking across periodic polls.
	ConsecutiveZeroVolumeHours int       `json:"consecutive_zero_volume_hours"`
	LastPollAt                time.Time `json:"last_poll_at,omitempty"`

	// RecentROITrend holds up to the last 3 poll ROI observations, most
	// recent last, used by the one-shot window-extension rule.
	RecentROITrend []decimal.Decimal `json:"recent_roi_trend,omitempty"`
}

// NewInProgressSignal constructs a freshly-registered, in-progress signal
// with six armed checkpoints.
func NewInProgressSignal(id SignalId, messageID int64, channelID, coinKey, symbol, address string, chain Chain, createdAt time.Time, entryPrice, entryConfidence decimal.Decimal, sourceTag EntrySourceTag) *Signal {
	s := &Signal{
		ID:              id,
		MessageID:       messageID,
		ChannelID:       channelID,
		CoinKey:         coinKey,
		Symbol:          symbol,
		Address:         address,
		Chain:           chain,
		CreatedAt:       createdAt,
		EntryPrice:      entryPrice,
		EntryConfidence: entryConfidence,
		EntrySourceTag:  sourceTag,
		AthPrice:        entryPrice,
		AthAt:           createdAt,
		Status:          StatusInProgress,
		Checkpoints:     make(map[CheckpointLabel]*Checkpoint, len(CheckpointOrder)),
	}
	for _, label := range CheckpointOrder {
		s.Checkpoints[label] = &Checkpoint{
			Label: label,
			DueAt: createdAt.Add(CheckpointOffset(label)),
		}
	}
	return s
}

// CheckpointOffset returns the duration from Signal.created_at to a checkpoint's due_at.
func CheckpointOffset(label CheckpointLabel) time.Duration {
	switch label {
	case Checkpoint1h:
		return time.Hour
	case Checkpoint4h:
		return 4 * time.Hour
	case Checkpoint24h:
		return 24 * time.Hour
	case Checkpoint3d:
		return 3 * 24 * time.Hour
	case Checkpoint7d:
		return 7 * 24 * time.Hour
	case Checkpoint30d:
		return 30 * 24 * time.Hour
	}
	return 0
}

// AthMul returns the all-time-high multiplier relative to entry price.
func (s *Signal) AthMul() decimal.Decimal {
	if s.EntryPrice.IsZero() {
		return decimal.Zero
	}
	return s.AthPrice.Div(s.EntryPrice)
}

// IsWinner classifies the signal: ath_mul >= 2.0.
func (s *Signal) IsWinner() bool {
	return s.AthMul().GreaterThanOrEqual(decimal.NewFromInt(2))
}

// NextDueCheckpoint returns the earliest not-yet-realized/missing checkpoint
// in strict label order, or nil if all checkpoints are resolved.
func (s *Signal) NextDueCheckpoint() *Checkpoint {
	for _, label := range CheckpointOrder {
		cp := s.Checkpoints[label]
		if cp.Status == "" {
			return cp
		}
	}
	return nil
}

// OutcomeEvent is emitted by the Outcome Engine to the Reputation Engine on
// every termination, including historical replay.
type OutcomeEvent struct {
	SignalRef   SignalId
	ChannelID   string
	CoinKey     string
	AthMul      decimal.Decimal
	DaysToAth   float64
	Category    OutcomeCategory
	IsWinner    bool
	CreatedAt   time.Time
	MessageID   int64
	TerminatedAt time.Time
	Reason      TerminationReason

	// EntryConfidence carries the signal's entry-price confidence through
	// to the Reputation Engine's composite-score confidence_n component.
	EntryConfidence float64
}

// IdempotencyKey is SignalId + terminal_reason round-trip
// guarantee: replaying the same OutcomeEvent twice must be detected.
func (e OutcomeEvent) IdempotencyKey() string {
	return string(e.SignalRef) + "|" + string(e.Reason)
}
