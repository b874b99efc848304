package domain

import "fmt"

// Chain is the closed set of chains an address can be tagged with.
type Chain string

const (
	ChainEthereum Chain = "ethereum"
	ChainSolana   Chain = "solana"
	ChainOther    Chain = "other"
)

func (c Chain) Valid() bool {
	switch c {
	case ChainEthereum, ChainSolana, ChainOther:
		return true
	}
	return false
}

// PriceSource is the closed set of PriceQuote origins.
type PriceSource string

const (
	SourcePrimaryDEX      PriceSource = "primary_dex"
	SourceSpotAggregatorA PriceSource = "spot_aggregator_a"
	SourceSpotAggregatorB PriceSource = "spot_aggregator_b"
	SourceOnChainIndexer  PriceSource = "on_chain_indexer"
	SourceHistoricalOHLC  PriceSource = "historical_ohlc"
)

func (s PriceSource) Valid() bool {
	switch s {
	case SourcePrimaryDEX, SourceSpotAggregatorA, SourceSpotAggregatorB, SourceOnChainIndexer, SourceHistoricalOHLC:
		return true
	}
	return false
}

// EntrySourceTag records provenance of a Signal's entry price.
type EntrySourceTag string

const (
	EntryMessageText           EntrySourceTag = "message_text"
	EntryHistoricalOHLC        EntrySourceTag = "historical_ohlc"
	EntryCurrentPriceFallback  EntrySourceTag = "current_price_fallback"
)

func (t EntrySourceTag) Valid() bool {
	switch t {
	case EntryMessageText, EntryHistoricalOHLC, EntryCurrentPriceFallback:
		return true
	}
	return false
}

// SignalStatus is the closed-set lifecycle state of a Signal.
type SignalStatus string

const (
	StatusInProgress        SignalStatus = "in_progress"
	StatusCompletedLive     SignalStatus = "completed_live"
	StatusCompletedHistoric SignalStatus = "completed_historical"
	StatusDataUnavailable   SignalStatus = "data_unavailable"
	StatusDead              SignalStatus = "dead"
	StatusInactive          SignalStatus = "inactive"
)

// Terminal reports whether a status is one a Signal can never leave.
func (s SignalStatus) Terminal() bool {
	switch s {
	case StatusCompletedLive, StatusCompletedHistoric, StatusDead, StatusInactive:
		return true
	}
	return false
}

func (s SignalStatus) Valid() bool {
	switch s {
	case StatusInProgress, StatusCompletedLive, StatusCompletedHistoric, StatusDataUnavailable, StatusDead, StatusInactive:
		return true
	}
	return false
}

// TerminationReason is the closed set of reasons a Signal stops tracking.
type TerminationReason string

const (
	ReasonWindowElapsed      TerminationReason = "window_elapsed"
	ReasonDrawdown90Pct      TerminationReason = "drawdown_90pct"
	ReasonZeroVolume         TerminationReason = "zero_volume"
	ReasonHistoricalReplay   TerminationReason = "historical_replay"
)

// OutcomeCategory buckets a terminated Signal by its ath_mul.
type OutcomeCategory string

const (
	CategoryMoon      OutcomeCategory = "moon"       // ath_mul >= 5
	CategoryGreat     OutcomeCategory = "great"      // ath_mul >= 3
	CategoryGood      OutcomeCategory = "good"       // ath_mul >= 2
	CategoryBreakEven OutcomeCategory = "break_even" // ath_mul >= 1
	CategoryLoss      OutcomeCategory = "loss"       // ath_mul < 1
)

// ClassifyCategory maps an ath_mul ratio to its outcome category
func ClassifyCategory(athMul float64) OutcomeCategory {
	switch {
	case athMul >= 5:
		return CategoryMoon
	case athMul >= 3:
		return CategoryGreat
	case athMul >= 2:
		return CategoryGood
	case athMul >= 1:
		return CategoryBreakEven
	default:
		return CategoryLoss
	}
}

// Tier is the closed-set reputation tier classification.
type Tier string

const (
	TierElite      Tier = "Elite"
	TierExcellent  Tier = "Excellent"
	TierGood       Tier = "Good"
	TierAverage    Tier = "Average"
	TierPoor       Tier = "Poor"
	TierUnreliable Tier = "Unreliable"
	TierUnproven   Tier = "Unproven"
)

// CheckpointLabel is the closed set of post-mention checkpoint offsets.
type CheckpointLabel string

const (
	Checkpoint1h  CheckpointLabel = "1h"
	Checkpoint4h  CheckpointLabel = "4h"
	Checkpoint24h CheckpointLabel = "24h"
	Checkpoint3d  CheckpointLabel = "3d"
	Checkpoint7d  CheckpointLabel = "7d"
	Checkpoint30d CheckpointLabel = "30d"
)

// CheckpointOrder is the strict realization order the engine enforces.
var CheckpointOrder = []CheckpointLabel{
	Checkpoint1h, Checkpoint4h, Checkpoint24h, Checkpoint3d, Checkpoint7d, Checkpoint30d,
}

// CheckpointStatus distinguishes a realized checkpoint from one abandoned after retries.
type CheckpointStatus string

const (
	CheckpointRealized CheckpointStatus = "realized"
	CheckpointMissing  CheckpointStatus = "missing"
)

// ErrInvalidEnum is returned by strict parsers when a value is outside its closed set.
type ErrInvalidEnum struct {
	Kind  string
	Value string
}

func (e *ErrInvalidEnum) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.Kind, e.Value)
}
