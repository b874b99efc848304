package domain

import "time"

// Views are read-only projections exposed to downstream sinks.
// They are versioned so that adding fields stays non-breaking for consumers.

// ChannelReputationView is the v1 read-only projection of a ChannelReputation.
type ChannelReputationView struct {
	Version   int    `json:"version"`
	ChannelID string `json:"channel_id"`

	Total   int64   `json:"total"`
	Winners int64   `json:"winners"`
	Losers  int64   `json:"losers"`
	WinRate float64 `json:"win_rate"`
	MeanROI float64 `json:"mean_roi"`
	Sharpe  float64 `json:"sharpe"`

	CompositeScore   *float64 `json:"composite_score,omitempty"` // nil when suppressed
	Suppressed       bool     `json:"suppressed"`
	Tier             Tier     `json:"tier"`
	InsufficientData bool     `json:"insufficient_data"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewChannelReputationView projects a ChannelReputation's
// score-suppression rule: total < 5 terminal signals hides composite_score
// entirely, replaced by the suppressed flag.
func NewChannelReputationView(r *ChannelReputation) ChannelReputationView {
	v := ChannelReputationView{
		Version:          1,
		ChannelID:        r.ChannelID,
		Total:            r.Total,
		Winners:          r.Winners,
		Losers:           r.Losers,
		WinRate:          r.WinRate,
		MeanROI:          r.MeanROI,
		Sharpe:           r.Sharpe,
		Tier:             r.Tier,
		InsufficientData: r.InsufficientData,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.ScoreSuppressed {
		v.Suppressed = true
	} else {
		score := r.CompositeScore
		v.CompositeScore = &score
	}
	return v
}

// SignalView is the v1 read-only projection of a Signal.
type SignalView struct {
	Version   int          `json:"version"`
	ID        SignalId     `json:"id"`
	ChannelID string       `json:"channel_id"`
	CoinKey   string       `json:"coin_key"`
	Status    SignalStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`

	EntryPrice float64 `json:"entry_price"`
	AthPrice   float64 `json:"ath_price"`
	AthMul     float64 `json:"ath_mul"`

	TerminatedAt     *time.Time        `json:"terminated_at,omitempty"`
	TerminatedReason TerminationReason `json:"terminated_reason,omitempty"`
}

// SignalFilter narrows list_signals results.
type SignalFilter struct {
	ChannelID string
	CoinKey   string
	Status    SignalStatus
	Limit     int
}
