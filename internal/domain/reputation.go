package domain

import "time"

// PredictionError is an append-only record of a TD estimate's miss against
// an observed ath_mul. Lists of these are logically unbounded: the visible
// record is never truncated even if the physical storage is paged.
type PredictionError struct {
	At          time.Time       `json:"at"`
	SignalRef   SignalId        `json:"signal_ref"`
	CoinKey     string          `json:"coin_key"`
	EntryPrice  float64         `json:"entry_price"`
	AthPrice    float64         `json:"ath_price"`
	DaysToAth   float64         `json:"days_to_ath"`
	Predicted   float64         `json:"predicted_roi"`
	Actual      float64         `json:"actual_roi"`
	Error       float64         `json:"error"`
	ErrorPct    float64         `json:"error_pct"`
	Category    OutcomeCategory `json:"outcome_category"`
}

// PredictionStats are the rolling statistics recomputed incrementally as
// PredictionErrors accumulate.
type PredictionStats struct {
	TotalPredictions  int64   `json:"total_predictions"`
	CorrectWithin10Pct int64  `json:"correct_within_10pct"`
	Overestimations   int64   `json:"overestimations"`
	Underestimations  int64   `json:"underestimations"`
	MAE               float64 `json:"mae"`
	MSE               float64 `json:"mse"`
}

// TierStats breaks ChannelReputation down by market tier (left open-ended:
// market-tier classification is out of scope, so this is
// keyed by an opaque string the caller supplies).
type TierStats struct {
	Total    int64   `json:"total"`
	Winners  int64   `json:"winners"`
	MeanROI  float64 `json:"mean_roi"`
}

// ROIStats are the shared realized-return aggregates computed identically
// for ChannelReputation and CoinPerformance.
type ROIStats struct {
	Total     int64   `json:"total"`
	Winners   int64   `json:"winners"` // ath_mul >= 2.0
	Losers    int64   `json:"losers"`  // ath_mul < 1.0
	Neutrals  int64   `json:"neutrals"`
	WinRate   float64 `json:"win_rate"`
	MeanROI   float64 `json:"mean_roi"`
	MedianROI float64 `json:"median_roi"`
	BestROI   float64 `json:"best_roi"`
	WorstROI  float64 `json:"worst_roi"`
	ROIStdDev float64 `json:"roi_stddev"`
	Sharpe    float64 `json:"sharpe"`

	MeanDaysToAth float64 `json:"mean_days_to_ath"`
	SpeedScore    float64 `json:"speed_score"` // [0,100]

	// observations backs the running stddev/median computation; not
	// persisted verbatim in the JSON view but kept for incremental updates.
	Observations []float64 `json:"observations,omitempty"`
	DaysToAthObs []float64 `json:"days_to_ath_observations,omitempty"`
}

// ChannelReputation aggregates over all terminal signals of one channel.
type ChannelReputation struct {
	ChannelID string `json:"channel_id"`

	ROIStats
	TierBreakdown map[string]*TierStats `json:"tier_breakdown"`

	ExpectedROIOverall float64 `json:"expected_roi_overall"`

	// SumEntryConfidence accumulates Signal.EntryConfidence across every
	// terminal signal, backing the composite score's confidence_n term.
	SumEntryConfidence float64 `json:"sum_entry_confidence"`

	PredictionErrors []PredictionError `json:"prediction_errors"`
	PredictionStats

	CompositeScore       float64 `json:"composite_score"`
	ScoreSuppressed      bool    `json:"score_suppressed"`
	Tier                 Tier    `json:"tier"`
	InsufficientData     bool    `json:"insufficient_data"`

	CoinPerformance map[string]*CoinPerformance `json:"coin_performance"`

	FirstSignalAt time.Time `json:"first_signal_at"`
	LastSignalAt  time.Time `json:"last_signal_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewChannelReputation initializes a fresh ChannelReputation:
// expected_roi_overall starts at 1.5 (neutral prior) before the first terminal signal.
func NewChannelReputation(channelID string) *ChannelReputation {
	return &ChannelReputation{
		ChannelID:          channelID,
		ExpectedROIOverall: 1.5,
		TierBreakdown:      make(map[string]*TierStats),
		CoinPerformance:    make(map[string]*CoinPerformance),
		Tier:               TierUnproven,
	}
}

// CoinPerformance aggregates terminal signals for one (channel, coin) pair.
type CoinPerformance struct {
	Symbol        string   `json:"symbol,omitempty"`
	Address       string   `json:"address,omitempty"`
	MentionsCount int64    `json:"mentions_count"`
	Signals       []SignalId `json:"signals"`

	ROIStats

	ExpectedROICoin float64 `json:"expected_roi_coin"`
	Initialized     bool    `json:"initialized"`

	PredictionErrors []PredictionError `json:"prediction_errors"`
	PredictionStats
}

// CoinCrossChannel aggregates one coin's performance across all channels.
type CoinCrossChannel struct {
	CoinKey string `json:"coin_key"`

	ChannelsSeen map[string]struct{} `json:"-"`
	ChannelsSeenList []string        `json:"channels_seen"`

	MentionsTotal int64 `json:"mentions_total"`
	SignalsTotal  int64 `json:"signals_total"`

	MeanROIAllChannels float64                    `json:"mean_roi_all_channels"`
	ChannelPerformance map[string]*ChannelCoinStat `json:"channel_performance"`

	BestChannelForCoin  string `json:"best_channel_for_coin,omitempty"`
	WorstChannelForCoin string `json:"worst_channel_for_coin,omitempty"`
}

// ChannelCoinStat is one channel's contribution to a CoinCrossChannel entry.
type ChannelCoinStat struct {
	Signals int64   `json:"signals"`
	MeanROI float64 `json:"mean_roi"`
}

// NewCoinCrossChannel initializes an empty global coin aggregate.
func NewCoinCrossChannel(coinKey string) *CoinCrossChannel {
	return &CoinCrossChannel{
		CoinKey:             coinKey,
		ChannelsSeen:        make(map[string]struct{}),
		ChannelPerformance:  make(map[string]*ChannelCoinStat),
	}
}
