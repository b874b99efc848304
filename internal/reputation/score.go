package reputation

import "github.com/sawpanic/scbot/internal/domain"

// ScoreParams are the composite-score and tiering knobs. The defaults match
// the shipped configuration.
type ScoreParams struct {
	WinWeight    float64
	ROIWeight    float64
	SharpeWeight float64
	SpeedWeight  float64
	ConfWeight   float64

	EliteMin     float64
	ExcellentMin float64
	GoodMin      float64
	AverageMin   float64
	PoorMin      float64

	UnprovenMinSignals    int64
	SuppressionMinSignals int64
}

// DefaultScoreParams returns the shipped scoring defaults.
func DefaultScoreParams() ScoreParams {
	return ScoreParams{
		WinWeight:    0.30,
		ROIWeight:    0.25,
		SharpeWeight: 0.20,
		SpeedWeight:  0.15,
		ConfWeight:   0.10,

		EliteMin:     90,
		ExcellentMin: 75,
		GoodMin:      60,
		AverageMin:   40,
		PoorMin:      20,

		UnprovenMinSignals:    10,
		SuppressionMinSignals: 5,
	}
}

// compositeInputs are the five raw aggregates the composite score formula
// normalizes and blends.
type compositeInputs struct {
	winRate             float64
	meanROI             float64
	sharpe              float64
	meanDaysToAth       float64
	meanEntryConfidence float64
}

// compositeScoreWith implements:
//
//	score = 100 · (w_win·win_rate_n + w_roi·roi_n + w_sharpe·sharpe_n + w_speed·speed_n + w_conf·confidence_n)
//
// with each component normalized into [0,1] before weighting.
func compositeScoreWith(p ScoreParams, in compositeInputs) float64 {
	winRateN := clamp01(in.winRate)
	roiN := clamp01((in.meanROI - 1.0) / 4.0)
	sharpeN := clamp01(in.sharpe / 2.0)
	speedN := clamp01(1 - in.meanDaysToAth/30)
	confidenceN := clamp01(in.meanEntryConfidence)

	return 100 * (p.WinWeight*winRateN + p.ROIWeight*roiN + p.SharpeWeight*sharpeN + p.SpeedWeight*speedN + p.ConfWeight*confidenceN)
}

func compositeScore(in compositeInputs) float64 {
	return compositeScoreWith(DefaultScoreParams(), in)
}

// classifyTierWith applies the closed-set tier thresholds with the Unproven
// override for channels below the minimum terminal-signal count, regardless
// of score.
func classifyTierWith(p ScoreParams, score float64, totalTerminalSignals int64) domain.Tier {
	if totalTerminalSignals < p.UnprovenMinSignals {
		return domain.TierUnproven
	}
	switch {
	case score >= p.EliteMin:
		return domain.TierElite
	case score >= p.ExcellentMin:
		return domain.TierExcellent
	case score >= p.GoodMin:
		return domain.TierGood
	case score >= p.AverageMin:
		return domain.TierAverage
	case score >= p.PoorMin:
		return domain.TierPoor
	default:
		return domain.TierUnreliable
	}
}

func classifyTier(score float64, totalTerminalSignals int64) domain.Tier {
	return classifyTierWith(DefaultScoreParams(), score, totalTerminalSignals)
}

// scoreSuppressedWith reports whether the composite score must be withheld
// from external output in favor of the insufficient-data marker.
func scoreSuppressedWith(p ScoreParams, totalTerminalSignals int64) bool {
	return totalTerminalSignals < p.SuppressionMinSignals
}

func scoreSuppressed(totalTerminalSignals int64) bool {
	return scoreSuppressedWith(DefaultScoreParams(), totalTerminalSignals)
}

// recordPredictionError appends a PredictionError using the pre-update V as
// predicted_roi, and incrementally updates the owning PredictionStats.
func recordPredictionError(errs *[]domain.PredictionError, stats *domain.PredictionStats, rec domain.PredictionError) {
	rec.Error = rec.Actual - rec.Predicted
	rec.ErrorPct = 0
	if rec.Predicted != 0 {
		rec.ErrorPct = rec.Error / rec.Predicted
	}
	*errs = append(*errs, rec)

	n := stats.TotalPredictions
	stats.TotalPredictions++

	absErr := rec.Error
	if absErr < 0 {
		absErr = -absErr
	}
	stats.MAE = (stats.MAE*float64(n) + absErr) / float64(n+1)
	stats.MSE = (stats.MSE*float64(n) + rec.Error*rec.Error) / float64(n+1)

	absPct := rec.ErrorPct
	if absPct < 0 {
		absPct = -absPct
	}
	if absPct <= 0.10 {
		stats.CorrectWithin10Pct++
	}
	if rec.Predicted > rec.Actual {
		stats.Overestimations++
	} else if rec.Predicted < rec.Actual {
		stats.Underestimations++
	}
}
