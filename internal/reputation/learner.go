// Package reputation implements the Reputation & Learning Engine: a
// three-level temporal-difference learner over realized ath_mul outcomes,
// a composite reputation score, and tier classification.
package reputation

import (
	"math"
	"sort"

	"github.com/sawpanic/scbot/internal/domain"
)

const (
	athMulClampMin = 0.01
	athMulClampMax = 100.0
)

// LearnParams hold the TD learning rate and the estimate blend weights.
type LearnParams struct {
	// Alpha is α in V ← V + α·(R − V), used uniformly across all three
	// TD estimates.
	Alpha float64

	OverallWeight float64
	CoinWeight    float64
	CrossWeight   float64
}

// DefaultLearnParams returns the shipped learning defaults.
func DefaultLearnParams() LearnParams {
	return LearnParams{
		Alpha:         0.10,
		OverallWeight: 0.40,
		CoinWeight:    0.50,
		CrossWeight:   0.10,
	}
}

// clampAthMul applies the safety clamp required before any TD step, so a
// single manipulated quote cannot destabilize an estimate.
func clampAthMul(r float64) float64 {
	return math.Max(athMulClampMin, math.Min(athMulClampMax, r))
}

// tdUpdateWith performs one TD(0) step: V ← V + α·(R − V).
func tdUpdateWith(alpha, v, r float64) float64 {
	return v + alpha*(r-v)
}

func tdUpdate(v, r float64) float64 {
	return tdUpdateWith(DefaultLearnParams().Alpha, v, r)
}

// blendPredicted implements the predicted_roi blend:
//
//	predicted = 0.40·V_overall + 0.50·V_coin + 0.10·V_cross
//
// with the pro-rata fallback when V_coin and/or V_cross have no
// observations: the formula is a weighted average over whichever
// estimates are actually available, renormalized by their weight sum:
//   - V_coin missing, V_cross present: 0.80·V_overall + 0.20·V_cross
//   - V_coin missing, V_cross missing: V_overall
//   - V_coin present, V_cross missing: (0.40·V_overall+0.50·V_coin)/0.90
//
// channelSeen must be false if the channel has never produced a terminal
// signal, in which case the neutral prior 1.50 is returned unconditionally.
func blendPredictedWith(p LearnParams, channelSeen bool, vOverall float64, coinSeen bool, vCoin float64, crossSeen bool, vCross float64) float64 {
	if !channelSeen {
		return 1.50
	}

	weightSum := p.OverallWeight
	weighted := p.OverallWeight * vOverall
	if coinSeen {
		weightSum += p.CoinWeight
		weighted += p.CoinWeight * vCoin
	}
	if crossSeen {
		weightSum += p.CrossWeight
		weighted += p.CrossWeight * vCross
	}
	return weighted / weightSum
}

func blendPredicted(channelSeen bool, vOverall float64, coinSeen bool, vCoin float64, crossSeen bool, vCross float64) float64 {
	return blendPredictedWith(DefaultLearnParams(), channelSeen, vOverall, coinSeen, vCoin, crossSeen, vCross)
}

// rollingStats holds the incremental aggregates shared by ROIStats for both
// ChannelReputation and CoinPerformance.
type rollingStats struct {
	total, winners, losers, neutrals int64
	sumROI, bestROI, worstROI        float64
	observations                     []float64
	daysToAthObs                     []float64
}

func newRollingStats() *rollingStats {
	return &rollingStats{}
}

// rollingStatsFrom hydrates a rollingStats working copy from a persisted
// domain.ROIStats, so updates can reuse the same incremental observe logic
// regardless of whether the aggregate belongs to a channel or a coin.
func rollingStatsFrom(s *domain.ROIStats) *rollingStats {
	return &rollingStats{
		total:        s.Total,
		winners:      s.Winners,
		losers:       s.Losers,
		neutrals:     s.Neutrals,
		sumROI:       s.MeanROI * float64(s.Total),
		bestROI:      s.BestROI,
		worstROI:     s.WorstROI,
		observations: append([]float64(nil), s.Observations...),
		daysToAthObs: append([]float64(nil), s.DaysToAthObs...),
	}
}

// writeBack persists the working copy's recomputed fields onto a
// domain.ROIStats.
func (r *rollingStats) writeBack(s *domain.ROIStats) {
	s.Total = r.total
	s.Winners = r.winners
	s.Losers = r.losers
	s.Neutrals = r.neutrals
	s.WinRate = r.winRate()
	s.MeanROI = r.meanROI()
	s.MedianROI = r.medianROI()
	s.BestROI = r.bestROI
	s.WorstROI = r.worstROI
	s.ROIStdDev = r.stddevROI()
	s.Sharpe = r.sharpe()
	s.MeanDaysToAth = r.meanDaysToAth()
	s.SpeedScore = clamp01(1-s.MeanDaysToAth/30) * 100
	s.Observations = r.observations
	s.DaysToAthObs = r.daysToAthObs
}

// observe folds one terminal signal's (clamped) ath_mul and days-to-ath
// into the rolling aggregate.
func (r *rollingStats) observe(athMul, daysToAth float64) {
	switch {
	case athMul >= 2.0:
		r.winners++
	case athMul < 1.0:
		r.losers++
	default:
		r.neutrals++
	}

	if r.total == 0 {
		r.bestROI, r.worstROI = athMul, athMul
	} else {
		r.bestROI = math.Max(r.bestROI, athMul)
		r.worstROI = math.Min(r.worstROI, athMul)
	}
	r.total++
	r.sumROI += athMul
	r.observations = append(r.observations, athMul)
	r.daysToAthObs = append(r.daysToAthObs, daysToAth)
}

func (r *rollingStats) winRate() float64 {
	if r.total == 0 {
		return 0
	}
	return float64(r.winners) / float64(r.total)
}

func (r *rollingStats) meanROI() float64 {
	if r.total == 0 {
		return 0
	}
	return r.sumROI / float64(r.total)
}

func (r *rollingStats) medianROI() float64 {
	return median(r.observations)
}

func (r *rollingStats) stddevROI() float64 {
	return stddev(r.observations, r.meanROI())
}

// sharpe is (mean_roi - 1) / roi_stddev, zero when stddev is zero.
func (r *rollingStats) sharpe() float64 {
	sd := r.stddevROI()
	if sd == 0 {
		return 0
	}
	return (r.meanROI() - 1) / sd
}

func (r *rollingStats) meanDaysToAth() float64 {
	if len(r.daysToAthObs) == 0 {
		return 0
	}
	sum := 0.0
	for _, d := range r.daysToAthObs {
		sum += d
	}
	return sum / float64(len(r.daysToAthObs))
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func stddev(xs []float64, mean float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sumSq float64
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
