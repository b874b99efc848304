package reputation

import (
	"math"
	"testing"

	"github.com/sawpanic/scbot/internal/domain"
)

func TestCompositeScore_SaturatesAtOne(t *testing.T) {
	score := compositeScore(compositeInputs{
		winRate:             1.0,
		meanROI:             10.0, // (10-1)/4 = 2.25, clamps to 1
		sharpe:              5.0,  // /2 clamps to 1
		meanDaysToAth:       0,    // speed_n = 1
		meanEntryConfidence: 1.0,
	})
	if math.Abs(score-100) > 1e-9 {
		t.Errorf("score = %v, want 100 (all components saturated)", score)
	}
}

func TestCompositeScore_ZeroInputs(t *testing.T) {
	score := compositeScore(compositeInputs{
		meanROI:       1.0, // roi_n = 0 at exactly breakeven
		meanDaysToAth: 30,  // speed_n = 0 at exactly 30 days
	})
	if score != 0 {
		t.Errorf("score = %v, want 0", score)
	}
}

func TestClassifyTier_UnprovenOverridesHighScore(t *testing.T) {
	if tier := classifyTier(95, 9); tier != domain.TierUnproven {
		t.Errorf("tier = %v, want Unproven for <10 signals regardless of score", tier)
	}
}

func TestClassifyTier_Thresholds(t *testing.T) {
	cases := []struct {
		score float64
		want  domain.Tier
	}{
		{95, domain.TierElite},
		{80, domain.TierExcellent},
		{65, domain.TierGood},
		{45, domain.TierAverage},
		{25, domain.TierPoor},
		{5, domain.TierUnreliable},
	}
	for _, c := range cases {
		if got := classifyTier(c.score, 100); got != c.want {
			t.Errorf("classifyTier(%v, 100) = %v, want %v", c.score, got, c.want)
		}
	}
}

func TestScoreSuppressed(t *testing.T) {
	if !scoreSuppressed(4) {
		t.Errorf("4 signals should suppress score")
	}
	if scoreSuppressed(5) {
		t.Errorf("5 signals should not suppress score")
	}
}

func TestRecordPredictionError_TracksMAEAndAccuracy(t *testing.T) {
	var errs []domain.PredictionError
	var stats domain.PredictionStats

	recordPredictionError(&errs, &stats, domain.PredictionError{Predicted: 1.5, Actual: 1.6})
	recordPredictionError(&errs, &stats, domain.PredictionError{Predicted: 1.5, Actual: 3.0})

	if len(errs) != 2 {
		t.Fatalf("errs len = %d, want 2", len(errs))
	}
	if stats.TotalPredictions != 2 {
		t.Errorf("TotalPredictions = %d, want 2", stats.TotalPredictions)
	}
	if stats.CorrectWithin10Pct != 1 {
		t.Errorf("CorrectWithin10Pct = %d, want 1 (only the 1.5->1.6 miss is within 10%%)", stats.CorrectWithin10Pct)
	}
	if stats.Underestimations != 2 {
		t.Errorf("Underestimations = %d, want 2 (both predicted < actual)", stats.Underestimations)
	}
}
