// Package scoring implements the Signal Scorer: it combines
// an engagement-derived HDRB score with sentiment/address detector outputs
// into a single confidence in [0,1].
package scoring

import (
	"math"
	"sync"

	"github.com/sawpanic/scbot/internal/domain"
)

const (
	cohortWindow = 100

	weightEngagement = 0.4
	weightSentiment  = 0.3
	weightAddress    = 0.3

	conflictingPenaltyMax = 0.3
)

// Scorer computes the holistic confidence for a TokenMention, grounded on
// internal/score/composite/normalize.go's validated weighted-composite
// style: fixed weights, clamped output, bounds-checked inputs.
type Scorer struct {
	mu      sync.Mutex
	cohorts map[string]*cohort
}

// cohort tracks the rolling 100-signal per-channel HDRB max used to
// normalize the engagement component.
type cohort struct {
	values []float64
	max    float64
}

// NewScorer constructs an empty Scorer.
func NewScorer() *Scorer {
	return &Scorer{cohorts: make(map[string]*cohort)}
}

// Score computes final_confidence for mention, recording its raw HDRB value
// into the channel's rolling cohort for future normalization.
func (s *Scorer) Score(mention domain.TokenMention) float64 {
	raw := hdrb(mention.Message.Engagement)

	s.mu.Lock()
	c, ok := s.cohorts[mention.Message.ChannelID]
	if !ok {
		c = &cohort{max: 1} // cohort_max is >= 1
		s.cohorts[mention.Message.ChannelID] = c
	}
	c.record(raw)
	cohortMax := c.max
	s.mu.Unlock()

	engagement := math.Min(1, raw/cohortMax)
	sentiment := sentimentComponent(mention.ConfidenceHints)
	addressBonus := 0.0
	if mention.ConfidenceHints.HasAddress {
		addressBonus = 1.0
	}

	confidence := weightEngagement*engagement + weightSentiment*sentiment + weightAddress*addressBonus
	return clamp(0, 1, confidence)
}

// hdrb computes forwards + 2*reactions + 0.5*replies.
func hdrb(e domain.Engagement) float64 {
	return float64(e.Forwards) + 2*float64(e.Reactions) + 0.5*float64(e.Replies)
}

// sentimentComponent applies the keyword-matcher result and the
// conflicting-signal penalty.
func sentimentComponent(hints domain.ConfidenceHints) float64 {
	base := 0.5 // neutral baseline when no keyword fires either way
	switch {
	case hints.SentimentPositive && !hints.SentimentNegative:
		base = 1.0
	case hints.SentimentNegative && !hints.SentimentPositive:
		base = 0.0
	case hints.SentimentPositive && hints.SentimentNegative:
		base = 0.5 - conflictingPenaltyMax
	}
	return clamp(0, 1, base)
}

func (c *cohort) record(v float64) {
	c.values = append(c.values, v)
	if len(c.values) > cohortWindow {
		c.values = c.values[len(c.values)-cohortWindow:]
	}
	max := 1.0 // floor: cohort_max >= 1
	for _, x := range c.values {
		if x > max {
			max = x
		}
	}
	c.max = max
}

func clamp(lo, hi, v float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
