package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EngineConfig holds the tracking, learning, and scoring knobs shared by
// the Outcome Engine, Reputation Engine, and Historical Bootstrap.
type EngineConfig struct {
	TrackingWindowDays int `yaml:"tracking_window_days"`
	ExtendedWindowDays int `yaml:"extended_window_days"`

	DrawdownTerminationPct float64       `yaml:"drawdown_termination_pct"`
	ZeroVolumeHours        int           `yaml:"zero_volume_hours"`
	PollInterval           time.Duration `yaml:"poll_interval"`
	RetryAttemptsPerCheck  int           `yaml:"retry_attempts_per_checkpoint"`

	TDLearningRate float64   `yaml:"td_learning_rate"`
	TDWeights      TDWeights `yaml:"td_weights"`

	ReputationWeights ReputationWeights `yaml:"reputation_weights"`
	TierThresholds    TierThresholds    `yaml:"tier_thresholds"`

	UnprovenMinSignals         int `yaml:"unproven_min_signals"`
	ScoreSuppressionMinSignals int `yaml:"score_suppression_min_signals"`

	HotCacheTTL             time.Duration `yaml:"hot_cache_ttl"`
	HotCacheCapacity        int           `yaml:"hot_cache_capacity"`
	HistoricalCacheCapacity int           `yaml:"historical_cache_capacity"`

	BootstrapBatchSize             int     `yaml:"bootstrap_batch_size"`
	BootstrapParallelismPerChannel int     `yaml:"bootstrap_parallelism_per_channel"`
	BootstrapOHLCBudget            int     `yaml:"bootstrap_ohlc_budget"` // global token bucket capacity
	BootstrapOHLCRefillPerSec      float64 `yaml:"bootstrap_ohlc_refill_per_sec"`
}

// TDWeights blends the three TD estimates into a registration-time prediction.
type TDWeights struct {
	Overall float64 `yaml:"overall"`
	Coin    float64 `yaml:"coin"`
	Cross   float64 `yaml:"cross"`
}

// ReputationWeights blends the five normalized components of the composite score.
type ReputationWeights struct {
	Win    float64 `yaml:"win"`
	ROI    float64 `yaml:"roi"`
	Sharpe float64 `yaml:"sharpe"`
	Speed  float64 `yaml:"speed"`
	Conf   float64 `yaml:"conf"`
}

// TierThresholds are the minimum composite scores per tier.
type TierThresholds struct {
	Elite     float64 `yaml:"elite"`
	Excellent float64 `yaml:"excellent"`
	Good      float64 `yaml:"good"`
	Average   float64 `yaml:"average"`
	Poor      float64 `yaml:"poor"`
}

// DefaultEngineConfig returns the shipped defaults, used when no engine.yaml
// is supplied.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		TrackingWindowDays:     30,
		ExtendedWindowDays:     90,
		DrawdownTerminationPct: 0.90,
		ZeroVolumeHours:        48,
		PollInterval:           2 * time.Hour,
		RetryAttemptsPerCheck:  3,
		TDLearningRate:         0.10,
		TDWeights:              TDWeights{Overall: 0.40, Coin: 0.50, Cross: 0.10},
		ReputationWeights:      ReputationWeights{Win: 0.30, ROI: 0.25, Sharpe: 0.20, Speed: 0.15, Conf: 0.10},
		TierThresholds:         TierThresholds{Elite: 90, Excellent: 75, Good: 60, Average: 40, Poor: 20},

		UnprovenMinSignals:         10,
		ScoreSuppressionMinSignals: 5,

		HotCacheTTL:             2 * time.Hour,
		HotCacheCapacity:        10000,
		HistoricalCacheCapacity: 1000000,

		BootstrapBatchSize:             100,
		BootstrapParallelismPerChannel: 5,
		BootstrapOHLCBudget:            500,
		BootstrapOHLCRefillPerSec:      2,
	}
}

// LoadEngineConfig loads engine configuration from a YAML file, filling
// unset fields from the defaults.
func LoadEngineConfig(configPath string) (*EngineConfig, error) {
	config := DefaultEngineConfig()

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read engine config: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse engine config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	return config, nil
}

// Validate ensures the engine configuration is valid and consistent.
func (c *EngineConfig) Validate() error {
	if c.TrackingWindowDays <= 0 {
		return fmt.Errorf("tracking_window_days must be positive, got %d", c.TrackingWindowDays)
	}
	if c.ExtendedWindowDays < c.TrackingWindowDays {
		return fmt.Errorf("extended_window_days (%d) must be >= tracking_window_days (%d)", c.ExtendedWindowDays, c.TrackingWindowDays)
	}
	if c.DrawdownTerminationPct <= 0 || c.DrawdownTerminationPct >= 1 {
		return fmt.Errorf("drawdown_termination_pct must be in (0,1), got %f", c.DrawdownTerminationPct)
	}
	if c.ZeroVolumeHours <= 0 {
		return fmt.Errorf("zero_volume_hours must be positive, got %d", c.ZeroVolumeHours)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.RetryAttemptsPerCheck <= 0 {
		return fmt.Errorf("retry_attempts_per_checkpoint must be positive, got %d", c.RetryAttemptsPerCheck)
	}
	if c.TDLearningRate <= 0 || c.TDLearningRate >= 1 {
		return fmt.Errorf("td_learning_rate must be in (0,1), got %f", c.TDLearningRate)
	}
	if sum := c.TDWeights.Overall + c.TDWeights.Coin + c.TDWeights.Cross; !approxOne(sum) {
		return fmt.Errorf("td_weights must sum to 1.0, got %f", sum)
	}
	w := c.ReputationWeights
	if sum := w.Win + w.ROI + w.Sharpe + w.Speed + w.Conf; !approxOne(sum) {
		return fmt.Errorf("reputation_weights must sum to 1.0, got %f", sum)
	}
	t := c.TierThresholds
	if !(t.Elite > t.Excellent && t.Excellent > t.Good && t.Good > t.Average && t.Average > t.Poor && t.Poor > 0) {
		return fmt.Errorf("tier_thresholds must be strictly descending and positive")
	}
	if c.UnprovenMinSignals < c.ScoreSuppressionMinSignals {
		return fmt.Errorf("unproven_min_signals (%d) must be >= score_suppression_min_signals (%d)", c.UnprovenMinSignals, c.ScoreSuppressionMinSignals)
	}
	if c.HotCacheCapacity <= 0 {
		return fmt.Errorf("hot_cache_capacity must be positive, got %d", c.HotCacheCapacity)
	}
	if c.HistoricalCacheCapacity <= 0 {
		return fmt.Errorf("historical_cache_capacity must be positive, got %d", c.HistoricalCacheCapacity)
	}
	if c.BootstrapBatchSize <= 0 {
		return fmt.Errorf("bootstrap_batch_size must be positive, got %d", c.BootstrapBatchSize)
	}
	if c.BootstrapParallelismPerChannel <= 0 {
		return fmt.Errorf("bootstrap_parallelism_per_channel must be positive, got %d", c.BootstrapParallelismPerChannel)
	}
	if c.BootstrapOHLCBudget <= 0 {
		return fmt.Errorf("bootstrap_ohlc_budget must be positive, got %d", c.BootstrapOHLCBudget)
	}
	if c.BootstrapOHLCRefillPerSec <= 0 {
		return fmt.Errorf("bootstrap_ohlc_refill_per_sec must be positive, got %f", c.BootstrapOHLCRefillPerSec)
	}
	return nil
}

func approxOne(v float64) bool {
	return v > 0.999 && v < 1.001
}
