package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ProvidersConfig is the full price-provider routing configuration: the
// ordered per-chain provider lists plus per-provider limits.
type ProvidersConfig struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
	Chains    map[string][]string       `yaml:"chains"` // chain -> ordered provider names
	Budget    BudgetConfig              `yaml:"budget"`
	Global    GlobalConfig              `yaml:"global"`
}

// ProviderConfig configures a single upstream price source.
type ProviderConfig struct {
	Host         string        `yaml:"host"`
	BaseURL      string        `yaml:"base_url"`
	Source       string        `yaml:"source"`       // primary_dex | spot_aggregator_a | spot_aggregator_b | on_chain_indexer | historical_ohlc
	Capabilities []string      `yaml:"capabilities"` // subset of spot, at, ohlc
	RPS          int           `yaml:"rps"`
	Burst        int           `yaml:"burst"`
	DailyBudget  int           `yaml:"daily_budget"`
	Circuit      CircuitConfig `yaml:"circuit"`
	Enabled      bool          `yaml:"enabled"`
}

// CircuitConfig configures a provider's circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold"` // Consecutive failures to open circuit
	TimeoutMS        int `yaml:"timeout_ms"`        // Open duration before half-open probe
}

// BudgetConfig configures daily-budget accounting shared by all providers.
type BudgetConfig struct {
	WarnThreshold float64 `yaml:"warn_threshold"` // Warn at this fraction of daily budget
	ResetHour     int     `yaml:"reset_hour"`     // UTC hour to reset budgets (0-23)
}

// GlobalConfig holds provider settings that are not per-provider.
type GlobalConfig struct {
	CallTimeout time.Duration `yaml:"call_timeout"`
	UserAgent   string        `yaml:"user_agent"`
}

// LoadProvidersConfig loads provider configuration from a YAML file.
func LoadProvidersConfig(configPath string) (*ProvidersConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read providers config: %w", err)
	}

	var config ProvidersConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse providers config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid providers config: %w", err)
	}

	return &config, nil
}

// Validate ensures the configuration is valid and consistent.
func (c *ProvidersConfig) Validate() error {
	if c.Budget.WarnThreshold <= 0 || c.Budget.WarnThreshold > 1 {
		return fmt.Errorf("budget warn_threshold must be between 0 and 1, got %f", c.Budget.WarnThreshold)
	}
	if c.Budget.ResetHour < 0 || c.Budget.ResetHour > 23 {
		return fmt.Errorf("budget reset_hour must be between 0 and 23, got %d", c.Budget.ResetHour)
	}
	if c.Global.CallTimeout <= 0 {
		return fmt.Errorf("global call_timeout must be positive, got %s", c.Global.CallTimeout)
	}

	for name, provider := range c.Providers {
		if err := provider.Validate(); err != nil {
			return fmt.Errorf("provider %s: %w", name, err)
		}
	}

	for chain, names := range c.Chains {
		if len(names) == 0 {
			return fmt.Errorf("chain %s: provider list cannot be empty", chain)
		}
		for _, name := range names {
			if _, ok := c.Providers[name]; !ok {
				return fmt.Errorf("chain %s: unknown provider %q", chain, name)
			}
		}
	}

	return nil
}

// Validate ensures a provider configuration is valid.
func (p *ProviderConfig) Validate() error {
	if p.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if p.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}
	switch p.Source {
	case "primary_dex", "spot_aggregator_a", "spot_aggregator_b", "on_chain_indexer", "historical_ohlc":
	default:
		return fmt.Errorf("unknown source %q", p.Source)
	}
	if len(p.Capabilities) == 0 {
		return fmt.Errorf("capabilities cannot be empty")
	}
	for _, cap := range p.Capabilities {
		switch cap {
		case "spot", "at", "ohlc":
		default:
			return fmt.Errorf("unknown capability %q", cap)
		}
	}
	if p.RPS <= 0 {
		return fmt.Errorf("rps must be positive, got %d", p.RPS)
	}
	if p.Burst < p.RPS {
		return fmt.Errorf("burst (%d) must be >= rps (%d)", p.Burst, p.RPS)
	}
	if p.DailyBudget <= 0 {
		return fmt.Errorf("daily_budget must be positive, got %d", p.DailyBudget)
	}
	if p.Circuit.FailureThreshold <= 0 {
		return fmt.Errorf("circuit failure_threshold must be positive, got %d", p.Circuit.FailureThreshold)
	}
	if p.Circuit.TimeoutMS <= 0 {
		return fmt.Errorf("circuit timeout_ms must be positive, got %d", p.Circuit.TimeoutMS)
	}
	return nil
}
