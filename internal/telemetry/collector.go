// Package telemetry registers the Prometheus metrics surfaced by the serve
// endpoint: signal lifecycle counters, cache effectiveness, provider
// breaker state, and bootstrap progress.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sawpanic/scbot/internal/domain"
)

// Collector owns every metric the process exports. It implements the
// Outcome Engine's metrics hook directly.
type Collector struct {
	signalsRegistered   *prometheus.CounterVec
	checkpointsRealized *prometheus.CounterVec
	signalsTerminated   *prometheus.CounterVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	providerRequests *prometheus.CounterVec
	breakerOpen      *prometheus.GaugeVec
	budgetUsed       *prometheus.GaugeVec

	bootstrapProcessed *prometheus.GaugeVec
	bootstrapTotal     *prometheus.GaugeVec
}

// NewCollector constructs the metric set and registers it on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signalsRegistered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scbot_signals_registered_total",
			Help: "Signals registered, by resulting status.",
		}, []string{"status"}),
		checkpointsRealized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scbot_checkpoints_realized_total",
			Help: "Checkpoints realized, by label.",
		}, []string{"label"}),
		signalsTerminated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scbot_signals_terminated_total",
			Help: "Signals terminated, by reason.",
		}, []string{"reason"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scbot_cache_hits_total",
			Help: "Price cache hits, by tier.",
		}, []string{"tier"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scbot_cache_misses_total",
			Help: "Price cache misses, by tier.",
		}, []string{"tier"}),
		providerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scbot_provider_requests_total",
			Help: "Upstream provider requests, by provider and outcome.",
		}, []string{"provider", "outcome"}),
		breakerOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scbot_provider_breaker_open",
			Help: "1 when the provider's circuit breaker is open.",
		}, []string{"provider"}),
		budgetUsed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scbot_provider_budget_used_ratio",
			Help: "Fraction of the provider's daily request budget consumed.",
		}, []string{"provider"}),
		bootstrapProcessed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scbot_bootstrap_processed",
			Help: "Messages processed by the historical bootstrap, by channel.",
		}, []string{"channel"}),
		bootstrapTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scbot_bootstrap_total",
			Help: "Total messages known to the historical bootstrap, by channel.",
		}, []string{"channel"}),
	}

	reg.MustRegister(
		c.signalsRegistered, c.checkpointsRealized, c.signalsTerminated,
		c.cacheHits, c.cacheMisses,
		c.providerRequests, c.breakerOpen, c.budgetUsed,
		c.bootstrapProcessed, c.bootstrapTotal,
	)
	return c
}

func (c *Collector) SignalRegistered(status domain.SignalStatus) {
	c.signalsRegistered.WithLabelValues(string(status)).Inc()
}

func (c *Collector) CheckpointRealized(label domain.CheckpointLabel) {
	c.checkpointsRealized.WithLabelValues(string(label)).Inc()
}

func (c *Collector) SignalTerminated(reason domain.TerminationReason) {
	c.signalsTerminated.WithLabelValues(string(reason)).Inc()
}

// CacheHit and CacheMiss implement the Pricing Fabric's cache observer.
func (c *Collector) CacheHit(tier string)  { c.cacheHits.WithLabelValues(tier).Inc() }
func (c *Collector) CacheMiss(tier string) { c.cacheMisses.WithLabelValues(tier).Inc() }

// ProviderRequest implements the Pricing Fabric's provider observer.
func (c *Collector) ProviderRequest(provider, outcome string) {
	c.providerRequests.WithLabelValues(provider, outcome).Inc()
}

// BreakerOpen mirrors a provider breaker state change.
func (c *Collector) BreakerOpen(provider string, open bool) {
	v := 0.0
	if open {
		v = 1.0
	}
	c.breakerOpen.WithLabelValues(provider).Set(v)
}

// BudgetUsed mirrors a provider's daily-budget consumption ratio.
func (c *Collector) BudgetUsed(provider string, ratio float64) {
	c.budgetUsed.WithLabelValues(provider).Set(ratio)
}

// BootstrapProgress mirrors a channel's replay position.
func (c *Collector) BootstrapProgress(p *domain.BootstrapProgress) {
	c.bootstrapProcessed.WithLabelValues(p.ChannelID).Set(float64(p.Processed))
	c.bootstrapTotal.WithLabelValues(p.ChannelID).Set(float64(p.Total))
}
