package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/sawpanic/scbot/internal/app"
	"github.com/sawpanic/scbot/internal/bootstrap"
	"github.com/sawpanic/scbot/internal/cache"
	"github.com/sawpanic/scbot/internal/clock"
	"github.com/sawpanic/scbot/internal/config"
	"github.com/sawpanic/scbot/internal/domain"
	"github.com/sawpanic/scbot/internal/httpapi"
	"github.com/sawpanic/scbot/internal/mention"
	"github.com/sawpanic/scbot/internal/net/budget"
	"github.com/sawpanic/scbot/internal/net/ratelimit"
	"github.com/sawpanic/scbot/internal/outcome"
	"github.com/sawpanic/scbot/internal/persistence"
	"github.com/sawpanic/scbot/internal/persistence/postgres"
	"github.com/sawpanic/scbot/internal/pricing"
	"github.com/sawpanic/scbot/internal/providers/rest"
	"github.com/sawpanic/scbot/internal/reputation"
	"github.com/sawpanic/scbot/internal/scoring"
	"github.com/sawpanic/scbot/internal/source"
	"github.com/sawpanic/scbot/internal/telemetry"
)

const (
	appName = "scbot"
	version = "v1.0.0"

	exitConfigError      = 64
	exitPersistenceError = 70
)

var (
	flagProvidersConfig   string
	flagEngineConfig      string
	flagPersistenceConfig string
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Channel signal tracker with TD-learned reputation",
		Version: version,
		Long: `scbot ingests crypto-signal messages from broadcast channels, tracks each
mentioned token through a fixed checkpoint schedule, and maintains
per-channel reputation learned from realized returns.

Run 'scbot bootstrap' to replay a channel's full history before going
live, then 'scbot live' to monitor and keep learning.`,
	}

	shared := pflag.NewFlagSet("shared", pflag.ContinueOnError)
	shared.StringVar(&flagProvidersConfig, "providers-config", "config/providers.yaml", "Price provider routing configuration")
	shared.StringVar(&flagEngineConfig, "engine-config", "", "Engine knob overrides (optional; defaults apply)")
	shared.StringVar(&flagPersistenceConfig, "persistence-config", "", "Persistence configuration (optional; defaults apply)")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "Monitor channels and track signals in real time",
		RunE:  runLive,
	}
	liveCmd.Flags().AddFlagSet(shared)
	liveCmd.Flags().String("channels", "", "Comma-separated channel ids to monitor (required)")
	liveCmd.Flags().String("ws-url", "", "Message source websocket URL (required)")
	liveCmd.Flags().String("history-url", "", "Message source history REST URL")

	bootstrapCmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Replay a channel's full history to seed reputation",
		RunE:  runBootstrap,
	}
	bootstrapCmd.Flags().AddFlagSet(shared)
	bootstrapCmd.Flags().String("channels", "", "Comma-separated channel ids to bootstrap (required)")
	bootstrapCmd.Flags().String("ws-url", "", "Message source websocket URL (required)")
	bootstrapCmd.Flags().String("history-url", "", "Message source history REST URL")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only reputation and signal API",
		RunE:  runServe,
	}
	serveCmd.Flags().AddFlagSet(shared)
	serveCmd.Flags().String("addr", "0.0.0.0:8080", "HTTP listen address")

	rootCmd.AddCommand(liveCmd, bootstrapCmd, serveCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// runtime bundles every long-lived component the subcommands share.
type runtime struct {
	engineCfg *config.EngineConfig
	store     *persistence.Store
	fabric    *pricing.Fabric
	rep       *reputation.Engine
	outcomes  *outcome.Engine
	metrics   *telemetry.Collector
	registry  *prometheus.Registry
	clock     clock.Clock
}

func buildRuntime(cmd *cobra.Command) (*runtime, error) {
	providersCfg, err := config.LoadProvidersConfig(flagProvidersConfig)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitConfigError)
	}

	engineCfg := config.DefaultEngineConfig()
	if flagEngineConfig != "" {
		engineCfg, err = config.LoadEngineConfig(flagEngineConfig)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exitConfigError)
		}
	}

	persistCfg := config.DefaultPersistenceConfig()
	if flagPersistenceConfig != "" {
		persistCfg, err = config.LoadPersistenceConfig(flagPersistenceConfig)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exitConfigError)
		}
	}

	store, err := persistence.Open(persistCfg.Dir, persistCfg.DebounceWrite)
	if err != nil {
		return nil, err
	}
	if store.AllQuarantined() {
		fmt.Fprintln(os.Stderr, "all persistence stores corrupt")
		os.Exit(exitPersistenceError)
	}

	registry := prometheus.NewRegistry()
	metrics := telemetry.NewCollector(registry)

	fabric := buildFabric(providersCfg, engineCfg, metrics)

	rep := reputation.NewEngine(store)
	rep.SetScoreParams(reputation.ScoreParams{
		WinWeight:    engineCfg.ReputationWeights.Win,
		ROIWeight:    engineCfg.ReputationWeights.ROI,
		SharpeWeight: engineCfg.ReputationWeights.Sharpe,
		SpeedWeight:  engineCfg.ReputationWeights.Speed,
		ConfWeight:   engineCfg.ReputationWeights.Conf,

		EliteMin:     engineCfg.TierThresholds.Elite,
		ExcellentMin: engineCfg.TierThresholds.Excellent,
		GoodMin:      engineCfg.TierThresholds.Good,
		AverageMin:   engineCfg.TierThresholds.Average,
		PoorMin:      engineCfg.TierThresholds.Poor,

		UnprovenMinSignals:    int64(engineCfg.UnprovenMinSignals),
		SuppressionMinSignals: int64(engineCfg.ScoreSuppressionMinSignals),
	})
	rep.SetLearnParams(reputation.LearnParams{
		Alpha:         engineCfg.TDLearningRate,
		OverallWeight: engineCfg.TDWeights.Overall,
		CoinWeight:    engineCfg.TDWeights.Coin,
		CrossWeight:   engineCfg.TDWeights.Cross,
	})
	rep.Hydrate(store.Channels(), store.Coins())

	if persistCfg.Postgres.DSN != "" {
		db, err := sqlx.Open("postgres", persistCfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("postgres open: %w", err)
		}
		rep.SetArchiver(postgres.NewErrorsRepo(db, persistCfg.Postgres.Timeout))
	}

	c := clock.RealClock{}
	outcomes := outcome.NewEngine(fabric, store, rep, c)
	outcomes.SetConfig(outcome.Config{
		MaxCheckpointAttempts: engineCfg.RetryAttemptsPerCheck,
		PollInterval:          engineCfg.PollInterval,
		TrackingWindowDays:    engineCfg.TrackingWindowDays,
		ExtendedWindowDays:    engineCfg.ExtendedWindowDays,
		DrawdownFloor:         1 - engineCfg.DrawdownTerminationPct,
		ZeroVolumeHours:       engineCfg.ZeroVolumeHours,
	})
	outcomes.SetPredictor(rep)
	outcomes.SetMetrics(metrics)

	// Re-derive in-progress tracking and replay-protection state from the
	// signal store.
	signals := store.Signals()
	outcomes.Restore(signals)
	for _, s := range signals {
		if s.Status.Terminal() && s.TerminatedReason != "" {
			rep.MarkApplied(string(s.ID) + "|" + string(s.TerminatedReason))
		}
	}

	return &runtime{
		engineCfg: engineCfg,
		store:     store,
		fabric:    fabric,
		rep:       rep,
		outcomes:  outcomes,
		metrics:   metrics,
		registry:  registry,
		clock:     c,
	}, nil
}

func buildFabric(cfg *config.ProvidersConfig, engineCfg *config.EngineConfig, metrics *telemetry.Collector) *pricing.Fabric {
	rl := ratelimit.NewManager()
	bm := budget.NewManager()

	clients := make(map[string]pricing.Provider, len(cfg.Providers))
	breakerK, breakerTimeout := 5, 30*time.Second
	for name, pc := range cfg.Providers {
		if !pc.Enabled {
			continue
		}
		clients[name] = rest.NewClient(rest.Config{
			Name:           name,
			Host:           pc.Host,
			BaseURL:        pc.BaseURL,
			Source:         domain.PriceSource(pc.Source),
			Capabilities:   pc.Capabilities,
			RequestTimeout: cfg.Global.CallTimeout,
			UserAgent:      cfg.Global.UserAgent,
		})
		rl.AddProvider(name, float64(pc.RPS), pc.Burst)
		bm.AddProvider(name, int64(pc.DailyBudget), cfg.Budget.ResetHour, cfg.Budget.WarnThreshold)
		if pc.Circuit.FailureThreshold < breakerK {
			breakerK = pc.Circuit.FailureThreshold
		}
		if t := time.Duration(pc.Circuit.TimeoutMS) * time.Millisecond; t > breakerTimeout {
			breakerTimeout = t
		}
	}

	chains := make(map[domain.Chain][]pricing.Provider, len(cfg.Chains))
	for chain, names := range cfg.Chains {
		for _, name := range names {
			if p, ok := clients[name]; ok {
				chains[domain.Chain(chain)] = append(chains[domain.Chain(chain)], p)
			}
		}
	}

	fabric := pricing.NewFabric(
		chains,
		cache.NewAutoHotCache(engineCfg.HotCacheCapacity),
		cache.NewHistoricalCache(engineCfg.HistoricalCacheCapacity),
		rl, bm,
		pricing.NewBreakerSet(uint32(breakerK), breakerTimeout),
		engineCfg.HotCacheTTL,
	)
	fabric.SetObserver(metrics)
	return fabric
}

func channelList(cmd *cobra.Command) ([]string, error) {
	raw, _ := cmd.Flags().GetString("channels")
	if raw == "" {
		return nil, fmt.Errorf("--channels is required")
	}
	var out []string
	for _, ch := range strings.Split(raw, ",") {
		if ch = strings.TrimSpace(ch); ch != "" {
			out = append(out, ch)
		}
	}
	return out, nil
}

func messageSource(cmd *cobra.Command) (source.Source, error) {
	wsURL, _ := cmd.Flags().GetString("ws-url")
	if wsURL == "" {
		return nil, fmt.Errorf("--ws-url is required")
	}
	historyURL, _ := cmd.Flags().GetString("history-url")
	return source.NewWSSource(wsURL, historyURL), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runLive(cmd *cobra.Command, args []string) error {
	channels, err := channelList(cmd)
	if err != nil {
		return err
	}
	src, err := messageSource(cmd)
	if err != nil {
		return err
	}

	rt, err := buildRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.store.Close()

	ctx, stop := signalContext()
	defer stop()

	pipe := app.NewPipeline(src, mention.NewExtractor(mention.NewVocabulary(mention.DefaultVocabulary()...)), scoring.NewScorer(), rt.outcomes, rt.rep, rt.clock)
	log.Info().Strs("channels", channels).Msg("live monitoring starting")
	return pipe.Run(ctx, channels)
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	channels, err := channelList(cmd)
	if err != nil {
		return err
	}
	src, err := messageSource(cmd)
	if err != nil {
		return err
	}

	rt, err := buildRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.store.Close()

	ctx, stop := signalContext()
	defer stop()

	if err := src.Connect(ctx); err != nil {
		return err
	}
	defer src.Disconnect()

	orch := bootstrap.New(
		src,
		mention.NewExtractor(mention.NewVocabulary(mention.DefaultVocabulary()...)),
		scoring.NewScorer(),
		rt.fabric, rt.rep, rt.store, rt.clock,
		rt.engineCfg.BootstrapBatchSize,
		rt.engineCfg.BootstrapParallelismPerChannel,
		rt.engineCfg.BootstrapOHLCBudget,
		rt.engineCfg.BootstrapOHLCRefillPerSec,
	)

	for _, ch := range channels {
		progress, err := orch.Bootstrap(ctx, ch)
		if progress != nil {
			rt.metrics.BootstrapProgress(progress)
			log.Info().
				Str("channel", ch).
				Int64("processed", progress.Processed).
				Int64("successes", progress.Successes).
				Int64("failures", progress.Failures).
				Str("status", string(progress.Status)).
				Msg("bootstrap finished")
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")

	rt, err := buildRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.store.Close()

	ctx, stop := signalContext()
	defer stop()

	srv := httpapi.New(addr, rt.rep, rt.store, rt.registry)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
