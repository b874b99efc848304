package outcome

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/scbot/internal/clock"
	"github.com/sawpanic/scbot/internal/domain"
	"github.com/sawpanic/scbot/internal/pricing"
)

// Config holds the tracking knobs. NewEngine starts from DefaultConfig;
// SetConfig replaces every knob as given, zero values included.
type Config struct {
	MaxCheckpointAttempts int
	PollInterval          time.Duration
	TrackingWindowDays    int
	ExtendedWindowDays    int
	// DrawdownFloor is the surviving fraction of ATH below which a signal
	// is declared dead (0.10 = a 90% drawdown).
	DrawdownFloor   float64
	ZeroVolumeHours int
}

// DefaultConfig returns the shipped tracking defaults.
func DefaultConfig() Config {
	return Config{
		MaxCheckpointAttempts: 3,
		PollInterval:          2 * time.Hour,
		TrackingWindowDays:    30,
		ExtendedWindowDays:    90,
		DrawdownFloor:         0.10,
		ZeroVolumeHours:       48,
	}
}

// Persister is the narrow interface the Outcome Engine needs from the
// signal store; the concrete atomic-JSON implementation lives in
// internal/persistence.
type Persister interface {
	SaveSignal(s *domain.Signal) error
}

// OutcomeSink receives a terminal OutcomeEvent for every signal that
// finishes, feeding the Reputation Engine's TD updates.
type OutcomeSink interface {
	Record(ctx context.Context, event domain.OutcomeEvent) error
}

// Predictor supplies the ROI expectation recorded on a signal at
// registration time, before any of its own checkpoints realize.
type Predictor interface {
	PredictROI(channelID, coinKey string) float64
}

// Metrics is the optional observability hook the engine reports into.
type Metrics interface {
	SignalRegistered(status domain.SignalStatus)
	CheckpointRealized(label domain.CheckpointLabel)
	SignalTerminated(reason domain.TerminationReason)
}

// Engine is the Outcome Engine: it owns the keyed
// SignalId -> Signal map, resolves entries via the Pricing Fabric, and
// drives checkpoint realization / periodic polling / termination from the
// single Scheduler priority queue.
type Engine struct {
	mu      sync.RWMutex
	signals map[domain.SignalId]*domain.Signal

	scheduler *Scheduler
	fabric    *pricing.Fabric
	persist   Persister
	sink      OutcomeSink
	clock     clock.Clock
	predictor Predictor
	metrics   Metrics
	cfg       Config
}

// SetConfig replaces the tracking knobs; call before any registration.
func (e *Engine) SetConfig(cfg Config) { e.cfg = cfg }

// SetPredictor attaches the registration-time ROI predictor, usually the
// Reputation Engine.
func (e *Engine) SetPredictor(p Predictor) { e.predictor = p }

// SetMetrics attaches the optional observability hook.
func (e *Engine) SetMetrics(m Metrics) { e.metrics = m }

// NewEngine constructs an Engine.
func NewEngine(fabric *pricing.Fabric, persist Persister, sink OutcomeSink, c clock.Clock) *Engine {
	return &Engine{
		signals:   make(map[domain.SignalId]*domain.Signal),
		scheduler: NewScheduler(),
		fabric:    fabric,
		persist:   persist,
		sink:      sink,
		clock:     c,
		cfg:       DefaultConfig(),
	}
}

// Register implements register(signal_candidate).
func (e *Engine) Register(ctx context.Context, messageID int64, channelID, coinKey, symbol, address string, chain domain.Chain, textPrice *decimal.Decimal, textPriceValid bool, messageTime time.Time) (*domain.Signal, error) {
	id := domain.NewSignalId(messageID, channelID, coinKey)
	now := e.clock.Now()

	res, err := e.fabric.ResolveEntry(ctx, coinKey, chain, textPrice, textPriceValid, messageTime)
	if err != nil {
		s := &domain.Signal{
			ID:        id,
			MessageID: messageID,
			ChannelID: channelID,
			CoinKey:   coinKey,
			Symbol:    symbol,
			Address:   address,
			Chain:     chain,
			CreatedAt: now,
			Status:    domain.StatusDataUnavailable,
		}
		e.mu.Lock()
		e.signals[id] = s
		e.mu.Unlock()
		if e.metrics != nil {
			e.metrics.SignalRegistered(domain.StatusDataUnavailable)
		}
		if e.persist != nil {
			_ = e.persist.SaveSignal(s)
		}
		return s, nil
	}

	s := domain.NewInProgressSignal(id, messageID, channelID, coinKey, symbol, address, chain, now, res.EntryPrice, res.Confidence, res.Source)
	s.PriceDiscrepancy = res.PriceDiscrepancy
	s.LatePump = res.LatePump
	if e.predictor != nil {
		s.PredictedROI = decimal.NewFromFloat(e.predictor.PredictROI(channelID, coinKey))
	}

	e.mu.Lock()
	e.signals[id] = s
	e.mu.Unlock()

	for _, cp := range s.Checkpoints {
		e.scheduler.ArmCheckpoint(id, cp.Label, cp.DueAt)
	}
	e.scheduler.ArmPoll(id, now.Add(e.cfg.PollInterval))

	if e.metrics != nil {
		e.metrics.SignalRegistered(domain.StatusInProgress)
	}
	if e.persist != nil {
		_ = e.persist.SaveSignal(s)
	}
	return s, nil
}

// Restore re-loads persisted signals on startup. In-progress signals get
// their unresolved checkpoints and the periodic poll re-armed; an
// in-flight call dropped at shutdown left its checkpoint unrealized, so it
// simply retries once due again. Terminal signals are kept for lookups but
// never rescheduled.
func (e *Engine) Restore(signals map[domain.SignalId]*domain.Signal) {
	now := e.clock.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, s := range signals {
		e.signals[id] = s
		if s.Status != domain.StatusInProgress {
			continue
		}
		for _, label := range domain.CheckpointOrder {
			cp := s.Checkpoints[label]
			if cp != nil && cp.Status == "" {
				e.scheduler.ArmCheckpoint(id, label, cp.DueAt)
			}
		}
		e.scheduler.ArmPoll(id, now.Add(e.cfg.PollInterval))
	}
}

// Tick drains every scheduler item due at or before the current time and
// processes each exactly once. Items deferred by the checkpoint-ordering
// invariant are re-armed at their original due_at, to be retried on the
// next Tick rather than spun on immediately (which would loop forever
// while the blocking earlier checkpoint remains unresolved).
func (e *Engine) Tick(ctx context.Context) {
	var due []dueItem
	for {
		item, ok := e.scheduler.PopDue(e.clock.Now())
		if !ok {
			break
		}
		due = append(due, item)
	}
	for _, item := range due {
		e.process(ctx, item)
	}
}

func (e *Engine) process(ctx context.Context, item dueItem) {
	e.mu.Lock()
	s, ok := e.signals[item.SignalID]
	e.mu.Unlock()
	if !ok || s.Status.Terminal() {
		return
	}

	now := e.clock.Now()
	var observed decimal.Decimal
	haveObserved := false

	if item.IsPoll {
		if quote, err := e.fabric.GetCurrent(ctx, s.CoinKey, s.Chain); err == nil {
			observed = quote.PriceUSD
			haveObserved = true
			e.applyPoll(s, quote, now)
		}
		if !s.Status.Terminal() {
			e.scheduler.ArmPoll(s.ID, now.Add(e.cfg.PollInterval))
		}
	} else {
		observed, haveObserved = e.realizeCheckpoint(ctx, s, item, now)
	}

	if haveObserved {
		e.evaluateTermination(ctx, s, observed, now)
	}

	if e.persist != nil {
		_ = e.persist.SaveSignal(s)
	}
}

// realizeCheckpoint implements checkpoint realization with the strict
// label-ordering invariant and the 3-attempt retry-then-missing rule.
func (e *Engine) realizeCheckpoint(ctx context.Context, s *domain.Signal, item dueItem, now time.Time) (decimal.Decimal, bool) {
	cp := s.Checkpoints[item.Label]
	if cp == nil || cp.Status != "" {
		return decimal.Zero, false
	}

	if next := s.NextDueCheckpoint(); next != nil && next.Label != item.Label {
		// An earlier label is still unresolved; defer this one without
		// consuming an attempt, to retry on the next tick. Checkpoints
		// realize strictly in label order.
		e.scheduler.ArmCheckpoint(s.ID, item.Label, item.DueAt)
		return decimal.Zero, false
	}

	quote, err := e.fabric.GetCurrent(ctx, s.CoinKey, s.Chain)
	if err != nil {
		cp.Attempts++
		if cp.Attempts >= e.cfg.MaxCheckpointAttempts {
			cp.Status = domain.CheckpointMissing
			if s.AthPrice.IsZero() {
				return decimal.Zero, false
			}
			return s.AthPrice, true
		}
		e.scheduler.ArmCheckpoint(s.ID, item.Label, now.Add(e.cfg.PollInterval))
		return decimal.Zero, false
	}

	cp.Status = domain.CheckpointRealized
	cp.RealizedAt = &now
	price := quote.PriceUSD
	cp.Price = &price
	if e.metrics != nil {
		e.metrics.CheckpointRealized(item.Label)
	}

	if price.GreaterThan(s.AthPrice) {
		s.AthPrice = price
		s.AthAt = now
	}
	return price, true
}

func (e *Engine) applyPoll(s *domain.Signal, quote domain.PriceQuote, now time.Time) {
	if quote.PriceUSD.GreaterThan(s.AthPrice) {
		s.AthPrice = quote.PriceUSD
		s.AthAt = now
	}

	switch {
	case quote.Volume24hUSD == nil:
		// unknown volume never counts toward the zero-volume termination rule
	case quote.Volume24hUSD.IsZero():
		s.ConsecutiveZeroVolumeHours += int(e.cfg.PollInterval.Hours())
	default:
		s.ConsecutiveZeroVolumeHours = 0
	}

	if !s.EntryPrice.IsZero() {
		roi := quote.PriceUSD.Div(s.EntryPrice)
		s.RecentROITrend = append(s.RecentROITrend, roi)
		if len(s.RecentROITrend) > 3 {
			s.RecentROITrend = s.RecentROITrend[len(s.RecentROITrend)-3:]
		}
	}
	s.LastPollAt = now
}

// evaluateTermination applies the termination rules, window first, using
// the most recently observed price.
func (e *Engine) evaluateTermination(ctx context.Context, s *domain.Signal, observedPrice decimal.Decimal, now time.Time) {
	windowDays := e.cfg.TrackingWindowDays
	if s.ExtendedWindow {
		windowDays = e.cfg.ExtendedWindowDays
	}
	age := now.Sub(s.CreatedAt)

	if age >= time.Duration(windowDays)*24*time.Hour {
		if !s.ExtendedWindow && windowDays == e.cfg.TrackingWindowDays && roiTrendStrictlyPositive(s.RecentROITrend) {
			s.ExtendedWindow = true
		} else {
			e.terminate(ctx, s, domain.StatusCompletedLive, domain.ReasonWindowElapsed, now)
			return
		}
	}

	if !s.AthPrice.IsZero() && !observedPrice.IsZero() {
		ratio, _ := observedPrice.Div(s.AthPrice).Float64()
		if ratio <= e.cfg.DrawdownFloor {
			e.terminate(ctx, s, domain.StatusDead, domain.ReasonDrawdown90Pct, now)
			return
		}
	}

	if s.ConsecutiveZeroVolumeHours >= e.cfg.ZeroVolumeHours {
		e.terminate(ctx, s, domain.StatusInactive, domain.ReasonZeroVolume, now)
		return
	}
}

func roiTrendStrictlyPositive(trend []decimal.Decimal) bool {
	if len(trend) < 3 {
		return false
	}
	a, b, c := trend[len(trend)-3], trend[len(trend)-2], trend[len(trend)-1]
	return a.LessThan(b) && b.LessThan(c)
}

func (e *Engine) terminate(ctx context.Context, s *domain.Signal, status domain.SignalStatus, reason domain.TerminationReason, now time.Time) {
	s.Status = status
	s.TerminatedAt = &now
	s.TerminatedReason = reason

	daysToAth := s.AthAt.Sub(s.CreatedAt).Hours() / 24
	event := domain.OutcomeEvent{
		SignalRef:    s.ID,
		ChannelID:    s.ChannelID,
		CoinKey:      s.CoinKey,
		AthMul:       s.AthMul(),
		DaysToAth:    daysToAth,
		Category:     domain.ClassifyCategory(mustFloat(s.AthMul())),
		IsWinner:     s.IsWinner(),
		CreatedAt:    s.CreatedAt,
		MessageID:    s.MessageID,
		TerminatedAt: now,
		Reason:       reason,

		EntryConfidence: mustFloat(s.EntryConfidence),
	}
	if e.metrics != nil {
		e.metrics.SignalTerminated(reason)
	}
	if e.sink != nil {
		if err := e.sink.Record(ctx, event); err != nil {
			log.Warn().Err(err).Str("signal", string(s.ID)).Str("reason", string(reason)).Msg("outcome event not applied")
		}
	}
}

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// Signal returns the current state of id, if known.
func (e *Engine) Signal(id domain.SignalId) (*domain.Signal, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.signals[id]
	return s, ok
}
