package reputation

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/scbot/internal/domain"
	"github.com/sawpanic/scbot/internal/persistence"
)

// ErrDuplicateOutcome is returned when the same terminal OutcomeEvent is
// replayed: a signal produces exactly one outcome per terminal reason.
var ErrDuplicateOutcome = errors.New("duplicate outcome event")

// Store is the narrow persistence interface the Reputation Engine needs;
// the concrete atomic-JSON implementation lives in internal/persistence.
type Store interface {
	SaveChannelReputation(r *domain.ChannelReputation) error
	SaveCoinCrossChannel(c *domain.CoinCrossChannel) error
}

// Engine is the Reputation & Learning Engine. It implements
// outcome.OutcomeSink: every terminal OutcomeEvent from the Outcome Engine
// drives one TD update across all three estimates, a composite-score
// recomputation, and an unbounded PredictionError append.
type Engine struct {
	mu       sync.Mutex
	channels map[string]*domain.ChannelReputation
	coins    map[string]*domain.CoinCrossChannel
	applied  map[string]struct{} // OutcomeEvent idempotency keys already applied
	store    Store
	archiver persistence.Archiver
	params   ScoreParams
	learn    LearnParams
}

// NewEngine constructs an empty Engine. store may be nil for tests that do
// not exercise persistence.
func NewEngine(store Store) *Engine {
	return &Engine{
		channels: make(map[string]*domain.ChannelReputation),
		coins:    make(map[string]*domain.CoinCrossChannel),
		applied:  make(map[string]struct{}),
		store:    store,
		params:   DefaultScoreParams(),
		learn:    DefaultLearnParams(),
	}
}

// SetScoreParams replaces the scoring knobs; call before any event is
// recorded.
func (e *Engine) SetScoreParams(p ScoreParams) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.params = p
}

// SetLearnParams replaces the TD learning knobs; call before any event is
// recorded.
func (e *Engine) SetLearnParams(p LearnParams) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.learn = p
}

// SetArchiver attaches an optional durable archive for prediction-error
// ledger rows. Archive failures are logged, never fatal: the in-memory
// ledger remains authoritative.
func (e *Engine) SetArchiver(a persistence.Archiver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.archiver = a
}

// Hydrate replaces the engine's state with previously persisted aggregates,
// called once at startup before any live event is applied. Applied-event
// keys are rebuilt from the signal store by the caller via MarkApplied.
func (e *Engine) Hydrate(channels map[string]*domain.ChannelReputation, coins map[string]*domain.CoinCrossChannel) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, ch := range channels {
		e.channels[id] = ch
	}
	for key, c := range coins {
		if c.ChannelsSeen == nil {
			c.ChannelsSeen = make(map[string]struct{}, len(c.ChannelsSeenList))
			for _, id := range c.ChannelsSeenList {
				c.ChannelsSeen[id] = struct{}{}
			}
		}
		e.coins[key] = c
	}
}

// MarkApplied records that a terminal signal's outcome has already been
// folded into the hydrated aggregates, so a replay on restart is rejected.
func (e *Engine) MarkApplied(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.applied[key] = struct{}{}
}

func (e *Engine) getOrCreateChannel(channelID string) *domain.ChannelReputation {
	ch, ok := e.channels[channelID]
	if !ok {
		ch = domain.NewChannelReputation(channelID)
		e.channels[channelID] = ch
	}
	return ch
}

func (e *Engine) getOrCreateCoin(coinKey string) *domain.CoinCrossChannel {
	c, ok := e.coins[coinKey]
	if !ok {
		c = domain.NewCoinCrossChannel(coinKey)
		e.coins[coinKey] = c
	}
	return c
}

// PredictROI implements the predicted_roi blend used at signal
// registration. It takes a read snapshot under the engine lock; the
// caller stores the result on the Signal at registration time, before any
// TD update for that signal's eventual outcome occurs.
func (e *Engine) PredictROI(channelID, coinKey string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch, chSeen := e.channels[channelID]
	if !chSeen || ch.Total == 0 {
		return 1.50
	}

	var vCoin float64
	coinSeen := false
	if cp, ok := ch.CoinPerformance[coinKey]; ok && cp.Initialized {
		vCoin, coinSeen = cp.ExpectedROICoin, true
	}

	var vCross float64
	crossSeen := false
	if cc, ok := e.coins[coinKey]; ok && cc.SignalsTotal > 0 {
		vCross, crossSeen = cc.MeanROIAllChannels, true
	}

	return blendPredictedWith(e.learn, true, ch.ExpectedROIOverall, coinSeen, vCoin, crossSeen, vCross)
}

// Record implements outcome.OutcomeSink. It performs the three-level TD
// update, appends PredictionError records (pre-update V as predicted_roi),
// recomputes the composite score and tier, and persists both the channel
// and cross-channel coin aggregate.
func (e *Engine) Record(ctx context.Context, event domain.OutcomeEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := event.IdempotencyKey()
	if _, seen := e.applied[key]; seen {
		return ErrDuplicateOutcome
	}
	e.applied[key] = struct{}{}

	athMul := clampAthMul(mustFloat(event.AthMul))

	ch := e.getOrCreateChannel(event.ChannelID)
	cp, coinExisted := ch.CoinPerformance[event.CoinKey]
	if !coinExisted {
		cp = &domain.CoinPerformance{}
		ch.CoinPerformance[event.CoinKey] = cp
	}

	chErrsBefore := len(ch.PredictionErrors)
	cpErrsBefore := len(cp.PredictionErrors)

	e.updateChannelOverall(ch, event, athMul)
	e.updateCoinPerformance(cp, event, athMul)
	e.archive(ctx, event.ChannelID, ch, cp, chErrsBefore, cpErrsBefore)
	e.recomputeComposite(ch)

	cross := e.getOrCreateCoin(event.CoinKey)
	e.updateCrossChannel(cross, ch, event.ChannelID, cp)

	if !event.CreatedAt.IsZero() {
		if ch.FirstSignalAt.IsZero() || event.CreatedAt.Before(ch.FirstSignalAt) {
			ch.FirstSignalAt = event.CreatedAt
		}
		if event.TerminatedAt.After(ch.LastSignalAt) {
			ch.LastSignalAt = event.TerminatedAt
		}
	}
	ch.UpdatedAt = event.TerminatedAt

	if e.store != nil {
		if err := e.store.SaveChannelReputation(ch); err != nil {
			return err
		}
		if err := e.store.SaveCoinCrossChannel(cross); err != nil {
			return err
		}
	}
	return nil
}

// archive forwards any prediction-error rows appended by this event to the
// optional durable archive.
func (e *Engine) archive(ctx context.Context, channelID string, ch *domain.ChannelReputation, cp *domain.CoinPerformance, chBefore, cpBefore int) {
	if e.archiver == nil {
		return
	}
	for _, rec := range ch.PredictionErrors[chBefore:] {
		if err := e.archiver.ArchivePredictionError(ctx, channelID, persistence.ScopeChannelOverall, rec); err != nil {
			log.Warn().Err(err).Str("channel", channelID).Msg("prediction error archive failed")
		}
	}
	for _, rec := range cp.PredictionErrors[cpBefore:] {
		if err := e.archiver.ArchivePredictionError(ctx, channelID, persistence.ScopeChannelCoin, rec); err != nil {
			log.Warn().Err(err).Str("channel", channelID).Msg("prediction error archive failed")
		}
	}
}

// RecordMention counts a raw mention against the (channel, coin) and
// cross-channel aggregates before any pricing outcome is known.
func (e *Engine) RecordMention(channelID, coinKey, symbol, address string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch := e.getOrCreateChannel(channelID)
	cp, ok := ch.CoinPerformance[coinKey]
	if !ok {
		cp = &domain.CoinPerformance{Symbol: symbol, Address: address}
		ch.CoinPerformance[coinKey] = cp
	}
	cp.MentionsCount++

	cross := e.getOrCreateCoin(coinKey)
	cross.MentionsTotal++
}

// SetInsufficientData flags (or clears) a channel whose bootstrap coverage
// fell below the data-quality threshold. The reputation keeps updating
// normally either way; the flag only marks it for consumers.
func (e *Engine) SetInsufficientData(channelID string, flag bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch := e.getOrCreateChannel(channelID)
	ch.InsufficientData = flag
	if e.store != nil {
		if err := e.store.SaveChannelReputation(ch); err != nil {
			log.Warn().Err(err).Str("channel", channelID).Msg("reputation save failed")
		}
	}
}

// ListChannels returns read-only views of every tracked channel, sorted by
// channel id for deterministic output.
func (e *Engine) ListChannels() []domain.ChannelReputationView {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.ChannelReputationView, 0, len(e.channels))
	for _, ch := range e.channels {
		out = append(out, domain.NewChannelReputationView(ch))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	return out
}

// Channel returns the live aggregate for channelID, if tracked.
func (e *Engine) Channel(channelID string) (*domain.ChannelReputation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, ok := e.channels[channelID]
	return ch, ok
}

func (e *Engine) updateChannelOverall(ch *domain.ChannelReputation, event domain.OutcomeEvent, athMul float64) {
	rs := rollingStatsFrom(&ch.ROIStats)
	rs.observe(athMul, event.DaysToAth)
	rs.writeBack(&ch.ROIStats)

	preV := ch.ExpectedROIOverall
	recordPredictionError(&ch.PredictionErrors, &ch.PredictionStats, domain.PredictionError{
		At:        event.TerminatedAt,
		SignalRef: event.SignalRef,
		CoinKey:   event.CoinKey,
		Predicted: preV,
		Actual:    athMul,
		DaysToAth: event.DaysToAth,
		Category:  event.Category,
	})
	ch.ExpectedROIOverall = tdUpdateWith(e.learn.Alpha, preV, athMul)

	ch.SumEntryConfidence += event.EntryConfidence
}

func (e *Engine) updateCoinPerformance(cp *domain.CoinPerformance, event domain.OutcomeEvent, athMul float64) {
	rs := rollingStatsFrom(&cp.ROIStats)
	rs.observe(athMul, event.DaysToAth)
	rs.writeBack(&cp.ROIStats)
	cp.Signals = append(cp.Signals, event.SignalRef)

	if !cp.Initialized {
		// First terminal signal for this (channel, coin): initialize, no
		// TD step, no prediction error.
		cp.ExpectedROICoin = athMul
		cp.Initialized = true
		return
	}

	preV := cp.ExpectedROICoin
	recordPredictionError(&cp.PredictionErrors, &cp.PredictionStats, domain.PredictionError{
		At:        event.TerminatedAt,
		SignalRef: event.SignalRef,
		CoinKey:   event.CoinKey,
		Predicted: preV,
		Actual:    athMul,
		DaysToAth: event.DaysToAth,
		Category:  event.Category,
	})
	cp.ExpectedROICoin = tdUpdateWith(e.learn.Alpha, preV, athMul)
}

// updateCrossChannel recomputes mean_roi_all_channels as the unweighted
// mean of channel-level coin averages
func (e *Engine) updateCrossChannel(cross *domain.CoinCrossChannel, ch *domain.ChannelReputation, channelID string, cp *domain.CoinPerformance) {
	if _, seen := cross.ChannelsSeen[channelID]; !seen {
		cross.ChannelsSeen[channelID] = struct{}{}
		cross.ChannelsSeenList = append(cross.ChannelsSeenList, channelID)
	}
	cross.SignalsTotal++

	cross.ChannelPerformance[channelID] = &domain.ChannelCoinStat{
		Signals: cp.Total,
		MeanROI: cp.ROIStats.MeanROI,
	}

	var sum float64
	var best, worst string
	var bestROI, worstROI float64
	first := true
	for id, stat := range cross.ChannelPerformance {
		sum += stat.MeanROI
		if first || stat.MeanROI > bestROI {
			bestROI, best = stat.MeanROI, id
		}
		if first || stat.MeanROI < worstROI {
			worstROI, worst = stat.MeanROI, id
		}
		first = false
	}
	cross.MeanROIAllChannels = sum / float64(len(cross.ChannelPerformance))
	cross.BestChannelForCoin = best
	cross.WorstChannelForCoin = worst
}

func (e *Engine) recomputeComposite(ch *domain.ChannelReputation) {
	meanConfidence := 0.0
	if ch.Total > 0 {
		meanConfidence = ch.SumEntryConfidence / float64(ch.Total)
	}

	score := compositeScoreWith(e.params, compositeInputs{
		winRate:             ch.WinRate,
		meanROI:             ch.MeanROI,
		sharpe:              ch.Sharpe,
		meanDaysToAth:       ch.MeanDaysToAth,
		meanEntryConfidence: meanConfidence,
	})

	ch.CompositeScore = score
	ch.ScoreSuppressed = scoreSuppressedWith(e.params, ch.Total)
	ch.Tier = classifyTierWith(e.params, score, ch.Total)
}

func mustFloat(d interface{ Float64() (float64, bool) }) float64 {
	f, _ := d.Float64()
	return f
}
