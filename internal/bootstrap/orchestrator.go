// Package bootstrap replays a channel's full message history through the
// live extraction/pricing/outcome/reputation pipeline, terminating each
// signal synthetically from historical OHLC so reputation starts
// statistically meaningful instead of empty.
package bootstrap

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/sawpanic/scbot/internal/clock"
	"github.com/sawpanic/scbot/internal/domain"
	"github.com/sawpanic/scbot/internal/mention"
	"github.com/sawpanic/scbot/internal/outcome"
	"github.com/sawpanic/scbot/internal/pricing"
	"github.com/sawpanic/scbot/internal/scoring"
	"github.com/sawpanic/scbot/internal/source"
)

const (
	trackingWindow       = 30 * 24 * time.Hour
	anomalyAthMul        = 100.0
	anomalyWindow        = 24 * time.Hour
	insufficientDataRatio = 0.30
)

// Persister is the storage surface the orchestrator writes through.
type Persister interface {
	SaveSignal(s *domain.Signal) error
	SaveBootstrapProgress(p *domain.BootstrapProgress) error
	Progress(channelID string) (*domain.BootstrapProgress, bool)
}

// ReputationSink is the learning surface fed by replayed outcomes.
type ReputationSink interface {
	outcome.OutcomeSink
	outcome.Predictor
	RecordMention(channelID, coinKey, symbol, address string)
	SetInsufficientData(channelID string, flag bool)
}

// HistoryCounter is an optional message-source extension that reports a
// channel's total message count up front, so progress can show a
// denominator before the replay reaches the end.
type HistoryCounter interface {
	HistoryCount(ctx context.Context, channelID string) (int64, error)
}

// Orchestrator drives the historical replay for one channel at a time.
type Orchestrator struct {
	src       source.Source
	extractor *mention.Extractor
	scorer    *scoring.Scorer
	fabric    *pricing.Fabric
	sink      ReputationSink
	persist   Persister
	clock     clock.Clock

	batchSize   int
	parallelism int
	// ohlcBucket is the global token bucket over historical calls. When it
	// empties the orchestrator waits for refill; it never fails the run.
	ohlcBucket *rate.Limiter
}

// New constructs an Orchestrator. ohlcCapacity and ohlcRefillPerSec size
// the shared historical-call bucket; parallelism bounds in-flight tokens
// per channel.
func New(src source.Source, extractor *mention.Extractor, scorer *scoring.Scorer, fabric *pricing.Fabric, sink ReputationSink, persist Persister, c clock.Clock, batchSize, parallelism, ohlcCapacity int, ohlcRefillPerSec float64) *Orchestrator {
	return &Orchestrator{
		src:         src,
		extractor:   extractor,
		scorer:      scorer,
		fabric:      fabric,
		sink:        sink,
		persist:     persist,
		clock:       c,
		batchSize:   batchSize,
		parallelism: parallelism,
		ohlcBucket:  rate.NewLimiter(rate.Limit(ohlcRefillPerSec), ohlcCapacity),
	}
}

// tokenResult is one mention's fully-replayed outcome, applied to the
// reputation engine strictly in message order after its batch drains.
type tokenResult struct {
	messageID int64
	order     int
	signal    *domain.Signal
	event     *domain.OutcomeEvent
	apiCalls  int64
}

// Bootstrap replays channelID's history oldest-first in batches, resuming
// from the last persisted message id. Cancellation is honored between
// batches; a cancelled mid-batch message is re-processed after restart.
func (o *Orchestrator) Bootstrap(ctx context.Context, channelID string) (*domain.BootstrapProgress, error) {
	progress := &domain.BootstrapProgress{
		ChannelID: channelID,
		Status:    domain.BootstrapInProgress,
	}
	if prev, ok := o.persist.Progress(channelID); ok && prev.Status == domain.BootstrapInProgress {
		progress = prev
		log.Info().Str("channel", channelID).Int64("last_message_id", prev.LastMessageID).Msg("resuming bootstrap")
	}

	if counter, ok := o.src.(HistoryCounter); ok {
		if total, err := counter.HistoryCount(ctx, channelID); err == nil {
			progress.Total = total
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			o.saveProgress(progress)
			return progress, err
		}

		msgs, err := o.src.FetchHistory(ctx, channelID, progress.LastMessageID, o.batchSize)
		if err != nil {
			o.saveProgress(progress)
			return progress, fmt.Errorf("fetch history: %w", err)
		}
		if len(msgs) == 0 {
			break
		}

		results := o.processBatch(ctx, channelID, msgs)
		if err := ctx.Err(); err != nil {
			// Drop the interrupted batch so it is replayed whole on restart.
			o.saveProgress(progress)
			return progress, err
		}
		for _, r := range results {
			progress.APICallsSpent += r.apiCalls
			if r.signal == nil {
				continue
			}
			if err := o.persist.SaveSignal(r.signal); err != nil {
				log.Warn().Err(err).Str("signal", string(r.signal.ID)).Msg("signal save failed")
			}
			if r.event != nil {
				progress.Successes++
				if err := o.sink.Record(ctx, *r.event); err != nil {
					log.Warn().Err(err).Str("signal", string(r.signal.ID)).Msg("replayed outcome not applied")
				}
			} else {
				progress.Failures++
			}
		}

		progress.Processed += int64(len(msgs))
		progress.LastMessageID = msgs[len(msgs)-1].ID
		o.saveProgress(progress)
	}

	progress.Status = domain.BootstrapCompleted
	if progress.Processed > 0 && progress.DataUnavailableRatio() >= insufficientDataRatio {
		progress.Status = domain.BootstrapInsufficientData
		o.sink.SetInsufficientData(channelID, true)
	} else {
		o.sink.SetInsufficientData(channelID, false)
	}
	if progress.Total < progress.Processed {
		progress.Total = progress.Processed
	}
	o.saveProgress(progress)
	return progress, nil
}

// processBatch prices every mention in msgs with bounded parallelism, then
// returns the results ordered by message id so outcome application stays
// deterministic regardless of worker interleaving.
func (o *Orchestrator) processBatch(ctx context.Context, channelID string, msgs []domain.Message) []tokenResult {
	type job struct {
		order   int
		msg     domain.Message
		mention domain.TokenMention
	}

	var jobs []job
	for _, msg := range msgs {
		for _, m := range o.extractor.Extract(msg) {
			o.sink.RecordMention(channelID, m.CoinKey(), m.Symbol, m.Address)
			// Warm the channel's rolling engagement cohort so live scoring
			// after bootstrap normalizes against real history.
			o.scorer.Score(m)
			jobs = append(jobs, job{order: len(jobs), msg: msg, mention: m})
		}
	}

	results := make([]tokenResult, len(jobs))
	sem := make(chan struct{}, o.parallelism)
	var wg sync.WaitGroup
	for i, j := range jobs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, j job) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = o.replayToken(ctx, channelID, j.msg, j.mention)
			results[i].order = j.order
		}(i, j)
	}
	wg.Wait()

	sort.Slice(results, func(a, b int) bool {
		if results[a].messageID != results[b].messageID {
			return results[a].messageID < results[b].messageID
		}
		return results[a].order < results[b].order
	})
	return results
}

// replayToken resolves one mention's entry, pulls the full 30-day OHLC
// window, synthesizes all six checkpoints retrospectively, and terminates
// the signal as completed_historical.
func (o *Orchestrator) replayToken(ctx context.Context, channelID string, msg domain.Message, m domain.TokenMention) tokenResult {
	res := tokenResult{messageID: msg.ID}
	coinKey := m.CoinKey()
	msgTime := time.Unix(msg.Timestamp, 0).UTC()
	id := domain.NewSignalId(msg.ID, channelID, coinKey)

	if err := o.ohlcBucket.Wait(ctx); err != nil {
		return res
	}

	res.apiCalls++
	entry, err := o.fabric.ResolveEntry(ctx, coinKey, m.Chain, m.TextPrice, m.TextPriceValid, msgTime)
	if err != nil {
		res.signal = &domain.Signal{
			ID:        id,
			MessageID: msg.ID,
			ChannelID: channelID,
			CoinKey:   coinKey,
			Symbol:    m.Symbol,
			Address:   m.Address,
			Chain:     m.Chain,
			CreatedAt: msgTime,
			Status:    domain.StatusDataUnavailable,
		}
		return res
	}

	res.apiCalls++
	candles, err := o.fabric.GetOHLCWindow(ctx, coinKey, m.Chain, msgTime, msgTime.Add(trackingWindow), domain.GranularityHourly)
	if err != nil || len(candles) == 0 {
		res.signal = &domain.Signal{
			ID:        id,
			MessageID: msg.ID,
			ChannelID: channelID,
			CoinKey:   coinKey,
			Symbol:    m.Symbol,
			Address:   m.Address,
			Chain:     m.Chain,
			CreatedAt: msgTime,
			Status:    domain.StatusDataUnavailable,
		}
		return res
	}

	s := domain.NewInProgressSignal(id, msg.ID, channelID, coinKey, m.Symbol, m.Address, m.Chain, msgTime, entry.EntryPrice, entry.Confidence, entry.Source)
	s.PriceDiscrepancy = entry.PriceDiscrepancy
	s.LatePump = entry.LatePump
	s.PredictedROI = decimal.NewFromFloat(o.sink.PredictROI(channelID, coinKey))

	realizeFromCandles(s, candles)

	athMul, _ := s.AthMul().Float64()
	if athMul > anomalyAthMul && s.AthAt.Sub(s.CreatedAt) <= anomalyWindow {
		raw := s.AthPrice
		s.RawAthCandleHigh = &raw
		s.Suspicious = true
		s.AthPrice = s.EntryPrice.Mul(decimal.NewFromFloat(anomalyAthMul))
	}

	terminatedAt := msgTime.Add(trackingWindow)
	s.Status = domain.StatusCompletedHistoric
	s.TerminatedAt = &terminatedAt
	s.TerminatedReason = domain.ReasonHistoricalReplay

	finalMul := s.AthMul()
	event := domain.OutcomeEvent{
		SignalRef:    s.ID,
		ChannelID:    channelID,
		CoinKey:      coinKey,
		AthMul:       finalMul,
		DaysToAth:    s.AthAt.Sub(s.CreatedAt).Hours() / 24,
		Category:     domain.ClassifyCategory(mustFloat(finalMul)),
		IsWinner:     s.IsWinner(),
		CreatedAt:    s.CreatedAt,
		MessageID:    msg.ID,
		TerminatedAt: terminatedAt,
		Reason:       domain.ReasonHistoricalReplay,
	}
	event.EntryConfidence = mustFloat(s.EntryConfidence)

	res.signal = s
	res.event = &event
	return res
}

// realizeFromCandles synthesizes all six checkpoints from one OHLC window:
// each checkpoint takes the close of the candle whose open time is nearest
// its due time (when the window has a gap at the due time, the nearest
// candle on either side fills it), and the ATH is the maximum high across
// the whole window.
func realizeFromCandles(s *domain.Signal, candles []domain.Candle) {
	for _, label := range domain.CheckpointOrder {
		cp := s.Checkpoints[label]
		candle, ok := nearestCandle(candles, cp.DueAt)
		if !ok {
			cp.Status = domain.CheckpointMissing
			continue
		}
		cp.Status = domain.CheckpointRealized
		realized := candle.OpenTime
		cp.RealizedAt = &realized
		price := candle.Close
		cp.Price = &price
	}

	for _, c := range candles {
		if c.High.GreaterThan(s.AthPrice) {
			s.AthPrice = c.High
			s.AthAt = c.OpenTime
		}
	}
}

// nearestCandle picks the candle whose open time is closest to due, before
// or after it. When two candles are equally close, the one that comes
// first in candles wins (the earlier one, for an oldest-first window).
func nearestCandle(candles []domain.Candle, due time.Time) (domain.Candle, bool) {
	var best domain.Candle
	bestDelta := time.Duration(-1)
	for _, c := range candles {
		delta := due.Sub(c.OpenTime)
		if delta < 0 {
			delta = -delta
		}
		if bestDelta < 0 || delta < bestDelta {
			best, bestDelta = c, delta
		}
	}
	return best, bestDelta >= 0
}

func (o *Orchestrator) saveProgress(p *domain.BootstrapProgress) {
	p.UpdatedAt = o.clock.Now()
	if err := o.persist.SaveBootstrapProgress(p); err != nil {
		log.Warn().Err(err).Str("channel", p.ChannelID).Msg("bootstrap progress save failed")
	}
}

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
