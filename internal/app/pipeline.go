// Package app wires the live pipeline: message source in, mention
// extraction and scoring, signal registration on the Outcome Engine, and
// the scheduler loop that drives checkpoints to termination.
package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/scbot/internal/clock"
	"github.com/sawpanic/scbot/internal/domain"
	"github.com/sawpanic/scbot/internal/mention"
	"github.com/sawpanic/scbot/internal/outcome"
	"github.com/sawpanic/scbot/internal/reputation"
	"github.com/sawpanic/scbot/internal/scoring"
	"github.com/sawpanic/scbot/internal/source"
)

// tickInterval bounds how late a due checkpoint can realize; checkpoints
// due exactly at a tick realize on that tick.
const tickInterval = time.Minute

// Pipeline owns the live message flow for a set of channels.
type Pipeline struct {
	src       source.Source
	extractor *mention.Extractor
	scorer    *scoring.Scorer
	engine    *outcome.Engine
	rep       *reputation.Engine
	clock     clock.Clock
}

// NewPipeline constructs the live pipeline.
func NewPipeline(src source.Source, extractor *mention.Extractor, scorer *scoring.Scorer, engine *outcome.Engine, rep *reputation.Engine, c clock.Clock) *Pipeline {
	return &Pipeline{
		src:       src,
		extractor: extractor,
		scorer:    scorer,
		engine:    engine,
		rep:       rep,
		clock:     c,
	}
}

// HandleMessage runs one inbound message through extraction, scoring, and
// registration. A message without valid mentions is dropped silently.
func (p *Pipeline) HandleMessage(ctx context.Context, msg domain.Message) {
	mentions := p.extractor.Extract(msg)
	for _, m := range mentions {
		coinKey := m.CoinKey()
		p.rep.RecordMention(msg.ChannelID, coinKey, m.Symbol, m.Address)
		confidence := p.scorer.Score(m)

		s, err := p.engine.Register(ctx, msg.ID, msg.ChannelID, coinKey, m.Symbol, m.Address, m.Chain, m.TextPrice, m.TextPriceValid, time.Unix(msg.Timestamp, 0).UTC())
		if err != nil {
			log.Warn().Err(err).Str("channel", msg.ChannelID).Str("coin", coinKey).Msg("signal registration failed")
			continue
		}
		log.Info().
			Str("channel", msg.ChannelID).
			Str("coin", coinKey).
			Str("status", string(s.Status)).
			Float64("message_confidence", confidence).
			Str("entry_source", string(s.EntrySourceTag)).
			Msg("signal registered")
	}
}

// Run subscribes to channels and drives the scheduler until ctx is
// cancelled. Messages arrive on source goroutines and are funneled through
// a single queue so engine mutations stay single-writer.
func (p *Pipeline) Run(ctx context.Context, channels []string) error {
	if err := p.src.Connect(ctx); err != nil {
		return err
	}
	defer p.src.Disconnect()

	queue := make(chan domain.Message, 256)
	for _, ch := range channels {
		if err := p.src.Subscribe(ch, func(msg domain.Message) {
			select {
			case queue <- msg:
			case <-ctx.Done():
			}
		}); err != nil {
			return err
		}
		log.Info().Str("channel", ch).Msg("subscribed")
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-queue:
			p.HandleMessage(ctx, msg)
		case <-ticker.C:
			p.engine.Tick(ctx)
		}
	}
}
