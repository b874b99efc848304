package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/scbot/internal/cache"
	"github.com/sawpanic/scbot/internal/clock"
	"github.com/sawpanic/scbot/internal/domain"
	"github.com/sawpanic/scbot/internal/mention"
	"github.com/sawpanic/scbot/internal/net/budget"
	"github.com/sawpanic/scbot/internal/net/ratelimit"
	"github.com/sawpanic/scbot/internal/pricing"
	"github.com/sawpanic/scbot/internal/reputation"
	"github.com/sawpanic/scbot/internal/scoring"
	"github.com/sawpanic/scbot/internal/source"
)

var t0 = time.Date(2025, 5, 1, 14, 0, 0, 0, time.UTC)

// histProvider serves historical spot quotes and synthetic OHLC windows.
type histProvider struct {
	histPrice decimal.Decimal
	dayOpen   decimal.Decimal
	hourly    func(from, to time.Time) []domain.Candle
	failAll   bool
}

func (p *histProvider) Name() string { return "hist" }
func (p *histProvider) Host() string { return "hist.example" }
func (p *histProvider) Capabilities() map[pricing.Capability]bool {
	return map[pricing.Capability]bool{pricing.CapSpot: true, pricing.CapAt: true, pricing.CapOHLC: true}
}
func (p *histProvider) FetchSpot(ctx context.Context, coinKey string, chain domain.Chain) (domain.PriceQuote, error) {
	return domain.PriceQuote{}, errors.New("spot unused in replay")
}
func (p *histProvider) FetchAt(ctx context.Context, coinKey string, chain domain.Chain, at time.Time) (domain.PriceQuote, error) {
	if p.failAll {
		return domain.PriceQuote{}, errors.New("down")
	}
	return domain.PriceQuote{PriceUSD: p.histPrice, Source: domain.SourceHistoricalOHLC, AsOf: at}, nil
}
func (p *histProvider) FetchOHLC(ctx context.Context, coinKey string, chain domain.Chain, from, to time.Time, g domain.Granularity) ([]domain.Candle, error) {
	if p.failAll {
		return nil, errors.New("down")
	}
	if g == domain.GranularityDaily {
		return []domain.Candle{{OpenTime: from, Open: p.dayOpen, High: p.dayOpen, Low: p.dayOpen, Close: p.dayOpen}}, nil
	}
	return p.hourly(from, to), nil
}

type memPersist struct {
	mu       sync.Mutex
	signals  map[domain.SignalId]*domain.Signal
	progress map[string]*domain.BootstrapProgress
	saves    int
}

func newMemPersist() *memPersist {
	return &memPersist{
		signals:  make(map[domain.SignalId]*domain.Signal),
		progress: make(map[string]*domain.BootstrapProgress),
	}
}

func (m *memPersist) SaveSignal(s *domain.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals[s.ID] = s
	return nil
}

func (m *memPersist) SaveBootstrapProgress(p *domain.BootstrapProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.progress[p.ChannelID] = &cp
	m.saves++
	return nil
}

func (m *memPersist) Progress(channelID string) (*domain.BootstrapProgress, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.progress[channelID]
	return p, ok
}

func newTestOrchestrator(t *testing.T, src source.Source, p *histProvider, rep *reputation.Engine, persist Persister, batchSize int) *Orchestrator {
	t.Helper()
	rl := ratelimit.NewManager()
	bm := budget.NewManager()
	rl.AddProvider(p.Name(), 1000, 1000)
	bm.AddProvider(p.Name(), 1_000_000, 0, 0.99)
	fabric := pricing.NewFabric(
		map[domain.Chain][]pricing.Provider{domain.ChainOther: {p}},
		cache.NewHotCache(0), cache.NewHistoricalCache(100),
		rl, bm, pricing.NewBreakerSet(5, time.Minute), 0,
	)
	return New(src, mention.NewExtractor(mention.NewVocabulary()), scoring.NewScorer(),
		fabric, rep, persist, clock.NewFakeClock(t0.Add(60*24*time.Hour)), batchSize, 5, 1000, 1000)
}

// checkpointHighs places a candle at each of the six checkpoint offsets
// with the given highs, closing at the same value.
func checkpointHighs(highs [6]string) func(from, to time.Time) []domain.Candle {
	offsets := []time.Duration{time.Hour, 4 * time.Hour, 24 * time.Hour, 3 * 24 * time.Hour, 7 * 24 * time.Hour, 30 * 24 * time.Hour}
	return func(from, to time.Time) []domain.Candle {
		var out []domain.Candle
		for i, off := range offsets {
			v := decimal.RequireFromString(highs[i])
			out = append(out, domain.Candle{OpenTime: from.Add(off), Open: v, High: v, Low: v, Close: v})
		}
		return out
	}
}

func TestBootstrap_CleanWinnerReplay(t *testing.T) {
	src := source.NewMemorySource()
	src.Seed("C1", []domain.Message{{
		ID: 1, ChannelID: "C1", Timestamp: t0.Unix(),
		Text: "Bought $AVICI at $1.47, looking strong",
	}})

	provider := &histProvider{
		histPrice: decimal.RequireFromString("1.47"),
		dayOpen:   decimal.RequireFromString("1.40"),
		hourly:    checkpointHighs([6]string{"1.52", "1.89", "4.78", "3.20", "2.10", "1.95"}),
	}
	rep := reputation.NewEngine(nil)
	persist := newMemPersist()
	o := newTestOrchestrator(t, src, provider, rep, persist, 100)

	progress, err := o.Bootstrap(context.Background(), "C1")
	require.NoError(t, err)
	assert.Equal(t, domain.BootstrapCompleted, progress.Status)
	assert.Equal(t, int64(1), progress.Successes)
	assert.Equal(t, int64(0), progress.Failures)

	id := domain.NewSignalId(1, "C1", "AVICI")
	sig := persist.signals[id]
	require.NotNil(t, sig)
	assert.Equal(t, domain.StatusCompletedHistoric, sig.Status)
	assert.Equal(t, domain.ReasonHistoricalReplay, sig.TerminatedReason)
	assert.Equal(t, domain.EntryMessageText, sig.EntrySourceTag)
	assert.False(t, sig.LatePump)

	mul, _ := sig.AthMul().Float64()
	assert.InDelta(t, 3.252, mul, 0.001)
	assert.Equal(t, 24*time.Hour, sig.AthAt.Sub(sig.CreatedAt))
	assert.True(t, sig.IsWinner())

	for _, label := range domain.CheckpointOrder {
		cp := sig.Checkpoints[label]
		require.Equal(t, domain.CheckpointRealized, cp.Status, "checkpoint %s", label)
		require.NotNil(t, cp.Price)
		assert.True(t, cp.Price.IsPositive())
	}

	ch, ok := rep.Channel("C1")
	require.True(t, ok)
	assert.Equal(t, int64(1), ch.Total)
	assert.InDelta(t, 3.252, ch.MeanROI, 0.001)
	assert.Equal(t, 1.0, ch.WinRate)
	assert.Equal(t, domain.TierUnproven, ch.Tier)
	assert.True(t, ch.ScoreSuppressed)
}

// flakySource fails every FetchHistory after the first, simulating a crash
// mid-bootstrap so the next run has to resume from persisted progress.
type flakySource struct {
	*source.MemorySource
	calls int
}

func (f *flakySource) FetchHistory(ctx context.Context, channelID string, fromID int64, limit int) ([]domain.Message, error) {
	f.calls++
	if f.calls > 1 {
		return nil, errors.New("connection lost")
	}
	return f.MemorySource.FetchHistory(ctx, channelID, fromID, limit)
}

func TestBootstrap_ResumesFromLastMessageID(t *testing.T) {
	mem := source.NewMemorySource()
	var msgs []domain.Message
	for i := int64(1); i <= 4; i++ {
		msgs = append(msgs, domain.Message{
			ID: i, ChannelID: "C1", Timestamp: t0.Add(time.Duration(i) * time.Hour).Unix(),
			Text: "entry $TOK at $2.00",
		})
	}
	mem.Seed("C1", msgs)

	provider := &histProvider{
		histPrice: decimal.RequireFromString("2.00"),
		dayOpen:   decimal.RequireFromString("2.00"),
		hourly:    checkpointHighs([6]string{"2.1", "2.2", "2.5", "2.4", "2.3", "2.2"}),
	}
	rep := reputation.NewEngine(nil)
	persist := newMemPersist()

	flaky := &flakySource{MemorySource: mem}
	o := newTestOrchestrator(t, flaky, provider, rep, persist, 2)
	_, err := o.Bootstrap(context.Background(), "C1")
	require.Error(t, err)

	p, ok := persist.Progress("C1")
	require.True(t, ok)
	assert.Equal(t, int64(2), p.Processed)
	assert.Equal(t, int64(2), p.LastMessageID)
	assert.Equal(t, domain.BootstrapInProgress, p.Status)

	// Restart: a fresh orchestrator resumes at message 3.
	o2 := newTestOrchestrator(t, mem, provider, rep, persist, 2)
	progress, err := o2.Bootstrap(context.Background(), "C1")
	require.NoError(t, err)
	assert.Equal(t, domain.BootstrapCompleted, progress.Status)
	assert.Equal(t, int64(4), progress.Processed)
	assert.Equal(t, int64(4), progress.Successes)

	ch, _ := rep.Channel("C1")
	assert.Equal(t, int64(4), ch.Total) // each message applied exactly once
}

func TestBootstrap_ReplayIsByteIdentical(t *testing.T) {
	seed := func() (*source.MemorySource, *histProvider) {
		src := source.NewMemorySource()
		var msgs []domain.Message
		for i := int64(1); i <= 5; i++ {
			msgs = append(msgs, domain.Message{
				ID: i, ChannelID: "C1", Timestamp: t0.Add(time.Duration(i) * time.Hour).Unix(),
				Text: "entry $TOK at $2.00",
			})
		}
		src.Seed("C1", msgs)
		return src, &histProvider{
			histPrice: decimal.RequireFromString("2.00"),
			dayOpen:   decimal.RequireFromString("2.00"),
			hourly:    checkpointHighs([6]string{"2.1", "2.2", "2.5", "2.4", "2.3", "2.2"}),
		}
	}

	run := func() []byte {
		src, provider := seed()
		rep := reputation.NewEngine(nil)
		o := newTestOrchestrator(t, src, provider, rep, newMemPersist(), 2)
		_, err := o.Bootstrap(context.Background(), "C1")
		require.NoError(t, err)
		ch, ok := rep.Channel("C1")
		require.True(t, ok)
		raw, err := json.Marshal(ch)
		require.NoError(t, err)
		return raw
	}

	assert.Equal(t, string(run()), string(run()))
}

func TestBootstrap_AnomalyClampedAndPreserved(t *testing.T) {
	src := source.NewMemorySource()
	src.Seed("C1", []domain.Message{{
		ID: 1, ChannelID: "C1", Timestamp: t0.Unix(),
		Text: "entry $TOK at $1.00",
	}})

	// A 500x candle within the first 24 hours.
	provider := &histProvider{
		histPrice: decimal.NewFromInt(1),
		dayOpen:   decimal.NewFromInt(1),
		hourly:    checkpointHighs([6]string{"500", "2", "2", "2", "2", "2"}),
	}
	rep := reputation.NewEngine(nil)
	persist := newMemPersist()
	o := newTestOrchestrator(t, src, provider, rep, persist, 100)

	_, err := o.Bootstrap(context.Background(), "C1")
	require.NoError(t, err)

	sig := persist.signals[domain.NewSignalId(1, "C1", "TOK")]
	require.NotNil(t, sig)
	assert.True(t, sig.Suspicious)
	require.NotNil(t, sig.RawAthCandleHigh)
	assert.True(t, sig.RawAthCandleHigh.Equal(decimal.NewFromInt(500)))
	mul, _ := sig.AthMul().Float64()
	assert.Equal(t, 100.0, mul)
}

func TestBootstrap_InsufficientDataGate(t *testing.T) {
	src := source.NewMemorySource()
	var msgs []domain.Message
	for i := int64(1); i <= 3; i++ {
		msgs = append(msgs, domain.Message{
			ID: i, ChannelID: "C1", Timestamp: t0.Unix(),
			Text: "entry $TOK at $1.00",
		})
	}
	src.Seed("C1", msgs)

	provider := &histProvider{failAll: true}
	rep := reputation.NewEngine(nil)
	persist := newMemPersist()
	o := newTestOrchestrator(t, src, provider, rep, persist, 100)

	progress, err := o.Bootstrap(context.Background(), "C1")
	require.NoError(t, err)
	assert.Equal(t, domain.BootstrapInsufficientData, progress.Status)
	assert.Equal(t, int64(3), progress.Failures)

	ch, ok := rep.Channel("C1")
	require.True(t, ok)
	assert.True(t, ch.InsufficientData)

	for _, sig := range persist.signals {
		assert.Equal(t, domain.StatusDataUnavailable, sig.Status)
	}
}
