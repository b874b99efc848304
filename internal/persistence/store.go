// Package persistence owns the four on-disk stores: signals,
// channel-reputation, cross-channel coin aggregates, and bootstrap
// progress. Each store is one JSON file, read once at startup and written
// atomically (temp file, fsync, rename) on debounced mutation batches. A
// corrupt store is backed up to .quarantine and re-initialized empty
// without touching the other three.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	scio "github.com/sawpanic/scbot/internal/io"

	"github.com/sawpanic/scbot/internal/domain"
)

const (
	signalsFile   = "signals.json"
	channelsFile  = "channel_reputation.json"
	coinsFile     = "coin_cross_channel.json"
	progressFile  = "bootstrap_progress.json"
	quarantineExt = ".quarantine"
)

type storeName string

const (
	storeSignals  storeName = "signals"
	storeChannels storeName = "channel_reputation"
	storeCoins    storeName = "coin_cross_channel"
	storeProgress storeName = "bootstrap_progress"
)

// Store is the persistence layer. All mutations are staged in memory and
// flushed by a single background writer, so concurrent writes to the same
// store file are serialized by construction.
type Store struct {
	dir      string
	debounce time.Duration

	mu       sync.Mutex
	signals  map[domain.SignalId]*domain.Signal
	channels map[string]*domain.ChannelReputation
	coins    map[string]*domain.CoinCrossChannel
	progress map[string]*domain.BootstrapProgress
	dirty    map[storeName]bool

	// Quarantined lists stores that failed to load and were re-initialized
	// empty. If it holds all four, the hosting process treats persistence
	// as unrecoverable.
	Quarantined []string

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Open loads all four stores from dir, quarantining any that fail to
// parse, and starts the debounced background flusher.
func Open(dir string, debounce time.Duration) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store dir: %w", err)
	}

	s := &Store{
		dir:      dir,
		debounce: debounce,
		signals:  make(map[domain.SignalId]*domain.Signal),
		channels: make(map[string]*domain.ChannelReputation),
		coins:    make(map[string]*domain.CoinCrossChannel),
		progress: make(map[string]*domain.BootstrapProgress),
		dirty:    make(map[storeName]bool),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	loadStore(s, signalsFile, storeSignals, &s.signals)
	loadStore(s, channelsFile, storeChannels, &s.channels)
	loadStore(s, coinsFile, storeCoins, &s.coins)
	loadStore(s, progressFile, storeProgress, &s.progress)

	go s.flushLoop()
	return s, nil
}

// AllQuarantined reports whether every store failed to load, the condition
// the hosting process maps to its unrecoverable-corruption exit code.
func (s *Store) AllQuarantined() bool {
	return len(s.Quarantined) == 4
}

// loadStore reads one JSON store into target, quarantining it on parse
// failure. A missing file is a fresh start, not an error.
func loadStore[M any](s *Store, file string, name storeName, target *M) {
	path := filepath.Join(s.dir, file)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return
	}
	if err == nil {
		err = json.Unmarshal(data, target)
		if err == nil {
			return
		}
	}

	log.Error().Err(err).Str("store", string(name)).Msg("store corrupt, quarantining and re-initializing")
	if qErr := os.Rename(path, path+quarantineExt); qErr != nil {
		log.Error().Err(qErr).Str("store", string(name)).Msg("quarantine rename failed")
	}
	s.Quarantined = append(s.Quarantined, string(name))
}

// SaveSignal stages a signal mutation for the next flush.
func (s *Store) SaveSignal(sig *domain.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals[sig.ID] = sig
	s.dirty[storeSignals] = true
	return nil
}

// SaveChannelReputation stages a channel-reputation mutation for the next flush.
func (s *Store) SaveChannelReputation(r *domain.ChannelReputation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[r.ChannelID] = r
	s.dirty[storeChannels] = true
	return nil
}

// SaveCoinCrossChannel stages a cross-channel coin mutation for the next flush.
func (s *Store) SaveCoinCrossChannel(c *domain.CoinCrossChannel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coins[c.CoinKey] = c
	s.dirty[storeCoins] = true
	return nil
}

// SaveBootstrapProgress stages a bootstrap-progress mutation for the next flush.
func (s *Store) SaveBootstrapProgress(p *domain.BootstrapProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[p.ChannelID] = p
	s.dirty[storeProgress] = true
	return nil
}

// Signals returns a snapshot copy of the signal store.
func (s *Store) Signals() map[domain.SignalId]*domain.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.SignalId]*domain.Signal, len(s.signals))
	for k, v := range s.signals {
		out[k] = v
	}
	return out
}

// Channels returns a snapshot copy of the channel-reputation store.
func (s *Store) Channels() map[string]*domain.ChannelReputation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*domain.ChannelReputation, len(s.channels))
	for k, v := range s.channels {
		out[k] = v
	}
	return out
}

// Coins returns a snapshot copy of the cross-channel coin store.
func (s *Store) Coins() map[string]*domain.CoinCrossChannel {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*domain.CoinCrossChannel, len(s.coins))
	for k, v := range s.coins {
		out[k] = v
	}
	return out
}

// Progress returns the bootstrap progress for channelID, if any.
func (s *Store) Progress(channelID string) (*domain.BootstrapProgress, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.progress[channelID]
	return p, ok
}

// Flush writes every dirty store to disk immediately.
func (s *Store) Flush() error {
	s.mu.Lock()
	type pending struct {
		file string
		name storeName
		data any
	}
	var work []pending
	if s.dirty[storeSignals] {
		work = append(work, pending{signalsFile, storeSignals, copyMap(s.signals)})
	}
	if s.dirty[storeChannels] {
		work = append(work, pending{channelsFile, storeChannels, copyMap(s.channels)})
	}
	if s.dirty[storeCoins] {
		work = append(work, pending{coinsFile, storeCoins, copyMap(s.coins)})
	}
	if s.dirty[storeProgress] {
		work = append(work, pending{progressFile, storeProgress, copyMap(s.progress)})
	}
	s.dirty = make(map[storeName]bool)
	s.mu.Unlock()

	for _, w := range work {
		if err := scio.WriteJSONAtomic(filepath.Join(s.dir, w.file), w.data); err != nil {
			s.mu.Lock()
			s.dirty[w.name] = true
			s.mu.Unlock()
			return fmt.Errorf("failed to flush %s: %w", w.name, err)
		}
	}
	return nil
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *Store) flushLoop() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.debounce)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.Flush(); err != nil {
				log.Error().Err(err).Msg("debounced store flush failed")
			}
		case <-s.stopCh:
			return
		}
	}
}

// Close stops the background flusher and performs a final flush. It is
// safe to call more than once.
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
	return s.Flush()
}

// ListSignals returns read-only signal views matching filter, most recent
// first.
func (s *Store) ListSignals(filter domain.SignalFilter) []domain.SignalView {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.SignalView
	for _, sig := range s.signals {
		if filter.ChannelID != "" && sig.ChannelID != filter.ChannelID {
			continue
		}
		if filter.CoinKey != "" && sig.CoinKey != filter.CoinKey {
			continue
		}
		if filter.Status != "" && sig.Status != filter.Status {
			continue
		}
		out = append(out, signalView(sig))
	}
	sortSignalViews(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

func signalView(sig *domain.Signal) domain.SignalView {
	entry, _ := sig.EntryPrice.Float64()
	ath, _ := sig.AthPrice.Float64()
	mul, _ := sig.AthMul().Float64()
	return domain.SignalView{
		Version:          1,
		ID:               sig.ID,
		ChannelID:        sig.ChannelID,
		CoinKey:          sig.CoinKey,
		Status:           sig.Status,
		CreatedAt:        sig.CreatedAt,
		EntryPrice:       entry,
		AthPrice:         ath,
		AthMul:           mul,
		TerminatedAt:     sig.TerminatedAt,
		TerminatedReason: sig.TerminatedReason,
	}
}

func sortSignalViews(views []domain.SignalView) {
	sort.Slice(views, func(i, j int) bool {
		return views[i].CreatedAt.After(views[j].CreatedAt)
	})
}
