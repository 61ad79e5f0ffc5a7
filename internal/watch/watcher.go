package watch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tokenwatch/tokenwatch/internal/dexscreener"
	"github.com/tokenwatch/tokenwatch/internal/domain"
	"github.com/tokenwatch/tokenwatch/internal/observability"
	"github.com/tokenwatch/tokenwatch/internal/pipeline"
	"github.com/tokenwatch/tokenwatch/internal/storage"
)

// ---------------------------------------------------------------------------
// Watcher — polls the market feed for tracked tokens and drives the pipeline
// ---------------------------------------------------------------------------

// WatcherConfig configures the polling loop.
type WatcherConfig struct {
	// Poll interval between full watchlist sweeps.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// DefaultWatcherConfig returns sensible defaults.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		PollInterval: 60 * time.Second,
	}
}

// Watchlist supplies the token addresses to monitor on each sweep.
type Watchlist interface {
	Addresses(ctx context.Context) ([]string, error)
}

// StaticWatchlist is a fixed, config-driven watchlist.
type StaticWatchlist []string

func (w StaticWatchlist) Addresses(_ context.Context) ([]string, error) {
	return w, nil
}

// MarketFeed fetches the current listing state for a token address.
type MarketFeed interface {
	Fetch(ctx context.Context, tokenAddress string) (domain.RawListing, error)
}

// Evaluator decides whether an observed listing is worth tracking.
type Evaluator interface {
	Evaluate(ctx context.Context, raw domain.RawListing) pipeline.Decision
}

// Classifier derives a lifecycle status from the current and prior snapshots.
type Classifier interface {
	Classify(ctx context.Context, current, previous *domain.ListingSnapshot) domain.Status
}

// Dispatcher reacts to status transitions, typically by placing trades.
type Dispatcher interface {
	Dispatch(ctx context.Context, previous, next domain.Status, tokenAddress string)
}

// ArchiveSink receives every accepted snapshot for long-term analytics.
// A nil sink disables archiving.
type ArchiveSink interface {
	Record(ctx context.Context, snap *domain.ListingSnapshot) error
}

// Watcher runs the evaluate-classify-dispatch cycle for every watched token.
//
// Addresses are processed sequentially within a sweep; a failure for one
// address never blocks or aborts the rest of the sweep.
type Watcher struct {
	config     WatcherConfig
	watchlist  Watchlist
	feed       MarketFeed
	evaluator  Evaluator
	classifier Classifier
	dispatcher Dispatcher
	snapshots  storage.SnapshotStore
	archive    ArchiveSink

	running atomic.Bool

	// Stats.
	sweepsDone     atomic.Int64
	fetchErrors    atomic.Int64
	tokensAccepted atomic.Int64

	sweeps    *observability.Counter
	errors    *observability.Counter
	accepts   *observability.Counter
	listSize  *observability.Gauge
}

// NewWatcher creates a watcher. The archive sink may be nil.
func NewWatcher(
	config WatcherConfig,
	watchlist Watchlist,
	feed MarketFeed,
	evaluator Evaluator,
	classifier Classifier,
	dispatcher Dispatcher,
	snapshots storage.SnapshotStore,
	archive ArchiveSink,
	registry *observability.Registry,
) *Watcher {
	return &Watcher{
		config:     config,
		watchlist:  watchlist,
		feed:       feed,
		evaluator:  evaluator,
		classifier: classifier,
		dispatcher: dispatcher,
		snapshots:  snapshots,
		archive:    archive,
		sweeps:     registry.NewCounter("tokenwatch_watch_sweeps_total", "Completed watchlist sweeps", nil),
		errors:     registry.NewCounter("tokenwatch_watch_errors_total", "Per-address failures during sweeps", nil),
		accepts:    registry.NewCounter("tokenwatch_watch_accepted_total", "Tokens accepted during sweeps", nil),
		listSize:   registry.NewGauge("tokenwatch_watchlist_size", "Addresses in the current watchlist", nil),
	}
}

// Start runs the polling loop. Blocks until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	if w.running.Load() {
		return fmt.Errorf("watcher already running")
	}
	w.running.Store(true)
	defer w.running.Store(false)

	log.Info().
		Dur("poll_interval", w.config.PollInterval).
		Msg("watch: starting token monitor")

	// Run one sweep immediately; tickers fire only after the first interval.
	w.sweep(ctx)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("watch: stopped")
			return nil
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep processes every watchlist address once.
func (w *Watcher) sweep(ctx context.Context) {
	addrs, err := w.watchlist.Addresses(ctx)
	if err != nil {
		w.errors.Inc()
		log.Error().Err(err).Msg("watch: watchlist unavailable")
		return
	}
	w.listSize.Set(float64(len(addrs)))

	for _, addr := range addrs {
		if ctx.Err() != nil {
			return
		}
		if err := w.processToken(ctx, addr); err != nil {
			w.fetchErrors.Add(1)
			w.errors.Inc()
			log.Error().Err(err).Str("token", addr).Msg("watch: token cycle failed")
		}
	}

	w.sweepsDone.Add(1)
	w.sweeps.Inc()
}

// processToken runs one fetch-evaluate-classify-dispatch cycle for a token.
func (w *Watcher) processToken(ctx context.Context, tokenAddress string) error {
	raw, err := w.feed.Fetch(ctx, tokenAddress)
	if err != nil {
		if errors.Is(err, dexscreener.ErrNoPairs) {
			log.Debug().Str("token", tokenAddress).Msg("watch: no pairs listed yet")
			return nil
		}
		return fmt.Errorf("fetch: %w", err)
	}

	decision := w.evaluator.Evaluate(ctx, raw)
	if !decision.Accepted {
		log.Debug().
			Str("token", tokenAddress).
			Str("step", string(decision.Step)).
			Str("reason", decision.Reason).
			Msg("watch: token rejected")
		return nil
	}

	previous, err := w.snapshots.Get(ctx, raw.PairAddress)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("load prior snapshot: %w", err)
	}

	snap := domain.SnapshotFromRaw(raw)
	status := w.classifier.Classify(ctx, &snap, previous)

	// A classification, once made, sticks until superseded by a new one.
	prevStatus := domain.StatusNone
	if previous != nil {
		prevStatus = previous.Status
	}
	if status == domain.StatusNone {
		status = prevStatus
	}
	snap.Status = status

	if err := w.snapshots.Upsert(ctx, &snap); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}

	w.tokensAccepted.Add(1)
	w.accepts.Inc()

	log.Info().
		Str("token", tokenAddress).
		Str("pair", snap.PairAddress).
		Str("price", snap.Price.String()).
		Str("liquidity", snap.Liquidity.String()).
		Str("status", string(snap.Status)).
		Msg("watch: snapshot recorded")

	w.dispatcher.Dispatch(ctx, prevStatus, status, raw.BaseTokenAddress)

	if w.archive != nil {
		if err := w.archive.Record(ctx, &snap); err != nil {
			// Archiving is best-effort; the snapshot store already holds the state.
			log.Warn().Err(err).Str("pair", snap.PairAddress).Msg("watch: archive write failed")
		}
	}

	return nil
}

// Stats returns watcher statistics.
type WatcherStats struct {
	SweepsDone     int64 `json:"sweeps_done"`
	FetchErrors    int64 `json:"fetch_errors"`
	TokensAccepted int64 `json:"tokens_accepted"`
}

func (w *Watcher) Stats() WatcherStats {
	return WatcherStats{
		SweepsDone:     w.sweepsDone.Load(),
		FetchErrors:    w.fetchErrors.Load(),
		TokensAccepted: w.tokensAccepted.Load(),
	}
}
