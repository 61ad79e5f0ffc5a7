package archive

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tokenwatch/tokenwatch/internal/domain"
)

// BatchWriter batches accepted snapshots and flushes them to ClickHouse
// periodically or when the batch is full.
type BatchWriter struct {
	client        *Client
	batchSize     int
	flushInterval time.Duration

	mu         sync.Mutex
	buf        []*domain.ListingSnapshot
	closed     bool
	flushCount int64
	errorCount int64

	now func() time.Time
}

// NewBatchWriter creates a batch writer that flushes on size or interval.
func NewBatchWriter(client *Client, batchSize int, flushInterval time.Duration) *BatchWriter {
	if batchSize <= 0 {
		batchSize = 500
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}

	return &BatchWriter{
		client:        client,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		buf:           make([]*domain.ListingSnapshot, 0, batchSize),
		now:           time.Now,
	}
}

// Record adds a snapshot to the batch buffer.
func (w *BatchWriter) Record(ctx context.Context, snap *domain.ListingSnapshot) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return fmt.Errorf("writer is closed")
	}

	cp := *snap
	w.buf = append(w.buf, &cp)
	full := len(w.buf) >= w.batchSize
	w.mu.Unlock()

	if full {
		return w.Flush(ctx)
	}
	return nil
}

// Start begins the background flush loop. Blocks until context is cancelled.
func (w *BatchWriter) Start(ctx context.Context) {
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	log.Info().
		Int("batch_size", w.batchSize).
		Dur("flush_interval", w.flushInterval).
		Msg("archive: batch writer started")

	for {
		select {
		case <-ctx.Done():
			// Final flush on shutdown.
			if err := w.Flush(context.Background()); err != nil {
				log.Error().Err(err).Msg("archive: final flush failed")
			}
			return
		case <-ticker.C:
			if err := w.Flush(ctx); err != nil {
				log.Error().Err(err).Msg("archive: periodic flush failed")
			}
		}
	}
}

// Flush writes all buffered snapshots to ClickHouse.
func (w *BatchWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	snaps := w.buf
	w.buf = make([]*domain.ListingSnapshot, 0, w.batchSize)
	w.mu.Unlock()

	if len(snaps) == 0 {
		return nil
	}

	if err := w.flushSnapshots(ctx, snaps); err != nil {
		w.mu.Lock()
		w.errorCount++
		w.mu.Unlock()
		log.Error().Err(err).Int("count", len(snaps)).Msg("archive: flush failed")
		return err
	}

	w.mu.Lock()
	w.flushCount++
	flushes := w.flushCount
	w.mu.Unlock()

	log.Debug().
		Int("snapshots", len(snaps)).
		Int64("total_flushes", flushes).
		Msg("archive: batch flushed")

	return nil
}

func (w *BatchWriter) flushSnapshots(ctx context.Context, snaps []*domain.ListingSnapshot) error {
	batch, err := w.client.Conn().PrepareBatch(ctx,
		"INSERT INTO token_snapshots (pair_address, base_token_address, base_token_name, chain, exchange, price, liquidity_usd, volume_24h_usd, status, pair_created_at, observed_at)")
	if err != nil {
		return fmt.Errorf("prepare snapshot batch: %w", err)
	}

	for _, s := range snaps {
		observedAt := s.UpdatedAt
		if observedAt.IsZero() {
			observedAt = w.now()
		}
		if err := batch.Append(
			s.PairAddress,
			s.BaseTokenAddress,
			s.BaseTokenName,
			s.Chain,
			s.Exchange,
			s.Price.InexactFloat64(),
			s.Liquidity.InexactFloat64(),
			s.Volume24h.InexactFloat64(),
			string(s.Status),
			s.CreatedAt,
			observedAt,
		); err != nil {
			return fmt.Errorf("append snapshot: %w", err)
		}
	}

	return batch.Send()
}

// Close flushes remaining snapshots and marks the writer as closed.
func (w *BatchWriter) Close() error {
	err := w.Flush(context.Background())

	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	log.Info().
		Int64("total_flushes", w.flushCount).
		Int64("errors", w.errorCount).
		Msg("archive: batch writer closed")
	return err
}

// Stats returns writer statistics.
func (w *BatchWriter) Stats() (flushCount, errorCount int64, pending int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushCount, w.errorCount, len(w.buf)
}
