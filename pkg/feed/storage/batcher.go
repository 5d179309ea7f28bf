package storage

import (
	"context"
	"time"

	"github.com/JirA44/obelisk-dex-sub013/pkg/feed"
	"github.com/JirA44/obelisk-dex-sub013/pkg/logging"
)

// Batcher accumulates aggregated prices and flushes them to the store when
// the batch fills or the flush period elapses, whichever comes first. It
// implements the dispatch sink interface, so persistence never blocks the
// aggregation path.
type Batcher struct {
	store       *Store
	queue       chan feed.AggregatedPrice
	batchSize   int
	flushPeriod time.Duration
	logger      *logging.Logger
}

// NewBatcher creates a batcher in front of a store, using the batching
// knobs from the store configuration.
func NewBatcher(store *Store, cfg Config, logger *logging.Logger) *Batcher {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	flushPeriod := cfg.FlushPeriod
	if flushPeriod <= 0 {
		flushPeriod = 10 * time.Second
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}

	return &Batcher{
		store:       store,
		queue:       make(chan feed.AggregatedPrice, 1000),
		batchSize:   batchSize,
		flushPeriod: flushPeriod,
		logger:      logger,
	}
}

// Name identifies the batcher as a dispatch sink.
func (b *Batcher) Name() string { return "postgres" }

// Publish enqueues a price for persistence. When the queue is full the
// price is dropped with a warning; losing a historical row is preferable
// to stalling the dispatcher.
func (b *Batcher) Publish(_ context.Context, price feed.AggregatedPrice) error {
	select {
	case b.queue <- price:
	default:
		b.logger.Warn("Storage queue full, dropping price", "asset", price.Asset)
	}
	return nil
}

// Run accumulates and flushes batches until the context is cancelled. Any
// remaining buffered prices are flushed on shutdown.
func (b *Batcher) Run(ctx context.Context) {
	batch := make([]feed.AggregatedPrice, 0, b.batchSize)
	ticker := time.NewTicker(b.flushPeriod)
	defer ticker.Stop()

	b.logger.Info("Starting storage batcher",
		"batch_size", b.batchSize, "flush_period", b.flushPeriod)

	for {
		select {
		case price := <-b.queue:
			batch = append(batch, price)
			if len(batch) >= b.batchSize {
				b.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				b.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			if len(batch) > 0 {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				b.flush(flushCtx, batch)
				cancel()
			}
			b.logger.Info("Storage batcher stopped")
			return
		}
	}
}

func (b *Batcher) flush(ctx context.Context, batch []feed.AggregatedPrice) {
	start := time.Now()
	if err := b.store.StoreBatch(ctx, batch); err != nil {
		b.logger.Error("Failed to flush price batch", "count", len(batch), "error", err)
		return
	}
	b.logger.Debug("Flushed price batch",
		"count", len(batch), "duration", time.Since(start))
}
