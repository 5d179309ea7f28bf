package feed

import (
	"context"

	"github.com/JirA44/obelisk-dex-sub013/pkg/logging"
)

// Sink receives consensus price emissions.
type Sink interface {
	Name() string
	Publish(ctx context.Context, price AggregatedPrice) error
}

// Dispatcher decouples downstream delivery (hub fan-out, cache, persistence)
// from the ingestion path: the engine enqueues without blocking, a single
// consumer goroutine feeds every sink in emission order, which preserves the
// per-asset ordering guarantee end to end.
type Dispatcher struct {
	queue  chan AggregatedPrice
	sinks  []Sink
	logger *logging.Logger
}

// NewDispatcher creates a dispatcher with a bounded queue.
func NewDispatcher(queueSize int, logger *logging.Logger, sinks ...Sink) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Dispatcher{
		queue:  make(chan AggregatedPrice, queueSize),
		sinks:  sinks,
		logger: logger,
	}
}

// Enqueue hands an emission to the dispatcher. Never blocks; on overflow the
// emission is dropped with a warning rather than stalling aggregation.
func (d *Dispatcher) Enqueue(price AggregatedPrice) {
	select {
	case d.queue <- price:
	default:
		d.logger.Warn("Dispatch queue full, dropping emission", "asset", price.Asset)
	}
}

// Run delivers queued emissions to all sinks until the context is canceled.
// A sink failure is logged and isolated; it never affects the other sinks.
func (d *Dispatcher) Run(ctx context.Context) {
	names := make([]string, len(d.sinks))
	for i, s := range d.sinks {
		names[i] = s.Name()
	}
	d.logger.Info("Dispatcher started", "sinks", names)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Dispatcher stopped")
			return
		case price := <-d.queue:
			for _, sink := range d.sinks {
				if err := sink.Publish(ctx, price); err != nil {
					d.logger.Error("Sink publish failed",
						"sink", sink.Name(), "asset", price.Asset, "error", err)
				}
			}
		}
	}
}
