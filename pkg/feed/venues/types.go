// Package venues provides the venue connector abstraction and the adapters
// for the supported external price venues. New venues are adapters registered
// here, not branches in the engine.
package venues

import (
	"context"
	"time"

	"github.com/JirA44/obelisk-dex-sub013/pkg/feed"
)

// Kind is a venue transport kind.
type Kind string

const (
	// KindWebSocket is a persistent streaming venue.
	KindWebSocket Kind = "websocket"
	// KindPoll is a timer-driven HTTP polling venue.
	KindPoll Kind = "poll"
)

// TickHandler receives one normalized tick. Handlers are invoked from the
// connector's read loop and must not block; the engine intake drops on
// overflow instead of stalling the loop.
type TickHandler func(feed.Tick)

// Connector is the contract every venue adapter implements. Streaming and
// polling venues share the same tick output; only the transport differs.
type Connector interface {
	// Name returns the unique venue name.
	Name() string

	// Kind returns the transport kind.
	Kind() Kind

	// Weight returns the venue's aggregation weight.
	Weight() float64

	// Symbols returns the canonical assets this venue provides.
	Symbols() []string

	// OnTick registers a handler invoked once per normalized tick.
	OnTick(handler TickHandler)

	// Start establishes the transport, subscribes to the configured symbols
	// and begins delivering ticks. Streaming connectors keep reconnecting
	// with bounded backoff until Stop or context cancellation.
	Start(ctx context.Context) error

	// Stop tears down the transport and stops retries.
	Stop() error

	// Connected reports whether the venue is currently delivering.
	Connected() bool

	// LastTick returns the receipt time of the last normalized tick.
	LastTick() time.Time
}

// Config is the static per-venue configuration.
type Config struct {
	Name         string
	URL          string
	Weight       float64
	PollInterval time.Duration
	Pairs        map[string]string // canonical asset -> venue symbol
}
