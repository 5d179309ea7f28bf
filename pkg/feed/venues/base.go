package venues

import (
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JirA44/obelisk-dex-sub013/pkg/feed"
	"github.com/JirA44/obelisk-dex-sub013/pkg/logging"
	"github.com/JirA44/obelisk-dex-sub013/pkg/metrics"
)

// BaseConnector provides the functionality shared by all venue adapters:
// symbol mapping, tick emission, handler registration and connection state.
type BaseConnector struct {
	name   string
	kind   Kind
	weight float64
	pairs  map[string]string // asset -> venue symbol
	assets map[string]string // lower-cased venue symbol -> asset

	handlers   []TickHandler
	handlersMu sync.RWMutex

	connected   bool
	connectedMu sync.RWMutex

	lastTick   time.Time
	lastTickMu sync.RWMutex

	stopChan chan struct{}
	stopOnce sync.Once

	logger *logging.Logger
}

// NewBaseConnector creates a base connector with asset/symbol mappings.
func NewBaseConnector(name string, kind Kind, cfg Config, logger *logging.Logger) *BaseConnector {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}

	assets := make(map[string]string, len(cfg.Pairs))
	for asset, venueSymbol := range cfg.Pairs {
		assets[strings.ToLower(venueSymbol)] = asset
	}

	weight := cfg.Weight
	if weight <= 0 {
		weight = 1.0
	}

	return &BaseConnector{
		name:     name,
		kind:     kind,
		weight:   weight,
		pairs:    cfg.Pairs,
		assets:   assets,
		stopChan: make(chan struct{}),
		logger:   logger,
	}
}

// Name returns the venue name.
func (b *BaseConnector) Name() string { return b.name }

// Kind returns the transport kind.
func (b *BaseConnector) Kind() Kind { return b.kind }

// Weight returns the aggregation weight.
func (b *BaseConnector) Weight() float64 { return b.weight }

// Symbols returns the configured canonical assets.
func (b *BaseConnector) Symbols() []string {
	symbols := make([]string, 0, len(b.pairs))
	for asset := range b.pairs {
		symbols = append(symbols, asset)
	}
	return symbols
}

// VenueSymbol returns the venue-specific symbol for an asset, or "".
func (b *BaseConnector) VenueSymbol(asset string) string {
	return b.pairs[asset]
}

// VenueSymbols returns all venue-specific symbols.
func (b *BaseConnector) VenueSymbols() []string {
	out := make([]string, 0, len(b.pairs))
	for _, venueSymbol := range b.pairs {
		out = append(out, venueSymbol)
	}
	return out
}

// AssetFor resolves a venue-specific symbol to the canonical asset. The
// lookup is case-insensitive. Returns "" for unmapped symbols.
func (b *BaseConnector) AssetFor(venueSymbol string) string {
	return b.assets[strings.ToLower(venueSymbol)]
}

// OnTick registers a tick handler.
func (b *BaseConnector) OnTick(handler TickHandler) {
	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()
	b.handlers = append(b.handlers, handler)
}

// EmitSymbol normalizes and emits a tick for a venue-specific symbol.
// Unmapped symbols and non-positive prices are dropped with a warning,
// never forwarded.
func (b *BaseConnector) EmitSymbol(venueSymbol string, price decimal.Decimal, tradeTime time.Time, volume decimal.Decimal) {
	asset := b.AssetFor(venueSymbol)
	if asset == "" {
		b.logger.Warn("Dropping tick for unmapped symbol",
			"venue", b.name, "symbol", venueSymbol)
		return
	}
	if !price.IsPositive() {
		b.logger.Warn("Dropping tick with non-positive price",
			"venue", b.name, "asset", asset, "price", price.String())
		return
	}

	b.lastTickMu.Lock()
	b.lastTick = time.Now()
	b.lastTickMu.Unlock()

	metrics.RecordTick(b.name, asset)

	tick := feed.Tick{
		Venue:     b.name,
		Asset:     asset,
		Price:     price,
		TradeTime: tradeTime,
		Volume:    volume,
	}

	b.handlersMu.RLock()
	defer b.handlersMu.RUnlock()
	for _, handler := range b.handlers {
		handler(tick)
	}
}

// SetConnected updates the connection state.
func (b *BaseConnector) SetConnected(connected bool) {
	b.connectedMu.Lock()
	b.connected = connected
	b.connectedMu.Unlock()
	metrics.RecordVenueState(b.name, connected)
}

// Connected reports the connection state.
func (b *BaseConnector) Connected() bool {
	b.connectedMu.RLock()
	defer b.connectedMu.RUnlock()
	return b.connected
}

// LastTick returns the receipt time of the last normalized tick.
func (b *BaseConnector) LastTick() time.Time {
	b.lastTickMu.RLock()
	defer b.lastTickMu.RUnlock()
	return b.lastTick
}

// StopChan returns the stop channel.
func (b *BaseConnector) StopChan() <-chan struct{} { return b.stopChan }

// CloseStop closes the stop channel once.
func (b *BaseConnector) CloseStop() {
	b.stopOnce.Do(func() { close(b.stopChan) })
}

// Logger returns the logger.
func (b *BaseConnector) Logger() *logging.Logger { return b.logger }
