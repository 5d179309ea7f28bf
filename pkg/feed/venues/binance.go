package venues

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	ws "github.com/JirA44/obelisk-dex-sub013/pkg/feed/venues/websocket"
	"github.com/JirA44/obelisk-dex-sub013/pkg/logging"
	"github.com/JirA44/obelisk-dex-sub013/pkg/metrics"
)

const (
	binanceName  = "binance"
	binanceWSURL = "wss://stream.binance.com:9443"
)

// BinanceConnector streams trades from Binance over the combined stream.
type BinanceConnector struct {
	*BaseConnector
	wsURL    string
	wsClient *ws.Client
}

// binanceTradeMessage is a combined-stream trade event.
// Prices and quantities are string decimals, timestamps are milliseconds.
type binanceTradeMessage struct {
	Stream string `json:"stream"` // e.g. "btcusdt@trade"
	Data   struct {
		EventType string `json:"e"` // "trade"
		EventTime int64  `json:"E"`
		Symbol    string `json:"s"` // e.g. "BTCUSDT"
		Price     string `json:"p"`
		Quantity  string `json:"q"`
		TradeTime int64  `json:"T"`
	} `json:"data"`
}

// NewBinanceConnector creates a Binance streaming connector.
func NewBinanceConnector(cfg Config, logger *logging.Logger) (Connector, error) {
	if len(cfg.Pairs) == 0 {
		return nil, fmt.Errorf("%s: %w", binanceName, ErrNoPairsConfigured)
	}

	wsURL := binanceWSURL
	if cfg.URL != "" {
		wsURL = cfg.URL
	}

	base := NewBaseConnector(binanceName, KindWebSocket, cfg, logger)

	c := &BinanceConnector{
		BaseConnector: base,
		wsURL:         wsURL,
	}

	c.wsClient = ws.NewClient(ws.Config{
		URL:    c.buildStreamURL(),
		Logger: base.Logger().ZerologLogger(),
	})
	c.wsClient.SetHandlers(c.handleMessage, c.handleConnect, c.handleDisconnect)

	return c, nil
}

// Start connects and begins streaming trades.
func (c *BinanceConnector) Start(ctx context.Context) error {
	c.Logger().Info("Starting Binance connector", "pairs", len(c.Symbols()))
	if err := c.wsClient.Start(ctx); err != nil {
		return fmt.Errorf("%w: binance: %v", ErrConnection, err)
	}
	return nil
}

// Stop tears down the stream and stops retries.
func (c *BinanceConnector) Stop() error {
	c.Logger().Info("Stopping Binance connector")
	c.CloseStop()
	return c.wsClient.Close()
}

// buildStreamURL creates the combined-stream URL subscribing to the trade
// channel of every configured symbol.
func (c *BinanceConnector) buildStreamURL() string {
	streams := make([]string, 0, len(c.Symbols()))
	for _, venueSymbol := range c.VenueSymbols() {
		streams = append(streams, strings.ToLower(venueSymbol)+"@trade")
	}
	return c.wsURL + "/stream?streams=" + strings.Join(streams, "/")
}

func (c *BinanceConnector) handleMessage(message []byte) {
	var msg binanceTradeMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.Logger().Warn("Failed to unmarshal Binance message", "error", err)
		return
	}

	if msg.Data.EventType != "trade" {
		return
	}

	price, err := decimal.NewFromString(msg.Data.Price)
	if err != nil {
		c.Logger().Warn("Failed to parse Binance price",
			"symbol", msg.Data.Symbol, "price", msg.Data.Price, "error", err)
		return
	}

	volume := decimal.Zero
	if msg.Data.Quantity != "" {
		if v, err := decimal.NewFromString(msg.Data.Quantity); err == nil {
			volume = v
		}
	}

	c.EmitSymbol(msg.Data.Symbol, price, time.UnixMilli(msg.Data.TradeTime), volume)
}

func (c *BinanceConnector) handleConnect() {
	c.Logger().Info("Binance stream connected")
	c.SetConnected(true)
}

func (c *BinanceConnector) handleDisconnect(err error) {
	c.Logger().Warn("Binance stream disconnected", "error", err)
	c.SetConnected(false)
	metrics.RecordReconnect(binanceName)
}

func init() {
	Register(binanceName, func(cfg Config, logger *logging.Logger) (Connector, error) {
		return NewBinanceConnector(cfg, logger)
	})
}
