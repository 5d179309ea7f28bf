package venues

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	ws "github.com/JirA44/obelisk-dex-sub013/pkg/feed/venues/websocket"
	"github.com/JirA44/obelisk-dex-sub013/pkg/logging"
	"github.com/JirA44/obelisk-dex-sub013/pkg/metrics"
)

const (
	coinbaseName  = "coinbase"
	coinbaseWSURL = "wss://ws-feed.exchange.coinbase.com"
)

// CoinbaseConnector streams matched trades from the Coinbase Exchange feed.
// Unlike Binance, subscriptions are sent as a message after the handshake,
// so they are re-sent on every reconnect.
type CoinbaseConnector struct {
	*BaseConnector
	wsClient *ws.Client
}

type coinbaseSubscribeRequest struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []string `json:"channels"`
}

// coinbaseMatchMessage is a "match"/"last_match" event from the matches channel.
type coinbaseMatchMessage struct {
	Type      string `json:"type"`
	ProductID string `json:"product_id"` // e.g. "BTC-USD"
	Price     string `json:"price"`
	Size      string `json:"size"`
	Time      string `json:"time"` // RFC3339 with nanoseconds
}

// NewCoinbaseConnector creates a Coinbase streaming connector.
func NewCoinbaseConnector(cfg Config, logger *logging.Logger) (Connector, error) {
	if len(cfg.Pairs) == 0 {
		return nil, fmt.Errorf("%s: %w", coinbaseName, ErrNoPairsConfigured)
	}

	wsURL := coinbaseWSURL
	if cfg.URL != "" {
		wsURL = cfg.URL
	}

	base := NewBaseConnector(coinbaseName, KindWebSocket, cfg, logger)

	c := &CoinbaseConnector{BaseConnector: base}
	c.wsClient = ws.NewClient(ws.Config{
		URL:    wsURL,
		Logger: base.Logger().ZerologLogger(),
	})
	c.wsClient.SetHandlers(c.handleMessage, c.handleConnect, c.handleDisconnect)

	return c, nil
}

// Start connects and subscribes to the matches channel.
func (c *CoinbaseConnector) Start(ctx context.Context) error {
	c.Logger().Info("Starting Coinbase connector", "pairs", len(c.Symbols()))
	if err := c.wsClient.Start(ctx); err != nil {
		return fmt.Errorf("%w: coinbase: %v", ErrConnection, err)
	}
	return nil
}

// Stop tears down the stream and stops retries.
func (c *CoinbaseConnector) Stop() error {
	c.Logger().Info("Stopping Coinbase connector")
	c.CloseStop()
	return c.wsClient.Close()
}

func (c *CoinbaseConnector) subscribe() error {
	return c.wsClient.SendJSON(coinbaseSubscribeRequest{
		Type:       "subscribe",
		ProductIDs: c.VenueSymbols(),
		Channels:   []string{"matches"},
	})
}

func (c *CoinbaseConnector) handleMessage(message []byte) {
	var msg coinbaseMatchMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.Logger().Warn("Failed to unmarshal Coinbase message", "error", err)
		return
	}

	if msg.Type != "match" && msg.Type != "last_match" {
		return
	}

	price, err := decimal.NewFromString(msg.Price)
	if err != nil {
		c.Logger().Warn("Failed to parse Coinbase price",
			"product", msg.ProductID, "price", msg.Price, "error", err)
		return
	}

	volume := decimal.Zero
	if msg.Size != "" {
		if v, err := decimal.NewFromString(msg.Size); err == nil {
			volume = v
		}
	}

	tradeTime := time.Now()
	if t, err := time.Parse(time.RFC3339Nano, msg.Time); err == nil {
		tradeTime = t
	}

	c.EmitSymbol(msg.ProductID, price, tradeTime, volume)
}

func (c *CoinbaseConnector) handleConnect() {
	c.Logger().Info("Coinbase stream connected")
	c.SetConnected(true)

	if err := c.subscribe(); err != nil {
		c.Logger().Error("Failed to subscribe to Coinbase matches", "error", err)
	}
}

func (c *CoinbaseConnector) handleDisconnect(err error) {
	c.Logger().Warn("Coinbase stream disconnected", "error", err)
	c.SetConnected(false)
	metrics.RecordReconnect(coinbaseName)
}

func init() {
	Register(coinbaseName, func(cfg Config, logger *logging.Logger) (Connector, error) {
		return NewCoinbaseConnector(cfg, logger)
	})
}
