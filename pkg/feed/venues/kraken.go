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
	krakenName  = "kraken"
	krakenWSURL = "wss://ws.kraken.com"
)

// KrakenConnector streams trades from the Kraken public feed. Kraken sends
// trade events as positional JSON arrays rather than objects:
// [channelID, [[price, volume, time, side, orderType, misc], ...], "trade", "XBT/USD"].
type KrakenConnector struct {
	*BaseConnector
	wsClient *ws.Client
}

type krakenSubscribeRequest struct {
	Event        string             `json:"event"`
	Pair         []string           `json:"pair"`
	Subscription krakenSubscription `json:"subscription"`
}

type krakenSubscription struct {
	Name string `json:"name"`
}

// NewKrakenConnector creates a Kraken streaming connector.
func NewKrakenConnector(cfg Config, logger *logging.Logger) (Connector, error) {
	if len(cfg.Pairs) == 0 {
		return nil, fmt.Errorf("%s: %w", krakenName, ErrNoPairsConfigured)
	}

	wsURL := krakenWSURL
	if cfg.URL != "" {
		wsURL = cfg.URL
	}

	base := NewBaseConnector(krakenName, KindWebSocket, cfg, logger)

	c := &KrakenConnector{BaseConnector: base}
	c.wsClient = ws.NewClient(ws.Config{
		URL:    wsURL,
		Logger: base.Logger().ZerologLogger(),
	})
	c.wsClient.SetHandlers(c.handleMessage, c.handleConnect, c.handleDisconnect)

	return c, nil
}

// Start connects and subscribes to the trade channel.
func (c *KrakenConnector) Start(ctx context.Context) error {
	c.Logger().Info("Starting Kraken connector", "pairs", len(c.Symbols()))
	if err := c.wsClient.Start(ctx); err != nil {
		return fmt.Errorf("%w: kraken: %v", ErrConnection, err)
	}
	return nil
}

// Stop tears down the stream and stops retries.
func (c *KrakenConnector) Stop() error {
	c.Logger().Info("Stopping Kraken connector")
	c.CloseStop()
	return c.wsClient.Close()
}

func (c *KrakenConnector) subscribe() error {
	return c.wsClient.SendJSON(krakenSubscribeRequest{
		Event:        "subscribe",
		Pair:         c.VenueSymbols(),
		Subscription: krakenSubscription{Name: "trade"},
	})
}

func (c *KrakenConnector) handleMessage(message []byte) {
	// Event messages (subscriptionStatus, heartbeat, ...) are objects;
	// trade payloads are arrays.
	var raw []json.RawMessage
	if err := json.Unmarshal(message, &raw); err != nil {
		return
	}
	if len(raw) < 4 {
		return
	}

	var channel string
	if err := json.Unmarshal(raw[2], &channel); err != nil || channel != "trade" {
		return
	}

	var pair string
	if err := json.Unmarshal(raw[3], &pair); err != nil {
		return
	}

	var trades [][]json.RawMessage
	if err := json.Unmarshal(raw[1], &trades); err != nil {
		c.Logger().Warn("Failed to unmarshal Kraken trades", "error", err)
		return
	}

	for _, trade := range trades {
		if len(trade) < 3 {
			continue
		}

		price, volume, tradeTime, err := parseKrakenTrade(trade)
		if err != nil {
			c.Logger().Warn("Failed to parse Kraken trade", "pair", pair, "error", err)
			continue
		}

		c.EmitSymbol(pair, price, tradeTime, volume)
	}
}

// parseKrakenTrade decodes one [price, volume, time, ...] entry. Price and
// volume are string decimals; time is a string of fractional unix seconds.
func parseKrakenTrade(trade []json.RawMessage) (price, volume decimal.Decimal, tradeTime time.Time, err error) {
	var priceStr, volumeStr, timeStr string
	if err = json.Unmarshal(trade[0], &priceStr); err != nil {
		return
	}
	if err = json.Unmarshal(trade[1], &volumeStr); err != nil {
		return
	}
	if err = json.Unmarshal(trade[2], &timeStr); err != nil {
		return
	}

	if price, err = decimal.NewFromString(priceStr); err != nil {
		return
	}
	if volume, err = decimal.NewFromString(volumeStr); err != nil {
		return
	}

	seconds, err := decimal.NewFromString(timeStr)
	if err != nil {
		return
	}
	tradeTime = time.UnixMilli(seconds.Mul(decimal.NewFromInt(1000)).IntPart())
	return
}

func (c *KrakenConnector) handleConnect() {
	c.Logger().Info("Kraken stream connected")
	c.SetConnected(true)

	if err := c.subscribe(); err != nil {
		c.Logger().Error("Failed to subscribe to Kraken trades", "error", err)
	}
}

func (c *KrakenConnector) handleDisconnect(err error) {
	c.Logger().Warn("Kraken stream disconnected", "error", err)
	c.SetConnected(false)
	metrics.RecordReconnect(krakenName)
}

func init() {
	Register(krakenName, func(cfg Config, logger *logging.Logger) (Connector, error) {
		return NewKrakenConnector(cfg, logger)
	})
}
