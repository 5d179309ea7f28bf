package venues

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JirA44/obelisk-dex-sub013/pkg/logging"
)

const (
	coingeckoName    = "coingecko"
	coingeckoBaseURL = "https://api.coingecko.com/api/v3"
	coingeckoTimeout = 10 * time.Second
)

// CoinGeckoConnector polls CoinGecko's simple price endpoint on a fixed
// interval, one batched request for all configured assets. A failed poll is
// logged and skipped; the next interval retries with no backoff storm.
type CoinGeckoConnector struct {
	*BaseConnector
	apiURL       string
	pollInterval time.Duration
	httpClient   *http.Client
}

// coingeckoEntry is one id's quote from /simple/price.
type coingeckoEntry struct {
	USD           json.Number `json:"usd"`
	LastUpdatedAt int64       `json:"last_updated_at"`
}

// NewCoinGeckoConnector creates a CoinGecko polling connector.
func NewCoinGeckoConnector(cfg Config, logger *logging.Logger) (Connector, error) {
	if len(cfg.Pairs) == 0 {
		return nil, fmt.Errorf("%s: %w", coingeckoName, ErrNoPairsConfigured)
	}

	apiURL := coingeckoBaseURL
	if cfg.URL != "" {
		apiURL = cfg.URL
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}

	base := NewBaseConnector(coingeckoName, KindPoll, cfg, logger)

	return &CoinGeckoConnector{
		BaseConnector: base,
		apiURL:        apiURL,
		pollInterval:  pollInterval,
		httpClient:    &http.Client{Timeout: coingeckoTimeout},
	}, nil
}

// Start performs an initial fetch and begins the polling loop.
func (c *CoinGeckoConnector) Start(ctx context.Context) error {
	c.Logger().Info("Starting CoinGecko connector",
		"pairs", len(c.Symbols()), "interval", c.pollInterval)

	if err := c.poll(ctx); err != nil {
		c.Logger().Warn("Initial CoinGecko poll failed", "error", err)
	}

	go c.pollLoop(ctx)
	return nil
}

// Stop halts the polling loop.
func (c *CoinGeckoConnector) Stop() error {
	c.Logger().Info("Stopping CoinGecko connector")
	c.CloseStop()
	c.SetConnected(false)
	return nil
}

func (c *CoinGeckoConnector) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.StopChan():
			return
		case <-ticker.C:
			if err := c.poll(ctx); err != nil {
				c.Logger().Error("CoinGecko poll failed", "error", err)
				c.SetConnected(false)
			}
		}
	}
}

// poll issues one batched request for all configured ids and emits a tick
// per mapped asset. The venue-reported update time is used as trade time,
// falling back to local receipt time.
func (c *CoinGeckoConnector) poll(ctx context.Context) error {
	ids := c.VenueSymbols()
	sort.Strings(ids)

	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd&include_last_updated_at=true",
		c.apiURL, strings.Join(ids, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch prices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var entries map[string]coingeckoEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	now := time.Now()
	for id, entry := range entries {
		price, err := decimal.NewFromString(entry.USD.String())
		if err != nil {
			c.Logger().Warn("Failed to parse CoinGecko price",
				"id", id, "price", entry.USD.String(), "error", err)
			continue
		}

		tradeTime := now
		if entry.LastUpdatedAt > 0 {
			tradeTime = time.Unix(entry.LastUpdatedAt, 0)
		}

		c.EmitSymbol(id, price, tradeTime, decimal.Zero)
	}

	c.SetConnected(true)
	return nil
}

func init() {
	Register(coingeckoName, func(cfg Config, logger *logging.Logger) (Connector, error) {
		return NewCoinGeckoConnector(cfg, logger)
	})
}
