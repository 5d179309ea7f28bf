package venues

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JirA44/obelisk-dex-sub013/pkg/feed"
	"github.com/JirA44/obelisk-dex-sub013/pkg/logging"
)

func newCoinGeckoForTest(t *testing.T, url string) (*CoinGeckoConnector, *[]feed.Tick) {
	t.Helper()

	connector, err := NewCoinGeckoConnector(Config{
		Name:   "coingecko",
		URL:    url,
		Weight: 1,
		Pairs:  map[string]string{"BTC": "bitcoin", "ETH": "ethereum"},
	}, logging.NewNoopLogger())
	require.NoError(t, err)

	c := connector.(*CoinGeckoConnector)
	ticks := &[]feed.Tick{}
	c.OnTick(func(tick feed.Tick) { *ticks = append(*ticks, tick) })
	return c, ticks
}

func TestCoinGecko_Poll(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"bitcoin": {"usd": 100300.12, "last_updated_at": 1700000000},
			"ethereum": {"usd": 2505.5, "last_updated_at": 1700000001}
		}`))
	}))
	defer server.Close()

	c, ticks := newCoinGeckoForTest(t, server.URL)

	require.NoError(t, c.poll(context.Background()))

	assert.Contains(t, gotPath, "/simple/price?ids=bitcoin,ethereum")
	assert.Contains(t, gotPath, "vs_currencies=usd")
	assert.Contains(t, gotPath, "include_last_updated_at=true")

	require.Len(t, *ticks, 2)
	byAsset := map[string]feed.Tick{}
	for _, tick := range *ticks {
		byAsset[tick.Asset] = tick
	}

	btc := byAsset["BTC"]
	assert.Equal(t, "coingecko", btc.Venue)
	assert.True(t, btc.Price.Equal(decimal.NewFromFloat(100300.12)))
	assert.Equal(t, time.Unix(1700000000, 0), btc.TradeTime)

	eth := byAsset["ETH"]
	assert.True(t, eth.Price.Equal(decimal.NewFromFloat(2505.5)))

	assert.True(t, c.Connected())
}

func TestCoinGecko_MissingUpdateTimeFallsBackToNow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"bitcoin": {"usd": 100000}}`))
	}))
	defer server.Close()

	c, ticks := newCoinGeckoForTest(t, server.URL)
	before := time.Now()

	require.NoError(t, c.poll(context.Background()))

	require.Len(t, *ticks, 1)
	tick := (*ticks)[0]
	assert.False(t, tick.TradeTime.Before(before))
}

func TestCoinGecko_ServerErrorReported(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c, ticks := newCoinGeckoForTest(t, server.URL)

	assert.Error(t, c.poll(context.Background()))
	assert.Empty(t, *ticks)
}

func TestCoinGecko_UnknownIDDropped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"dogecoin": {"usd": 0.1, "last_updated_at": 1700000000}}`))
	}))
	defer server.Close()

	c, ticks := newCoinGeckoForTest(t, server.URL)

	require.NoError(t, c.poll(context.Background()))
	assert.Empty(t, *ticks)
}
