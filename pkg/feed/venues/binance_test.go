package venues

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JirA44/obelisk-dex-sub013/pkg/feed"
	"github.com/JirA44/obelisk-dex-sub013/pkg/logging"
)

func newBinanceForTest(t *testing.T) (*BinanceConnector, *[]feed.Tick) {
	t.Helper()

	connector, err := NewBinanceConnector(Config{
		Name:   "binance",
		Weight: 3,
		Pairs:  map[string]string{"BTC": "btcusdt", "ETH": "ethusdt"},
	}, logging.NewNoopLogger())
	require.NoError(t, err)

	c := connector.(*BinanceConnector)
	ticks := &[]feed.Tick{}
	c.OnTick(func(tick feed.Tick) { *ticks = append(*ticks, tick) })
	return c, ticks
}

func TestBinance_StreamURL(t *testing.T) {
	c, _ := newBinanceForTest(t)
	url := c.buildStreamURL()

	assert.Contains(t, url, "wss://stream.binance.com:9443/stream?streams=")
	assert.Contains(t, url, "btcusdt@trade")
	assert.Contains(t, url, "ethusdt@trade")
}

func TestBinance_TradeMessage(t *testing.T) {
	c, ticks := newBinanceForTest(t)

	c.handleMessage([]byte(`{
		"stream": "btcusdt@trade",
		"data": {
			"e": "trade", "E": 1700000000100, "s": "BTCUSDT",
			"p": "100123.45", "q": "0.012", "T": 1700000000095
		}
	}`))

	require.Len(t, *ticks, 1)
	tick := (*ticks)[0]
	assert.Equal(t, "binance", tick.Venue)
	assert.Equal(t, "BTC", tick.Asset)
	assert.True(t, tick.Price.Equal(decimal.NewFromFloat(100123.45)))
	assert.True(t, tick.Volume.Equal(decimal.NewFromFloat(0.012)))
	assert.Equal(t, time.UnixMilli(1700000000095), tick.TradeTime)
}

func TestBinance_IgnoresNonTradeEvents(t *testing.T) {
	c, ticks := newBinanceForTest(t)

	c.handleMessage([]byte(`{
		"stream": "btcusdt@depth",
		"data": {"e": "depthUpdate", "s": "BTCUSDT"}
	}`))
	c.handleMessage([]byte(`{"result": null, "id": 1}`))
	c.handleMessage([]byte(`not json`))

	assert.Empty(t, *ticks)
}

func TestBinance_DropsUnmappedSymbol(t *testing.T) {
	c, ticks := newBinanceForTest(t)

	c.handleMessage([]byte(`{
		"stream": "dogeusdt@trade",
		"data": {"e": "trade", "s": "DOGEUSDT", "p": "0.1", "q": "10", "T": 1700000000000}
	}`))

	assert.Empty(t, *ticks)
}

func TestBinance_RequiresPairs(t *testing.T) {
	_, err := NewBinanceConnector(Config{Name: "binance"}, logging.NewNoopLogger())
	assert.ErrorIs(t, err, ErrNoPairsConfigured)
}
