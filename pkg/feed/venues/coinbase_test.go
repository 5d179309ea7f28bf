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

func newCoinbaseForTest(t *testing.T) (*CoinbaseConnector, *[]feed.Tick) {
	t.Helper()

	connector, err := NewCoinbaseConnector(Config{
		Name:   "coinbase",
		Weight: 3,
		Pairs:  map[string]string{"BTC": "BTC-USD", "SOL": "SOL-USD"},
	}, logging.NewNoopLogger())
	require.NoError(t, err)

	c := connector.(*CoinbaseConnector)
	ticks := &[]feed.Tick{}
	c.OnTick(func(tick feed.Tick) { *ticks = append(*ticks, tick) })
	return c, ticks
}

func TestCoinbase_MatchMessage(t *testing.T) {
	c, ticks := newCoinbaseForTest(t)

	c.handleMessage([]byte(`{
		"type": "match",
		"product_id": "BTC-USD",
		"price": "100200.00",
		"size": "0.005",
		"time": "2026-08-30T12:00:00.123456Z"
	}`))

	require.Len(t, *ticks, 1)
	tick := (*ticks)[0]
	assert.Equal(t, "coinbase", tick.Venue)
	assert.Equal(t, "BTC", tick.Asset)
	assert.True(t, tick.Price.Equal(decimal.NewFromInt(100200)))
	assert.True(t, tick.Volume.Equal(decimal.NewFromFloat(0.005)))

	expected, _ := time.Parse(time.RFC3339Nano, "2026-08-30T12:00:00.123456Z")
	assert.True(t, tick.TradeTime.Equal(expected))
}

func TestCoinbase_LastMatchAccepted(t *testing.T) {
	c, ticks := newCoinbaseForTest(t)

	c.handleMessage([]byte(`{
		"type": "last_match",
		"product_id": "SOL-USD",
		"price": "150.5",
		"size": "2",
		"time": "2026-08-30T12:00:00Z"
	}`))

	require.Len(t, *ticks, 1)
	assert.Equal(t, "SOL", (*ticks)[0].Asset)
}

func TestCoinbase_IgnoresOtherMessageTypes(t *testing.T) {
	c, ticks := newCoinbaseForTest(t)

	c.handleMessage([]byte(`{"type": "subscriptions", "channels": []}`))
	c.handleMessage([]byte(`{"type": "heartbeat", "product_id": "BTC-USD"}`))
	c.handleMessage([]byte(`{"type": "error", "message": "bad request"}`))

	assert.Empty(t, *ticks)
}

func TestCoinbase_BadPriceDropped(t *testing.T) {
	c, ticks := newCoinbaseForTest(t)

	c.handleMessage([]byte(`{
		"type": "match", "product_id": "BTC-USD", "price": "garbage", "size": "1",
		"time": "2026-08-30T12:00:00Z"
	}`))

	assert.Empty(t, *ticks)
}
