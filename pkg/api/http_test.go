package api

import (
	"context"
	"encoding/json"
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

func newTestServer(t *testing.T) (*Server, *feed.LatestStore, *feed.HistoryBuffer) {
	t.Helper()

	latest := feed.NewLatestStore()
	history := feed.NewHistoryBuffer(100)
	server := NewServer(":0", nil, latest, history, nil, logging.NewNoopLogger())
	return server, latest, history
}

func doRequest(t *testing.T, server *Server, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestAPI_Health(t *testing.T) {
	server, _, _ := newTestServer(t)

	rec := doRequest(t, server, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestAPI_Prices(t *testing.T) {
	server, latest, _ := newTestServer(t)

	require.NoError(t, latest.Publish(context.Background(), feed.AggregatedPrice{
		Asset: "BTC", Price: decimal.NewFromInt(100100), Confidence: 73,
	}))
	require.NoError(t, latest.Publish(context.Background(), feed.AggregatedPrice{
		Asset: "ETH", Price: decimal.NewFromInt(2500), Confidence: 85,
	}))

	rec := doRequest(t, server, "/v1/prices")
	require.Equal(t, http.StatusOK, rec.Code)

	var prices map[string]feed.AggregatedPrice
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prices))
	require.Len(t, prices, 2)
	assert.True(t, prices["BTC"].Price.Equal(decimal.NewFromInt(100100)))
}

func TestAPI_PriceByAsset(t *testing.T) {
	server, latest, _ := newTestServer(t)

	require.NoError(t, latest.Publish(context.Background(), feed.AggregatedPrice{
		Asset: "BTC", Price: decimal.NewFromInt(100100), Confidence: 73,
	}))

	rec := doRequest(t, server, "/v1/prices/btc")
	require.Equal(t, http.StatusOK, rec.Code)

	var price feed.AggregatedPrice
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &price))
	assert.Equal(t, "BTC", price.Asset)
	assert.Equal(t, 73, price.Confidence)
}

func TestAPI_PriceNotFound(t *testing.T) {
	server, _, _ := newTestServer(t)

	rec := doRequest(t, server, "/v1/prices/DOGE")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_TWAP(t *testing.T) {
	server, _, history := newTestServer(t)

	now := time.Now()
	history.Append("BTC", feed.HistoryPoint{
		Price: decimal.NewFromInt(100000), Timestamp: now.Add(-time.Minute),
	})

	rec := doRequest(t, server, "/v1/twap/BTC?window=5m")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Asset    string `json:"asset"`
		TWAP     string `json:"twap"`
		WindowMs int64  `json:"windowMs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "BTC", resp.Asset)
	assert.Equal(t, "100000", resp.TWAP)
	assert.Equal(t, int64(300000), resp.WindowMs)
}

func TestAPI_TWAPBadWindow(t *testing.T) {
	server, _, _ := newTestServer(t)

	rec := doRequest(t, server, "/v1/twap/BTC?window=banana")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_TWAPNoHistory(t *testing.T) {
	server, _, _ := newTestServer(t)

	rec := doRequest(t, server, "/v1/twap/BTC")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
