package chain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JirA44/obelisk-dex-sub013/pkg/feed"
)

func TestToWei(t *testing.T) {
	tests := []struct {
		name  string
		price string
		want  string
	}{
		{"whole number", "100100", "100100000000000000000000"},
		{"fractional", "2505.5", "2505500000000000000000"},
		{"sub-unit", "0.000001", "1000000000000"},
		{"truncates excess precision", "1.0000000000000000009", "1000000000000000000"},
		{"zero", "0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price, err := decimal.NewFromString(tt.price)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ToWei(price).String())
		})
	}
}

func TestBuildBatch_SelectsConfiguredChangedAssets(t *testing.T) {
	tokens := map[string]string{
		"BTC": "0x0000000000000000000000000000000000000001",
		"ETH": "0x0000000000000000000000000000000000000002",
	}
	prices := map[string]feed.AggregatedPrice{
		"BTC": {Asset: "BTC", Price: decimal.NewFromInt(100100), Timestamp: 1700000000000, Confidence: 73, SourceCount: 2},
		"ETH": {Asset: "ETH", Price: decimal.NewFromInt(2500), Timestamp: 1700000000000, Confidence: 85, SourceCount: 3},
		// No token address configured, must be skipped.
		"SOL": {Asset: "SOL", Price: decimal.NewFromInt(150), Timestamp: 1700000000000, Confidence: 60, SourceCount: 2},
	}

	batch := BuildBatch(prices, tokens, nil)
	require.Len(t, batch, 2)

	// Ordered by asset for deterministic calldata.
	assert.Equal(t, "BTC", batch[0].Asset)
	assert.Equal(t, "ETH", batch[1].Asset)
	assert.Equal(t, common.HexToAddress(tokens["BTC"]), batch[0].Token)
	assert.Equal(t, ToWei(decimal.NewFromInt(100100)).String(), batch[0].PriceWei.String())
	assert.Equal(t, uint8(73), batch[0].Confidence)
	assert.Equal(t, uint8(2), batch[0].SourceCount)
	assert.Equal(t, int64(1700000000000), batch[0].TimestampMs.Int64())
}

func TestBuildBatch_SkipsUnchanged(t *testing.T) {
	tokens := map[string]string{
		"BTC": "0x0000000000000000000000000000000000000001",
		"ETH": "0x0000000000000000000000000000000000000002",
	}
	prices := map[string]feed.AggregatedPrice{
		"BTC": {Asset: "BTC", Price: decimal.NewFromInt(100100), Confidence: 73, SourceCount: 2},
		"ETH": {Asset: "ETH", Price: decimal.NewFromInt(2500), Confidence: 85, SourceCount: 3},
	}
	lastPublished := map[string]string{
		"BTC": ToWei(decimal.NewFromInt(100100)).String(),
	}

	batch := BuildBatch(prices, tokens, lastPublished)
	require.Len(t, batch, 1)
	assert.Equal(t, "ETH", batch[0].Asset)
}

func TestBuildBatch_SkipsNonPositivePrices(t *testing.T) {
	tokens := map[string]string{"BTC": "0x0000000000000000000000000000000000000001"}
	prices := map[string]feed.AggregatedPrice{
		"BTC": {Asset: "BTC", Price: decimal.Zero, Confidence: 10, SourceCount: 1},
	}

	assert.Empty(t, BuildBatch(prices, tokens, nil))
}

func TestBuildBatch_ClampsNarrowFields(t *testing.T) {
	tokens := map[string]string{"BTC": "0x0000000000000000000000000000000000000001"}
	prices := map[string]feed.AggregatedPrice{
		"BTC": {Asset: "BTC", Price: decimal.NewFromInt(1), Confidence: 250, SourceCount: 999},
	}

	batch := BuildBatch(prices, tokens, nil)
	require.Len(t, batch, 1)
	assert.Equal(t, uint8(100), batch[0].Confidence)
	assert.Equal(t, uint8(255), batch[0].SourceCount)
}

func TestNew_RequiresCompleteConfig(t *testing.T) {
	_, err := New(Config{}, nil, nil)
	assert.ErrorIs(t, err, ErrIncompleteConfig)
}
