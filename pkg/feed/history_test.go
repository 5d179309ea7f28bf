package feed

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryBuffer_CapacityBound(t *testing.T) {
	buf := NewHistoryBuffer(5)
	base := time.Now()

	for i := 0; i < 12; i++ {
		buf.Append("BTC", HistoryPoint{
			Price:     decimal.NewFromInt(int64(100 + i)),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
	}

	assert.Equal(t, 5, buf.Len("BTC"))

	recent := buf.Recent("BTC", 0)
	require.Len(t, recent, 5)
	// Newest first, oldest survivors are the last five appended.
	assert.True(t, recent[0].Price.Equal(decimal.NewFromInt(111)))
	assert.True(t, recent[4].Price.Equal(decimal.NewFromInt(107)))
}

func TestHistoryBuffer_RecentLimitsCount(t *testing.T) {
	buf := NewHistoryBuffer(10)
	base := time.Now()
	for i := 0; i < 4; i++ {
		buf.Append("ETH", HistoryPoint{
			Price:     decimal.NewFromInt(int64(2000 + i)),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
	}

	assert.Len(t, buf.Recent("ETH", 2), 2)
	assert.Len(t, buf.Recent("ETH", 100), 4)
	assert.Nil(t, buf.Recent("SOL", 3))
}

func TestHistoryBuffer_TWAP_HoldingTimeWeights(t *testing.T) {
	buf := NewHistoryBuffer(10)
	now := time.Now()

	// 100 held for 600ms (from 800ms ago to 200ms ago), then 110 for the
	// final 200ms; the 100 sample also overlaps the first 200ms... the point
	// at 800ms ago is inside the 1000ms window, so it holds from 800ms ago
	// until the 110 print: 600ms at 100, 200ms at 110 plus the window edge.
	buf.Append("BTC", HistoryPoint{
		Price:     decimal.NewFromInt(100),
		Timestamp: now.Add(-800 * time.Millisecond),
	})
	buf.Append("BTC", HistoryPoint{
		Price:     decimal.NewFromInt(110),
		Timestamp: now.Add(-200 * time.Millisecond),
	})

	twap, ok := buf.TWAP("BTC", time.Second, now)
	require.True(t, ok)
	// 100 held 600ms, 110 held 200ms: (100*600+110*200)/800 = 102.5
	assert.True(t, twap.Equal(decimal.NewFromFloat(102.5)),
		"expected 102.5, got %s", twap)
}

func TestHistoryBuffer_TWAP_ClipsSampleBeforeWindow(t *testing.T) {
	buf := NewHistoryBuffer(10)
	now := time.Now()

	// 100 printed before the window start holds through it until the 110
	// print: 800ms at 100, then 200ms at 110.
	buf.Append("BTC", HistoryPoint{
		Price:     decimal.NewFromInt(100),
		Timestamp: now.Add(-5 * time.Second),
	})
	buf.Append("BTC", HistoryPoint{
		Price:     decimal.NewFromInt(110),
		Timestamp: now.Add(-200 * time.Millisecond),
	})

	twap, ok := buf.TWAP("BTC", time.Second, now)
	require.True(t, ok)
	// (100*800 + 110*200) / 1000 = 102
	assert.True(t, twap.Equal(decimal.NewFromInt(102)),
		"expected 102, got %s", twap)
}

func TestHistoryBuffer_TWAP_SingleSample(t *testing.T) {
	buf := NewHistoryBuffer(10)
	now := time.Now()

	buf.Append("BTC", HistoryPoint{
		Price:     decimal.NewFromInt(100),
		Timestamp: now.Add(-300 * time.Millisecond),
	})

	twap, ok := buf.TWAP("BTC", time.Second, now)
	require.True(t, ok)
	assert.True(t, twap.Equal(decimal.NewFromInt(100)))
}

func TestHistoryBuffer_TWAP_NoSamplesInWindow(t *testing.T) {
	buf := NewHistoryBuffer(10)
	now := time.Now()

	_, ok := buf.TWAP("BTC", time.Second, now)
	assert.False(t, ok)

	buf.Append("BTC", HistoryPoint{
		Price:     decimal.NewFromInt(100),
		Timestamp: now.Add(-time.Hour),
	})
	_, ok = buf.TWAP("BTC", time.Second, now)
	assert.False(t, ok)
}

func TestHistoryBuffer_TWAP_ConstantPrice(t *testing.T) {
	buf := NewHistoryBuffer(10)
	now := time.Now()

	for i := 1; i <= 5; i++ {
		buf.Append("ETH", HistoryPoint{
			Price:     decimal.NewFromInt(2500),
			Timestamp: now.Add(-time.Duration(i*100) * time.Millisecond),
		})
	}

	twap, ok := buf.TWAP("ETH", time.Second, now)
	require.True(t, ok)
	assert.True(t, twap.Equal(decimal.NewFromInt(2500)))
}
