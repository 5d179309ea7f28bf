package storage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JirA44/obelisk-dex-sub013/pkg/feed"
)

func TestNewBatcher_AppliesConfig(t *testing.T) {
	b := NewBatcher(nil, Config{BatchSize: 7, FlushPeriod: 2 * time.Second}, nil)
	assert.Equal(t, 7, b.batchSize)
	assert.Equal(t, 2*time.Second, b.flushPeriod)
}

func TestNewBatcher_Defaults(t *testing.T) {
	b := NewBatcher(nil, Config{DSN: "ignored"}, nil)
	assert.Equal(t, 100, b.batchSize)
	assert.Equal(t, 10*time.Second, b.flushPeriod)
}

func TestBatcher_PublishNeverBlocks(t *testing.T) {
	b := NewBatcher(nil, Config{}, nil)

	// Overfill the queue; the extra publishes are dropped, not blocked on.
	for i := 0; i < cap(b.queue)+10; i++ {
		require.NoError(t, b.Publish(context.Background(), feed.AggregatedPrice{
			Asset: "BTC", Price: decimal.NewFromInt(100000),
		}))
	}
	assert.Equal(t, cap(b.queue), len(b.queue))
}
