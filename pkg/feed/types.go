// Package feed implements the consensus price engine: quote storage,
// aggregation, bounded history and emission dispatch.
package feed

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tick is one normalized price observation from a venue.
type Tick struct {
	Venue     string
	Asset     string
	Price     decimal.Decimal
	TradeTime time.Time
	Volume    decimal.Decimal
}

// Quote is the latest observation per (asset, venue), owned by TokenPriceStore.
// ReceivedAt is wall-clock receipt time and drives the staleness filter;
// reconnects do not reset it.
type Quote struct {
	Venue      string
	Asset      string
	Price      decimal.Decimal
	TradeTime  time.Time
	ReceivedAt time.Time
	Volume     decimal.Decimal
}

// AggregatedPrice is an immutable consensus snapshot for one asset.
type AggregatedPrice struct {
	Asset       string          `json:"asset"`
	Price       decimal.Decimal `json:"price"`
	Timestamp   int64           `json:"timestamp"` // unix milliseconds
	Confidence  int             `json:"confidence"`
	SourceCount int             `json:"sourceCount"`
	Sources     []string        `json:"sources"`
	SpreadPct   decimal.Decimal `json:"spread"`
	Min         decimal.Decimal `json:"min"`
	Max         decimal.Decimal `json:"max"`
}

// HistoryPoint is one consensus price sample in an asset's time series.
type HistoryPoint struct {
	Price     decimal.Decimal
	Timestamp time.Time
}
