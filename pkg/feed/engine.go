package feed

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JirA44/obelisk-dex-sub013/pkg/logging"
	"github.com/JirA44/obelisk-dex-sub013/pkg/metrics"
)

// DefaultStaleAfter is the default max quote age before exclusion.
const DefaultStaleAfter = 10 * time.Second

// ConfidenceParams are the tunable constants of the confidence score.
// The score grows with contributing venue count and shrinks with spread;
// only that monotonic behavior is relied upon, not the exact constants.
type ConfidenceParams struct {
	SourceTarget   int     // venue count yielding the full source score
	SourceScoreMax float64 // score share earned from venue count
	SpreadScoreMax float64 // score share earned from agreement
	SpreadPenalty  float64 // score lost per 1% of spread
}

// DefaultConfidenceParams mirror the production oracle defaults.
func DefaultConfidenceParams() ConfidenceParams {
	return ConfidenceParams{
		SourceTarget:   4,
		SourceScoreMax: 50,
		SpreadScoreMax: 50,
		SpreadPenalty:  10,
	}
}

// EngineOptions configure the aggregation engine.
type EngineOptions struct {
	StaleAfter time.Duration
	QueueSize  int
	Weights    map[string]float64 // venue -> weight, must be > 0
	Confidence ConfidenceParams
}

// Engine recomputes the consensus price for an asset whenever one of its
// quotes changes. A single goroutine consumes the tick queue, so the
// read-snapshot, compute, emit sequence is atomic per asset and per-asset
// emissions are totally ordered.
type Engine struct {
	opts    EngineOptions
	store   *TokenPriceStore
	history *HistoryBuffer
	emit    func(AggregatedPrice)
	logger  *logging.Logger

	ticks chan Tick

	// lastInputs tracks the surviving quote set of the previous computation
	// per asset; an identical set produces no duplicate emission.
	lastInputs map[string]string

	// skipStreak counts consecutive no-source cycles per asset so that a
	// persistent outage is warned about once, not per tick.
	skipStreak map[string]int

	nowFn func() time.Time
}

// NewEngine creates an aggregation engine. emit receives every consensus
// price after it has been appended to the history buffer; it must not block.
func NewEngine(opts EngineOptions, store *TokenPriceStore, history *HistoryBuffer, emit func(AggregatedPrice), logger *logging.Logger) *Engine {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.Confidence == (ConfidenceParams{}) {
		opts.Confidence = DefaultConfidenceParams()
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}

	return &Engine{
		opts:       opts,
		store:      store,
		history:    history,
		emit:       emit,
		logger:     logger,
		ticks:      make(chan Tick, opts.QueueSize),
		lastInputs: make(map[string]string),
		skipStreak: make(map[string]int),
		nowFn:      time.Now,
	}
}

// HandleTick enqueues a tick for aggregation. It never blocks: when the
// queue is full the tick is dropped and the next one for the asset triggers
// a recomputation from the latest store state, so no price is lost for long.
func (e *Engine) HandleTick(tick Tick) {
	select {
	case e.ticks <- tick:
	default:
		e.logger.Warn("Tick queue full, dropping tick",
			"venue", tick.Venue, "asset", tick.Asset)
	}
}

// Run consumes the tick queue until the context is canceled.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info("Aggregation engine started",
		"stale_after", e.opts.StaleAfter, "queue_size", e.opts.QueueSize)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Aggregation engine stopped")
			return
		case tick := <-e.ticks:
			now := e.nowFn()
			e.store.Upsert(Quote{
				Venue:      tick.Venue,
				Asset:      tick.Asset,
				Price:      tick.Price,
				TradeTime:  tick.TradeTime,
				ReceivedAt: now,
				Volume:     tick.Volume,
			})
			e.Recompute(tick.Asset, now)
		}
	}
}

// Recompute performs one aggregation cycle for an asset at the given time.
// If no non-stale quote survives, nothing is emitted and the previous
// consensus price simply stands unrefreshed.
func (e *Engine) Recompute(asset string, now time.Time) {
	start := time.Now()

	quotes := e.store.Snapshot(asset)
	if len(quotes) == 0 {
		return
	}

	survivors := make([]Quote, 0, len(quotes))
	for venue, q := range quotes {
		if now.Sub(q.ReceivedAt) > e.opts.StaleAfter {
			e.logger.Debug("Excluding stale quote",
				"venue", venue, "asset", asset,
				"age", now.Sub(q.ReceivedAt))
			metrics.RecordStaleExclusion(venue, asset)
			continue
		}
		survivors = append(survivors, q)
	}

	if len(survivors) == 0 {
		metrics.RecordAggregationSkipped(asset)
		e.skipStreak[asset]++
		if e.skipStreak[asset]%10 == 1 && e.skipStreak[asset] > 1 {
			e.logger.Warn("No valid sources for asset",
				"asset", asset, "consecutive_skips", e.skipStreak[asset])
		}
		return
	}
	e.skipStreak[asset] = 0

	// Deterministic survivor order, and an input signature for idempotence.
	sort.Slice(survivors, func(i, j int) bool {
		return survivors[i].Venue < survivors[j].Venue
	})
	signature := inputSignature(survivors)
	if e.lastInputs[asset] == signature {
		return
	}

	price, minPrice, maxPrice, totalWeight := e.weightedMean(survivors)
	if !totalWeight.IsPositive() {
		metrics.RecordAggregationSkipped(asset)
		return
	}

	spreadPct := decimal.Zero
	if price.IsPositive() {
		spreadPct = maxPrice.Sub(minPrice).Div(price).Mul(decimal.NewFromInt(100))
	}

	venues := make([]string, len(survivors))
	for i, q := range survivors {
		venues[i] = q.Venue
	}

	aggregated := AggregatedPrice{
		Asset:       asset,
		Price:       price,
		Timestamp:   now.UnixMilli(),
		Confidence:  e.confidence(len(survivors), spreadPct),
		SourceCount: len(survivors),
		Sources:     venues,
		SpreadPct:   spreadPct,
		Min:         minPrice,
		Max:         maxPrice,
	}

	e.lastInputs[asset] = signature

	e.history.Append(asset, HistoryPoint{Price: price, Timestamp: now})
	if e.emit != nil {
		e.emit(aggregated)
	}

	metrics.RecordAggregation(asset, time.Since(start))
}

// weightedMean computes sum(price*weight)/sum(weight) over the survivors
// along with the min and max survivor price. Decimal arithmetic keeps the
// result exact enough for a later fixed-point conversion without drift.
func (e *Engine) weightedMean(survivors []Quote) (price, minPrice, maxPrice, totalWeight decimal.Decimal) {
	weightedSum := decimal.Zero
	totalWeight = decimal.Zero

	for i, q := range survivors {
		weight := decimal.NewFromFloat(e.weightOf(q.Venue))
		weightedSum = weightedSum.Add(q.Price.Mul(weight))
		totalWeight = totalWeight.Add(weight)

		if i == 0 || q.Price.LessThan(minPrice) {
			minPrice = q.Price
		}
		if i == 0 || q.Price.GreaterThan(maxPrice) {
			maxPrice = q.Price
		}
	}

	if totalWeight.IsPositive() {
		price = weightedSum.Div(totalWeight)
	}
	return price, minPrice, maxPrice, totalWeight
}

func (e *Engine) weightOf(venue string) float64 {
	if w, ok := e.opts.Weights[venue]; ok && w > 0 {
		return w
	}
	return 1.0
}

// confidence scores source count and agreement on a 0-100 scale. A single
// venue caps at the source share by construction, so single-source prices
// are never fully trusted.
func (e *Engine) confidence(sourceCount int, spreadPct decimal.Decimal) int {
	c := e.opts.Confidence

	sourceScore := math.Min(float64(sourceCount)/float64(c.SourceTarget), 1) * c.SourceScoreMax
	spreadScore := math.Max(0, c.SpreadScoreMax-spreadPct.InexactFloat64()*c.SpreadPenalty)

	confidence := int(math.Round(sourceScore + spreadScore))
	if confidence > 100 {
		confidence = 100
	}
	if confidence < 0 {
		confidence = 0
	}
	return confidence
}

// inputSignature identifies a surviving quote set. Venue, receipt time and
// price pin the inputs exactly; a recomputation over the same set is a no-op.
func inputSignature(survivors []Quote) string {
	var b strings.Builder
	for _, q := range survivors {
		fmt.Fprintf(&b, "%s@%d@%s;", q.Venue, q.ReceivedAt.UnixNano(), q.Price.String())
	}
	return b.String()
}
