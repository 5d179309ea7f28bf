package feed

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultHistoryCapacity is the per-asset ring capacity when none is configured.
const DefaultHistoryCapacity = 1000

// HistoryBuffer keeps a bounded FIFO of consensus prices per asset and
// serves time-weighted average queries over a trailing window.
type HistoryBuffer struct {
	mu       sync.RWMutex
	capacity int
	series   map[string]*ring
}

type ring struct {
	points []HistoryPoint
	head   int // next write position
	count  int
}

// NewHistoryBuffer creates a buffer with the given per-asset capacity.
func NewHistoryBuffer(capacity int) *HistoryBuffer {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &HistoryBuffer{
		capacity: capacity,
		series:   make(map[string]*ring),
	}
}

// Append adds a point for an asset, evicting the oldest at capacity. O(1).
func (h *HistoryBuffer) Append(asset string, point HistoryPoint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.series[asset]
	if !ok {
		r = &ring{points: make([]HistoryPoint, h.capacity)}
		h.series[asset] = r
	}

	r.points[r.head] = point
	r.head = (r.head + 1) % h.capacity
	if r.count < h.capacity {
		r.count++
	}
}

// Len returns the number of points stored for an asset.
func (h *HistoryBuffer) Len(asset string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if r, ok := h.series[asset]; ok {
		return r.count
	}
	return 0
}

// Recent returns up to n points for an asset, newest first.
func (h *HistoryBuffer) Recent(asset string, n int) []HistoryPoint {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r, ok := h.series[asset]
	if !ok {
		return nil
	}
	if n <= 0 || n > r.count {
		n = r.count
	}

	out := make([]HistoryPoint, 0, n)
	for i := 0; i < n; i++ {
		idx := (r.head - 1 - i + h.capacity) % h.capacity
		out = append(out, r.points[idx])
	}
	return out
}

// TWAP computes the time-weighted average price over the trailing window
// ending at now. Each sample is weighted by its holding time: the span until
// the next-newer sample (or now for the newest), clipped to the window. The
// first sample older than the window contributes its clipped overlap, then
// the walk stops. Weighting by holding time rather than sample count matters
// because tick arrival is irregular across venues.
//
// Returns false if no sample falls inside the window.
func (h *HistoryBuffer) TWAP(asset string, window time.Duration, now time.Time) (decimal.Decimal, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r, ok := h.series[asset]
	if !ok || r.count == 0 {
		return decimal.Zero, false
	}

	cutoff := now.Add(-window)
	sum := decimal.Zero
	var totalMs int64
	inWindow := 0
	next := now
	var newestInWindow decimal.Decimal

	for i := 0; i < r.count; i++ {
		idx := (r.head - 1 - i + h.capacity) % h.capacity
		p := r.points[idx]

		if p.Timestamp.Before(cutoff) {
			// Held from before the window start until the next-newer
			// sample; only the in-window overlap counts.
			if overlap := next.Sub(cutoff).Milliseconds(); overlap > 0 {
				sum = sum.Add(p.Price.Mul(decimal.NewFromInt(overlap)))
				totalMs += overlap
			}
			break
		}

		if inWindow == 0 {
			newestInWindow = p.Price
		}
		inWindow++

		if dt := next.Sub(p.Timestamp).Milliseconds(); dt > 0 {
			sum = sum.Add(p.Price.Mul(decimal.NewFromInt(dt)))
			totalMs += dt
		}
		next = p.Timestamp
	}

	if inWindow == 0 {
		return decimal.Zero, false
	}
	if totalMs == 0 {
		// All in-window holding time collapsed to zero (e.g. a single
		// sample at now); the sample itself is the average.
		return newestInWindow, true
	}

	return sum.Div(decimal.NewFromInt(totalMs)), true
}
