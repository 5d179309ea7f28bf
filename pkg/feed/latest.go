package feed

import (
	"context"
	"sync"
)

// LatestStore keeps the most recent consensus price per asset for read-side
// consumers (REST API, on-chain publisher). It is a dispatcher sink.
type LatestStore struct {
	mu     sync.RWMutex
	latest map[string]AggregatedPrice
}

// NewLatestStore creates an empty store.
func NewLatestStore() *LatestStore {
	return &LatestStore{latest: make(map[string]AggregatedPrice)}
}

// Name implements Sink.
func (s *LatestStore) Name() string { return "latest" }

// Publish implements Sink.
func (s *LatestStore) Publish(_ context.Context, price AggregatedPrice) error {
	s.mu.Lock()
	s.latest[price.Asset] = price
	s.mu.Unlock()
	return nil
}

// Get returns the latest consensus price for an asset.
func (s *LatestStore) Get(asset string) (AggregatedPrice, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.latest[asset]
	return p, ok
}

// All returns a copy of the latest consensus price per asset.
func (s *LatestStore) All() map[string]AggregatedPrice {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]AggregatedPrice, len(s.latest))
	for asset, p := range s.latest {
		out[asset] = p
	}
	return out
}
