package feed

import "sync"

// TokenPriceStore holds the latest quote per (asset, venue). It is the only
// structure with multiple writers (one per connector), so every mutation is
// serialized through a per-asset lock.
type TokenPriceStore struct {
	mu     sync.RWMutex
	assets map[string]*assetQuotes
}

type assetQuotes struct {
	mu     sync.RWMutex
	quotes map[string]Quote // venue -> latest quote
}

// NewTokenPriceStore creates an empty store.
func NewTokenPriceStore() *TokenPriceStore {
	return &TokenPriceStore{
		assets: make(map[string]*assetQuotes),
	}
}

// Upsert replaces the quote for (quote.Asset, quote.Venue), latest wins.
func (s *TokenPriceStore) Upsert(quote Quote) {
	aq := s.forAsset(quote.Asset)
	aq.mu.Lock()
	aq.quotes[quote.Venue] = quote
	aq.mu.Unlock()
}

// Snapshot returns a read-consistent copy of the venue -> quote view for an
// asset. The copy is safe to use after the call without holding any lock.
func (s *TokenPriceStore) Snapshot(asset string) map[string]Quote {
	s.mu.RLock()
	aq, ok := s.assets[asset]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	aq.mu.RLock()
	defer aq.mu.RUnlock()

	out := make(map[string]Quote, len(aq.quotes))
	for venue, q := range aq.quotes {
		out[venue] = q
	}
	return out
}

// Assets returns all assets that have at least one quote.
func (s *TokenPriceStore) Assets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.assets))
	for asset := range s.assets {
		out = append(out, asset)
	}
	return out
}

func (s *TokenPriceStore) forAsset(asset string) *assetQuotes {
	s.mu.RLock()
	aq, ok := s.assets[asset]
	s.mu.RUnlock()
	if ok {
		return aq
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if aq, ok = s.assets[asset]; ok {
		return aq
	}
	aq = &assetQuotes{quotes: make(map[string]Quote)}
	s.assets[asset] = aq
	return aq
}
