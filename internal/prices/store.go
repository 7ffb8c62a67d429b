// Package prices holds the latest quote per instrument in memory so that
// watchlist views can render live valuation without hitting the quote
// provider on every request.
package prices

import (
	"sync"
	"time"

	"stockwatch/internal/provider"
)

// Store is a concurrency-safe cache of the most recent quote per code.
// The evaluation engine refreshes it each cycle; readers see whatever the
// last completed fetch produced.
type Store struct {
	mu         sync.RWMutex
	quotes     map[string]provider.Quote
	lastSyncAt time.Time
}

// NewStore creates an empty price store.
func NewStore() *Store {
	return &Store{quotes: make(map[string]provider.Quote)}
}

// Update merges the given quotes into the store and stamps the sync time.
func (s *Store) Update(quotes map[string]provider.Quote) {
	if len(quotes) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for code, q := range quotes {
		s.quotes[code] = q
	}
	s.lastSyncAt = time.Now()
}

// Get returns the latest quote for a code, if one has been recorded.
func (s *Store) Get(code string) (provider.Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[code]
	return q, ok
}

// Snapshot returns a copy of every cached quote.
func (s *Store) Snapshot() map[string]provider.Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]provider.Quote, len(s.quotes))
	for code, q := range s.quotes {
		out[code] = q
	}
	return out
}

// LastSyncAt returns when the store was last updated; zero if never.
func (s *Store) LastSyncAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSyncAt
}
