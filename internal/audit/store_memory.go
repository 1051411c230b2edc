package audit

import (
	"context"
	"sync"
)

// InMemoryStore keeps audit entries in memory for tests/dev.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewInMemoryStore constructs an empty in-memory audit store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *InMemoryStore) List(_ context.Context, filter Filter, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Entry
	// Newest first.
	for i := len(s.entries) - 1; i >= 0; i-- {
		if !filter.Matches(s.entries[i]) {
			continue
		}
		matched = append(matched, s.entries[i])
		if limit > 0 && len(matched) == limit {
			break
		}
	}
	return matched, nil
}

// Count returns the total number of entries regardless of filter. Tests use
// it to assert the one-audit-entry-per-mutation invariant.
func (s *InMemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
