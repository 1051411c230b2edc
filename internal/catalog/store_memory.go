package catalog

import (
	"context"
	"sync"
)

// InMemoryStore holds the catalog in memory for tests/dev.
type InMemoryStore struct {
	mu      sync.RWMutex
	modules []Module
	actions []Action
	pairs   []Pair
}

// NewInMemoryStore constructs an empty in-memory catalog store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Load replaces the catalog contents. Used by seeding and test setup.
func (s *InMemoryStore) Load(modules []Module, actions []Action, pairs []Pair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modules = append([]Module(nil), modules...)
	s.actions = append([]Action(nil), actions...)
	s.pairs = append([]Pair(nil), pairs...)
}

func (s *InMemoryStore) ListModules(_ context.Context) ([]Module, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Module(nil), s.modules...), nil
}

func (s *InMemoryStore) ListActions(_ context.Context) ([]Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Action(nil), s.actions...), nil
}

func (s *InMemoryStore) ListPairs(_ context.Context) ([]Pair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Pair(nil), s.pairs...), nil
}
