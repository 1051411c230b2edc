package override

import (
	"context"
	"sync"
	"time"

	"permit/internal/catalog"
	"permit/internal/permission"
	id "permit/pkg/domain"
)

// InMemoryStore keeps individual overrides in memory for tests/dev. Rows are
// append-only; supersession flips Active on the prior row.
type InMemoryStore struct {
	mu   sync.RWMutex
	rows []*permission.Override
}

// NewInMemoryStore constructs an empty in-memory override store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Insert(_ context.Context, row *permission.Override) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *row
	s.rows = append(s.rows, &copied)
	return nil
}

// DeactivateActive flips the active row for (userID, pair) to inactive,
// reporting whether a row was superseded. Not finding one is a normal state,
// not an error: the first grant for a key has nothing to supersede.
func (s *InMemoryStore) DeactivateActive(_ context.Context, userID id.UserID, pair catalog.Pair, _ time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.Active && row.UserID == userID && row.Pair == pair {
			row.Active = false
			return true, nil
		}
	}
	return false, nil
}

// ActiveOverride returns the single active row for (userID, pair), or nil if
// none exists. Expiry is the resolution engine's concern, so expired rows
// are returned as-is.
func (s *InMemoryStore) ActiveOverride(_ context.Context, userID id.UserID, pair catalog.Pair) (*permission.Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, row := range s.rows {
		if row.Active && row.UserID == userID && row.Pair == pair {
			copied := *row
			return &copied, nil
		}
	}
	return nil, nil
}

// ListActiveByUser returns all active rows for the user.
func (s *InMemoryStore) ListActiveByUser(_ context.Context, userID id.UserID) ([]*permission.Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rows []*permission.Override
	for _, row := range s.rows {
		if row.Active && row.UserID == userID {
			copied := *row
			rows = append(rows, &copied)
		}
	}
	return rows, nil
}

// History returns every row ever written for (userID, pair), oldest first.
// Superseded and expired rows stay queryable for audit.
func (s *InMemoryStore) History(_ context.Context, userID id.UserID, pair catalog.Pair) ([]*permission.Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rows []*permission.Override
	for _, row := range s.rows {
		if row.UserID == userID && row.Pair == pair {
			copied := *row
			rows = append(rows, &copied)
		}
	}
	return rows, nil
}
