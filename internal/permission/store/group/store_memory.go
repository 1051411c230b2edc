package group

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"permit/internal/catalog"
	"permit/internal/permission"
	id "permit/pkg/domain"
	"permit/pkg/platform/sentinel"
)

// InMemoryStore keeps groups, group permissions, and memberships in memory
// for tests/dev.
type InMemoryStore struct {
	mu          sync.RWMutex
	groups      map[id.GroupID]*permission.Group
	permissions map[id.GroupID][]permission.GroupPermission
	memberships []*permission.Membership
}

// NewInMemoryStore constructs an empty in-memory group store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		groups:      make(map[id.GroupID]*permission.Group),
		permissions: make(map[id.GroupID][]permission.GroupPermission),
	}
}

func (s *InMemoryStore) CreateGroup(_ context.Context, group *permission.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.groups {
		if strings.EqualFold(existing.Name, group.Name) {
			return fmt.Errorf("group name %q taken: %w", group.Name, sentinel.ErrConflict)
		}
	}
	copied := *group
	s.groups[group.ID] = &copied
	return nil
}

func (s *InMemoryStore) GetGroup(_ context.Context, groupID id.GroupID) (*permission.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if group, ok := s.groups[groupID]; ok {
		copied := *group
		return &copied, nil
	}
	return nil, fmt.Errorf("group %s: %w", groupID, sentinel.ErrNotFound)
}

func (s *InMemoryStore) ListGroups(_ context.Context) ([]*permission.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	groups := make([]*permission.Group, 0, len(s.groups))
	for _, group := range s.groups {
		copied := *group
		groups = append(groups, &copied)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups, nil
}

// ReplacePermissions swaps the group's permission set in one step. The new
// slice is built before the swap so readers never observe a partial set.
func (s *InMemoryStore) ReplacePermissions(_ context.Context, groupID id.GroupID, perms []permission.GroupPermission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[groupID]; !ok {
		return fmt.Errorf("group %s: %w", groupID, sentinel.ErrNotFound)
	}
	s.permissions[groupID] = append([]permission.GroupPermission(nil), perms...)
	return nil
}

func (s *InMemoryStore) GrantedPairs(_ context.Context, groupID id.GroupID) ([]catalog.Pair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.groups[groupID]; !ok {
		return nil, fmt.Errorf("group %s: %w", groupID, sentinel.ErrNotFound)
	}
	var pairs []catalog.Pair
	for _, perm := range s.permissions[groupID] {
		if perm.Granted {
			pairs = append(pairs, perm.Pair)
		}
	}
	return pairs, nil
}

func (s *InMemoryStore) InsertMembership(_ context.Context, membership *permission.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[membership.GroupID]; !ok {
		return fmt.Errorf("group %s: %w", membership.GroupID, sentinel.ErrNotFound)
	}
	for _, existing := range s.memberships {
		if existing.GroupID == membership.GroupID &&
			existing.UserID == membership.UserID &&
			existing.ActiveAt(membership.CreatedAt) {
			return fmt.Errorf("active membership exists: %w", sentinel.ErrConflict)
		}
	}
	copied := *membership
	s.memberships = append(s.memberships, &copied)
	return nil
}

func (s *InMemoryStore) DeactivateMembership(_ context.Context, groupID id.GroupID, userID id.UserID, reason string, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, membership := range s.memberships {
		if membership.GroupID == groupID && membership.UserID == userID && membership.Active {
			membership.Active = false
			membership.EndedReason = reason
			ended := endedAt
			membership.EndedAt = &ended
			return nil
		}
	}
	return fmt.Errorf("no active membership: %w", sentinel.ErrNotFound)
}

func (s *InMemoryStore) ActiveMembers(_ context.Context, groupID id.GroupID, asOf time.Time) ([]id.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var members []id.UserID
	for _, membership := range s.memberships {
		if membership.GroupID == groupID && membership.ActiveAt(asOf) {
			members = append(members, membership.UserID)
		}
	}
	return members, nil
}

func (s *InMemoryStore) GroupsOf(_ context.Context, userID id.UserID, asOf time.Time) ([]*permission.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var groups []*permission.Group
	for _, membership := range s.memberships {
		if membership.UserID != userID || !membership.ActiveAt(asOf) {
			continue
		}
		group, ok := s.groups[membership.GroupID]
		if !ok || !group.Active {
			continue
		}
		clone := *group
		groups = append(groups, &clone)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups, nil
}

// UserGrantedPairs returns every pair granted to the user through active
// memberships in active groups, as of the given instant.
func (s *InMemoryStore) UserGrantedPairs(_ context.Context, userID id.UserID, asOf time.Time) ([]catalog.Pair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[catalog.Pair]struct{})
	var pairs []catalog.Pair
	for _, membership := range s.memberships {
		if membership.UserID != userID || !membership.ActiveAt(asOf) {
			continue
		}
		group, ok := s.groups[membership.GroupID]
		if !ok || !group.Active {
			continue
		}
		for _, perm := range s.permissions[membership.GroupID] {
			if !perm.Granted {
				continue
			}
			if _, dup := seen[perm.Pair]; dup {
				continue
			}
			seen[perm.Pair] = struct{}{}
			pairs = append(pairs, perm.Pair)
		}
	}
	return pairs, nil
}
