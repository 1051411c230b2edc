package template

import (
	"context"
	"sort"
	"strings"
	"sync"

	"permit/internal/catalog"
	"permit/internal/permission"
	id "permit/pkg/domain"
	"permit/pkg/platform/sentinel"
)

// InMemoryStore keeps templates in process memory. Used by unit tests and
// the memory-backed server mode.
type InMemoryStore struct {
	mu        sync.RWMutex
	templates map[id.TemplateID]*permission.Template
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{templates: make(map[id.TemplateID]*permission.Template)}
}

func (s *InMemoryStore) Create(_ context.Context, tpl *permission.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.templates {
		if strings.EqualFold(existing.Name, tpl.Name) {
			return sentinel.ErrConflict
		}
	}
	clone := *tpl
	clone.Pairs = append([]catalog.Pair(nil), tpl.Pairs...)
	s.templates[tpl.ID] = &clone
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, templateID id.TemplateID) (*permission.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tpl, ok := s.templates[templateID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *tpl
	clone.Pairs = append([]catalog.Pair(nil), tpl.Pairs...)
	return &clone, nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*permission.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	templates := make([]*permission.Template, 0, len(s.templates))
	for _, tpl := range s.templates {
		clone := *tpl
		clone.Pairs = append([]catalog.Pair(nil), tpl.Pairs...)
		templates = append(templates, &clone)
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].Name < templates[j].Name })
	return templates, nil
}
