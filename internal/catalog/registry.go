package catalog

import (
	"context"
	"sort"

	dErrors "permit/pkg/domain-errors"
)

// Store provides raw catalog reads. Seeding and administration of the catalog
// live outside this core; the registry only reads.
type Store interface {
	ListModules(ctx context.Context) ([]Module, error)
	ListActions(ctx context.Context) ([]Action, error)
	ListPairs(ctx context.Context) ([]Pair, error)
}

// Registry answers validity and sensitivity questions about the permission
// surface. Lookups go through a Snapshot so one store round-trip serves an
// entire request.
type Registry struct {
	store Store
}

func NewRegistry(store Store) *Registry {
	return &Registry{store: store}
}

// Snapshot is an immutable view of the catalog materialized for one request.
// It replaces the per-request name→id caches of earlier iterations of this
// system with an explicit, scoped structure.
type Snapshot struct {
	modules map[string]Module
	actions map[string]Action
	pairs   map[Pair]struct{}
}

// Snapshot reads the catalog once and builds the lookup maps.
func (r *Registry) Snapshot(ctx context.Context) (*Snapshot, error) {
	modules, err := r.store.ListModules(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load modules")
	}
	actions, err := r.store.ListActions(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load actions")
	}
	pairs, err := r.store.ListPairs(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load module actions")
	}

	snap := &Snapshot{
		modules: make(map[string]Module, len(modules)),
		actions: make(map[string]Action, len(actions)),
		pairs:   make(map[Pair]struct{}, len(pairs)),
	}
	for _, module := range modules {
		snap.modules[module.Key] = module
	}
	for _, action := range actions {
		snap.actions[action.Key] = action
	}
	for _, pair := range pairs {
		snap.pairs[pair] = struct{}{}
	}
	return snap, nil
}

// IsValidPair reports whether the pair is declared on an active module.
// Grants referencing undeclared pairs are rejected upstream.
func (s *Snapshot) IsValidPair(pair Pair) bool {
	module, ok := s.modules[pair.ModuleKey]
	if !ok || !module.Active {
		return false
	}
	_, ok = s.pairs[pair]
	return ok
}

// IsSensitive reports whether the pair's action is flagged sensitive.
// Unknown actions are not sensitive; they fail IsValidPair first.
func (s *Snapshot) IsSensitive(pair Pair) bool {
	return s.actions[pair.ActionKey].IsSensitive
}

// Modules lists active modules sorted by display name.
func (s *Snapshot) Modules() []Module {
	modules := make([]Module, 0, len(s.modules))
	for _, module := range s.modules {
		if module.Active {
			modules = append(modules, module)
		}
	}
	sort.Slice(modules, func(i, j int) bool {
		return modules[i].DisplayName < modules[j].DisplayName
	})
	return modules
}

// ActionsForModule lists the actions declared for a module, sorted by key.
func (s *Snapshot) ActionsForModule(moduleKey string) []Action {
	var actions []Action
	for pair := range s.pairs {
		if pair.ModuleKey != moduleKey {
			continue
		}
		if action, ok := s.actions[pair.ActionKey]; ok {
			actions = append(actions, action)
		}
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i].Key < actions[j].Key })
	return actions
}

// SensitiveActions lists actions that are sensitive or require approval.
func (s *Snapshot) SensitiveActions() []Action {
	var actions []Action
	for _, action := range s.actions {
		if action.IsSensitive || action.RequiresApproval {
			actions = append(actions, action)
		}
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i].Key < actions[j].Key })
	return actions
}
