package service

import (
	"context"
	"log/slog"
	"time"

	"permit/internal/audit"
	"permit/internal/catalog"
	"permit/internal/permission"
	"permit/internal/platform/metrics"
	id "permit/pkg/domain"
	dErrors "permit/pkg/domain-errors"
)

// GroupStore persists groups, their permission sets, and memberships.
type GroupStore interface {
	CreateGroup(ctx context.Context, group *permission.Group) error
	GetGroup(ctx context.Context, groupID id.GroupID) (*permission.Group, error)
	ListGroups(ctx context.Context) ([]*permission.Group, error)
	ReplacePermissions(ctx context.Context, groupID id.GroupID, perms []permission.GroupPermission) error
	GrantedPairs(ctx context.Context, groupID id.GroupID) ([]catalog.Pair, error)
	InsertMembership(ctx context.Context, membership *permission.Membership) error
	DeactivateMembership(ctx context.Context, groupID id.GroupID, userID id.UserID, reason string, endedAt time.Time) error
	ActiveMembers(ctx context.Context, groupID id.GroupID, asOf time.Time) ([]id.UserID, error)
	GroupsOf(ctx context.Context, userID id.UserID, asOf time.Time) ([]*permission.Group, error)
}

// OverrideStore persists per-user permission overrides. Rows are superseded,
// never updated in place.
type OverrideStore interface {
	Insert(ctx context.Context, row *permission.Override) error
	DeactivateActive(ctx context.Context, userID id.UserID, pair catalog.Pair, at time.Time) (bool, error)
	ListActiveByUser(ctx context.Context, userID id.UserID) ([]*permission.Override, error)
}

// TemplateStore persists named permission pair-sets.
type TemplateStore interface {
	Create(ctx context.Context, tpl *permission.Template) error
	Get(ctx context.Context, templateID id.TemplateID) (*permission.Template, error)
	List(ctx context.Context) ([]*permission.Template, error)
}

// CacheInvalidator drops cached resolution snapshots after a mutation
// commits. Failures are logged, never surfaced: the cache self-heals on TTL.
type CacheInvalidator interface {
	InvalidateUser(ctx context.Context, userID id.UserID) error
}

// DefaultHighValueThreshold is the amount ceiling above which a sensitive
// grant is tagged critical instead of high.
const DefaultHighValueThreshold = 1000

// Service is the mutation layer: every write to permission state goes
// through here, inside one transaction, with exactly one audit entry.
type Service struct {
	registry  *catalog.Registry
	groups    GroupStore
	overrides OverrideStore
	templates TemplateStore
	ledger    *audit.Ledger
	tx        StoreTx

	logger             *slog.Logger
	metrics            *metrics.Metrics
	cache              CacheInvalidator
	highValueThreshold float64
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTx(tx StoreTx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

func WithCacheInvalidator(cache CacheInvalidator) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

func WithHighValueThreshold(threshold float64) Option {
	return func(s *Service) {
		s.highValueThreshold = threshold
	}
}

func New(registry *catalog.Registry, groups GroupStore, overrides OverrideStore, templates TemplateStore, ledger *audit.Ledger, opts ...Option) *Service {
	s := &Service{
		registry:           registry,
		groups:             groups,
		overrides:          overrides,
		templates:          templates,
		ledger:             ledger,
		highValueThreshold: DefaultHighValueThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tx == nil {
		s.tx = newInMemoryStoreTx()
	}
	return s
}

func (s *Service) snapshot(ctx context.Context) (*catalog.Snapshot, error) {
	snap, err := s.registry.Snapshot(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load permission catalog")
	}
	return snap, nil
}

func requireActor(actorID id.UserID) error {
	if actorID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "actor is required")
	}
	return nil
}

// invalidateUsers runs after commit. A stale snapshot is tolerable for one
// TTL, so cache errors are logged and swallowed.
func (s *Service) invalidateUsers(ctx context.Context, userIDs ...id.UserID) {
	if s.cache == nil {
		return
	}
	for _, userID := range userIDs {
		if err := s.cache.InvalidateUser(ctx, userID); err != nil {
			s.logger.WarnContext(ctx, "cache invalidation failed",
				"user_id", userID.String(), "error", err)
		}
	}
}

func (s *Service) incrementMutation(actionType audit.ActionType) {
	if s.metrics != nil {
		s.metrics.IncrementMutation(string(actionType))
	}
}
