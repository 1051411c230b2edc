package resolution

import (
	"context"
	"log/slog"
	"time"

	"permit/internal/audit"
	"permit/internal/catalog"
	"permit/internal/permission"
	"permit/internal/platform/metrics"
	id "permit/pkg/domain"
	"permit/pkg/requestcontext"
)

// OverrideReader is the slice of the override store resolution needs.
type OverrideReader interface {
	ListActiveByUser(ctx context.Context, userID id.UserID) ([]*permission.Override, error)
}

// GroupReader is the slice of the group store resolution needs.
type GroupReader interface {
	UserGrantedPairs(ctx context.Context, userID id.UserID, asOf time.Time) ([]catalog.Pair, error)
}

// Service answers permission checks. Checks are read-only and never return
// an error for well-formed input: store or cache trouble degrades to a
// fail-closed denial, logged but not surfaced.
type Service struct {
	registry  *catalog.Registry
	overrides OverrideReader
	groups    GroupReader
	ledger    *audit.Ledger
	cache     *SnapshotCache
	logger    *slog.Logger
	metrics   *metrics.Metrics
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

func WithCache(cache *SnapshotCache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

func New(registry *catalog.Registry, overrides OverrideReader, groups GroupReader, ledger *audit.Ledger, opts ...Option) *Service {
	s := &Service{
		registry:  registry,
		overrides: overrides,
		groups:    groups,
		ledger:    ledger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Check resolves whether the user may perform the action right now. Denied
// sensitive actions leave an access_denied audit entry.
func (s *Service) Check(ctx context.Context, userID id.UserID, pair catalog.Pair, evalCtx Context) Decision {
	started := time.Now()
	if evalCtx.Now.IsZero() {
		evalCtx.Now = requestcontext.Now(ctx)
	}

	snap, err := s.registry.Snapshot(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "catalog unavailable, failing closed",
			"user_id", userID.String(), "pair", pair.String(), "error", err)
		return s.finish(ctx, userID, pair, nil,
			Decision{Allow: false, Reason: ReasonNoGrant, RiskLevel: audit.RiskMedium}, started)
	}
	if !snap.IsValidPair(pair) {
		return s.finish(ctx, userID, pair, snap,
			Decision{Allow: false, Reason: ReasonUndefinedPermission, RiskLevel: audit.RiskMedium}, started)
	}

	userSnap := s.loadSnapshot(ctx, userID, evalCtx.Now)
	decision := Evaluate(userSnap.overrideFor(pair), userSnap.groupAllows(pair), evalCtx)
	return s.finish(ctx, userID, pair, snap, decision, started)
}

// AccessibleModules lists the active modules the user can at least view.
func (s *Service) AccessibleModules(ctx context.Context, userID id.UserID, evalCtx Context) ([]catalog.Module, error) {
	if evalCtx.Now.IsZero() {
		evalCtx.Now = requestcontext.Now(ctx)
	}
	snap, err := s.registry.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	userSnap := s.loadSnapshot(ctx, userID, evalCtx.Now)

	var modules []catalog.Module
	for _, module := range snap.Modules() {
		pair := catalog.Pair{ModuleKey: module.Key, ActionKey: "view"}
		if !snap.IsValidPair(pair) {
			continue
		}
		decision := Evaluate(userSnap.overrideFor(pair), userSnap.groupAllows(pair), evalCtx)
		if decision.Allow {
			modules = append(modules, module)
		}
	}
	return modules, nil
}

// Matrix resolves every module/action pair for the user, for display. No
// audit entries are written: the matrix is an inspection tool, not an
// enforcement path.
func (s *Service) Matrix(ctx context.Context, userID id.UserID, evalCtx Context) (map[string]map[string]Decision, error) {
	if evalCtx.Now.IsZero() {
		evalCtx.Now = requestcontext.Now(ctx)
	}
	snap, err := s.registry.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	userSnap := s.loadSnapshot(ctx, userID, evalCtx.Now)

	matrix := make(map[string]map[string]Decision)
	for _, module := range snap.Modules() {
		row := make(map[string]Decision)
		for _, action := range snap.ActionsForModule(module.Key) {
			pair := catalog.Pair{ModuleKey: module.Key, ActionKey: action.Key}
			row[action.Key] = Evaluate(userSnap.overrideFor(pair), userSnap.groupAllows(pair), evalCtx)
		}
		matrix[module.Key] = row
	}
	return matrix, nil
}

// loadSnapshot consults the cache first, then the stores. A store failure
// yields a partial (possibly empty) snapshot that fails closed; the cache
// is only populated from fully successful reads.
func (s *Service) loadSnapshot(ctx context.Context, userID id.UserID, asOf time.Time) *userSnapshot {
	if cached := s.cache.get(ctx, userID); cached != nil {
		return cached
	}

	snap := &userSnapshot{}
	complete := true

	overrides, err := s.overrides.ListActiveByUser(ctx, userID)
	if err != nil {
		s.logger.ErrorContext(ctx, "override read failed, failing closed",
			"user_id", userID.String(), "error", err)
		complete = false
	} else {
		snap.Overrides = overrides
	}

	pairs, err := s.groups.UserGrantedPairs(ctx, userID, asOf)
	if err != nil {
		s.logger.ErrorContext(ctx, "group read failed, failing closed",
			"user_id", userID.String(), "error", err)
		complete = false
	} else {
		snap.GroupPairs = pairs
	}

	if complete {
		s.cache.set(ctx, userID, snap)
	}
	return snap
}

// finish records metrics and, for denied sensitive actions, the audit trail.
func (s *Service) finish(ctx context.Context, userID id.UserID, pair catalog.Pair, snap *catalog.Snapshot, decision Decision, started time.Time) Decision {
	if s.metrics != nil {
		s.metrics.IncrementCheck(decision.Allow)
		if !decision.Allow {
			s.metrics.IncrementDenial(decision.Reason)
		}
		s.metrics.CheckDurationMs.Observe(float64(time.Since(started).Microseconds()) / 1000)
	}

	// An undefined pair is a configuration problem, not an access attempt;
	// it never reaches the audit trail even when the action key is flagged
	// sensitive elsewhere in the catalog.
	if !decision.Allow && decision.Reason != ReasonUndefinedPermission &&
		snap != nil && snap.IsSensitive(pair) && s.ledger != nil {
		entry := audit.Entry{
			ActorID:      userID,
			TargetUserID: &userID,
			ModuleKey:    pair.ModuleKey,
			ActionKey:    pair.ActionKey,
			ActionType:   audit.ActionAccessDenied,
			RiskLevel:    decision.RiskLevel,
			Details:      audit.Details{"reason": decision.Reason},
			CreatedAt:    requestcontext.Now(ctx),
		}
		if err := s.ledger.Append(ctx, entry); err != nil {
			s.logger.ErrorContext(ctx, "denied-access audit append failed",
				"user_id", userID.String(), "pair", pair.String(), "error", err)
		}
	}
	return decision
}
