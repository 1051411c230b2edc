package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"permit/internal/audit"
	"permit/internal/catalog"
	"permit/internal/permission"
	id "permit/pkg/domain"
	dErrors "permit/pkg/domain-errors"
	"permit/pkg/platform/sentinel"
	"permit/pkg/requestcontext"
)

// CreateGroupRequest names a new group and its initial permission set.
type CreateGroupRequest struct {
	Name         string
	Description  string
	Color        string
	InitialPairs []catalog.Pair
}

func (s *Service) CreateGroup(ctx context.Context, req CreateGroupRequest) (*permission.Group, error) {
	actorID := requestcontext.ActorID(ctx)
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "group name is required")
	}

	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	valid, skipped := splitPairs(snap, req.InitialPairs)

	now := requestcontext.Now(ctx)
	group := &permission.Group{
		ID:          id.GroupID(uuid.New()),
		Name:        name,
		Description: req.Description,
		Color:       req.Color,
		Active:      true,
		CreatedBy:   actorID,
		CreatedAt:   now,
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.groups.CreateGroup(txCtx, group); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "group name must be unique")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create group")
		}
		if len(valid) > 0 {
			perms := groupPermissions(group.ID, valid, actorID)
			if err := s.groups.ReplacePermissions(txCtx, group.ID, perms); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to set group permissions")
			}
		}
		return s.ledger.Append(txCtx, audit.Entry{
			ActorID:    actorID,
			ActionType: audit.ActionGroupCreated,
			RiskLevel:  pairSetRisk(snap, valid),
			Details:    replaceDetails(group.ID, valid, skipped),
			CreatedAt:  now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.incrementMutation(audit.ActionGroupCreated)
	return group, nil
}

func (s *Service) GetGroup(ctx context.Context, groupID id.GroupID) (*permission.Group, error) {
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "group not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load group")
	}
	return group, nil
}

func (s *Service) ListGroups(ctx context.Context) ([]*permission.Group, error) {
	groups, err := s.groups.ListGroups(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list groups")
	}
	return groups, nil
}

func (s *Service) GroupsOf(ctx context.Context, userID id.UserID) ([]*permission.Group, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "user is required")
	}
	groups, err := s.groups.GroupsOf(ctx, userID, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list user groups")
	}
	return groups, nil
}

func (s *Service) GroupGrantedPairs(ctx context.Context, groupID id.GroupID) ([]catalog.Pair, error) {
	if _, err := s.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	pairs, err := s.groups.GrantedPairs(ctx, groupID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list group permissions")
	}
	return pairs, nil
}

// ReplaceResult reports what an atomic permission replacement did.
type ReplaceResult struct {
	ReplacedCount int
	SkippedPairs  []catalog.Pair
}

// ReplaceGroupPermissions swaps the group's entire permission set in one
// transaction. Pairs missing from the catalog are skipped, not fatal; any
// storage failure rolls the whole replacement back, leaving the prior set
// intact.
func (s *Service) ReplaceGroupPermissions(ctx context.Context, groupID id.GroupID, pairs []catalog.Pair) (ReplaceResult, error) {
	actorID := requestcontext.ActorID(ctx)
	if err := requireActor(actorID); err != nil {
		return ReplaceResult{}, err
	}

	snap, err := s.snapshot(ctx)
	if err != nil {
		return ReplaceResult{}, err
	}
	valid, skipped := splitPairs(snap, pairs)

	now := requestcontext.Now(ctx)
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		perms := groupPermissions(groupID, valid, actorID)
		if err := s.groups.ReplacePermissions(txCtx, groupID, perms); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "group not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to replace group permissions")
		}
		return s.ledger.Append(txCtx, audit.Entry{
			ActorID:    actorID,
			ActionType: audit.ActionGroupPermissionsReplaced,
			RiskLevel:  pairSetRisk(snap, valid),
			Details:    replaceDetails(groupID, valid, skipped),
			CreatedAt:  now,
		})
	})
	if err != nil {
		return ReplaceResult{}, err
	}

	s.incrementMutation(audit.ActionGroupPermissionsReplaced)
	s.invalidateGroupMembers(ctx, groupID)
	return ReplaceResult{ReplacedCount: len(valid), SkippedPairs: skipped}, nil
}

// AddMember enrolls a user in a group, optionally until an expiry.
func (s *Service) AddMember(ctx context.Context, groupID id.GroupID, userID id.UserID, expiresAt *time.Time) (id.MembershipID, error) {
	actorID := requestcontext.ActorID(ctx)
	if err := requireActor(actorID); err != nil {
		return id.MembershipID{}, err
	}
	if userID.IsNil() {
		return id.MembershipID{}, dErrors.New(dErrors.CodeInvalidInput, "user is required")
	}

	now := requestcontext.Now(ctx)
	if expiresAt != nil && !expiresAt.After(now) {
		return id.MembershipID{}, dErrors.New(dErrors.CodeValidation, "expiry must be in the future")
	}

	membershipID := id.MembershipID(uuid.New())
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		membership := &permission.Membership{
			ID:        membershipID,
			GroupID:   groupID,
			UserID:    userID,
			GrantedBy: actorID,
			ExpiresAt: expiresAt,
			Active:    true,
			CreatedAt: now,
		}
		if err := s.groups.InsertMembership(txCtx, membership); err != nil {
			switch {
			case errors.Is(err, sentinel.ErrNotFound):
				return dErrors.New(dErrors.CodeNotFound, "group not found")
			case errors.Is(err, sentinel.ErrConflict):
				return dErrors.New(dErrors.CodeConflict, "user is already an active member")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to add member")
		}
		return s.ledger.Append(txCtx, audit.Entry{
			ActorID:      actorID,
			TargetUserID: &userID,
			ActionType:   audit.ActionGroupJoined,
			RiskLevel:    audit.RiskLow,
			Details:      membershipDetails(groupID, expiresAt),
			CreatedAt:    now,
		})
	})
	if err != nil {
		return id.MembershipID{}, err
	}

	s.incrementMutation(audit.ActionGroupJoined)
	s.invalidateUsers(ctx, userID)
	return membershipID, nil
}

// RemoveMember deactivates the user's active membership, recording why.
func (s *Service) RemoveMember(ctx context.Context, groupID id.GroupID, userID id.UserID, reason string) error {
	actorID := requestcontext.ActorID(ctx)
	if err := requireActor(actorID); err != nil {
		return err
	}
	if userID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "user is required")
	}

	now := requestcontext.Now(ctx)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.groups.DeactivateMembership(txCtx, groupID, userID, reason, now); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "no active membership")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove member")
		}
		details := audit.Details{"group_id": groupID.String()}
		if reason != "" {
			details["reason"] = reason
		}
		return s.ledger.Append(txCtx, audit.Entry{
			ActorID:      actorID,
			TargetUserID: &userID,
			ActionType:   audit.ActionGroupLeft,
			RiskLevel:    audit.RiskLow,
			Details:      details,
			CreatedAt:    now,
		})
	})
	if err != nil {
		return err
	}

	s.incrementMutation(audit.ActionGroupLeft)
	s.invalidateUsers(ctx, userID)
	return nil
}

// invalidateGroupMembers drops cached snapshots for everyone a group-level
// change may affect.
func (s *Service) invalidateGroupMembers(ctx context.Context, groupID id.GroupID) {
	if s.cache == nil {
		return
	}
	members, err := s.groups.ActiveMembers(ctx, groupID, requestcontext.Now(ctx))
	if err != nil {
		s.logger.WarnContext(ctx, "cache invalidation skipped, member lookup failed",
			"group_id", groupID.String(), "error", err)
		return
	}
	s.invalidateUsers(ctx, members...)
}

// splitPairs partitions the request into catalog-valid pairs and skipped
// leftovers, deduplicating as it goes.
func splitPairs(snap *catalog.Snapshot, pairs []catalog.Pair) (valid, skipped []catalog.Pair) {
	seen := make(map[catalog.Pair]struct{}, len(pairs))
	for _, pair := range pairs {
		if _, dup := seen[pair]; dup {
			continue
		}
		seen[pair] = struct{}{}
		if snap.IsValidPair(pair) {
			valid = append(valid, pair)
		} else {
			skipped = append(skipped, pair)
		}
	}
	return valid, skipped
}

func groupPermissions(groupID id.GroupID, pairs []catalog.Pair, grantedBy id.UserID) []permission.GroupPermission {
	perms := make([]permission.GroupPermission, 0, len(pairs))
	for _, pair := range pairs {
		perms = append(perms, permission.GroupPermission{
			GroupID:   groupID,
			Pair:      pair,
			Granted:   true,
			GrantedBy: grantedBy,
		})
	}
	return perms
}

// pairSetRisk tags a group mutation medium when any affected action is
// sensitive, low otherwise.
func pairSetRisk(snap *catalog.Snapshot, pairs []catalog.Pair) audit.RiskLevel {
	for _, pair := range pairs {
		if snap.IsSensitive(pair) {
			return audit.RiskMedium
		}
	}
	return audit.RiskLow
}

func replaceDetails(groupID id.GroupID, valid, skipped []catalog.Pair) audit.Details {
	details := audit.Details{
		"group_id":   groupID.String(),
		"pair_count": strconv.Itoa(len(valid)),
	}
	if len(skipped) > 0 {
		keys := make([]string, 0, len(skipped))
		for _, pair := range skipped {
			keys = append(keys, pair.String())
		}
		details["skipped_pairs"] = strings.Join(keys, ",")
	}
	return details
}

func membershipDetails(groupID id.GroupID, expiresAt *time.Time) audit.Details {
	details := audit.Details{"group_id": groupID.String()}
	if expiresAt != nil {
		details["expires_at"] = expiresAt.UTC().Format(time.RFC3339)
	}
	return details
}
