package service

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"permit/internal/audit"
	"permit/internal/catalog"
	"permit/internal/permission"
	id "permit/pkg/domain"
	dErrors "permit/pkg/domain-errors"
	"permit/pkg/requestcontext"
)

// GrantRequest carries everything needed to grant a permission directly to
// a user, optionally bounded by conditions or an expiry.
type GrantRequest struct {
	UserID     id.UserID
	Pair       catalog.Pair
	Conditions permission.Conditions
	ExpiresAt  *time.Time
	Reason     string
}

// Grant supersedes any active override for (user, pair) and inserts a new
// granted row, appending exactly one audit entry in the same transaction.
func (s *Service) Grant(ctx context.Context, req GrantRequest) (id.OverrideID, error) {
	actorID := requestcontext.ActorID(ctx)
	if err := requireActor(actorID); err != nil {
		return id.OverrideID{}, err
	}
	if req.UserID.IsNil() {
		return id.OverrideID{}, dErrors.New(dErrors.CodeInvalidInput, "user is required")
	}

	snap, err := s.snapshot(ctx)
	if err != nil {
		return id.OverrideID{}, err
	}
	if !snap.IsValidPair(req.Pair) {
		return id.OverrideID{}, dErrors.New(dErrors.CodeValidation, "unknown permission "+req.Pair.String())
	}
	if err := req.Conditions.Validate(); err != nil {
		return id.OverrideID{}, err
	}

	now := requestcontext.Now(ctx)
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return id.OverrideID{}, dErrors.New(dErrors.CodeValidation, "expiry must be in the future")
	}

	overrideID := id.OverrideID(uuid.New())
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.overrides.DeactivateActive(txCtx, req.UserID, req.Pair, now); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to supersede override")
		}
		row := &permission.Override{
			ID:         overrideID,
			UserID:     req.UserID,
			Pair:       req.Pair,
			Granted:    true,
			Conditions: req.Conditions,
			ExpiresAt:  req.ExpiresAt,
			Active:     true,
			GrantedBy:  actorID,
			Reason:     req.Reason,
			CreatedAt:  now,
		}
		if err := s.overrides.Insert(txCtx, row); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to insert override")
		}
		return s.ledger.Append(txCtx, audit.Entry{
			ActorID:      actorID,
			TargetUserID: &req.UserID,
			ModuleKey:    req.Pair.ModuleKey,
			ActionKey:    req.Pair.ActionKey,
			ActionType:   audit.ActionPermissionGranted,
			RiskLevel:    s.grantRisk(snap, req),
			Details:      grantDetails(req),
			CreatedAt:    now,
		})
	})
	if err != nil {
		return id.OverrideID{}, err
	}

	s.incrementMutation(audit.ActionPermissionGranted)
	s.invalidateUsers(ctx, req.UserID)
	return overrideID, nil
}

// RevokeRequest identifies the permission to take away from a user.
type RevokeRequest struct {
	UserID id.UserID
	Pair   catalog.Pair
	Reason string
}

// Revoke supersedes any active override with an explicit deny row. The deny
// row outranks group grants during resolution.
func (s *Service) Revoke(ctx context.Context, req RevokeRequest) error {
	actorID := requestcontext.ActorID(ctx)
	if err := requireActor(actorID); err != nil {
		return err
	}
	if req.UserID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "user is required")
	}

	snap, err := s.snapshot(ctx)
	if err != nil {
		return err
	}
	if !snap.IsValidPair(req.Pair) {
		return dErrors.New(dErrors.CodeValidation, "unknown permission "+req.Pair.String())
	}

	now := requestcontext.Now(ctx)
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.overrides.DeactivateActive(txCtx, req.UserID, req.Pair, now); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to supersede override")
		}
		row := &permission.Override{
			ID:        id.OverrideID(uuid.New()),
			UserID:    req.UserID,
			Pair:      req.Pair,
			Granted:   false,
			Active:    true,
			GrantedBy: actorID,
			Reason:    req.Reason,
			CreatedAt: now,
		}
		if err := s.overrides.Insert(txCtx, row); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to insert deny")
		}
		risk := audit.RiskLow
		if snap.IsSensitive(req.Pair) {
			risk = audit.RiskHigh
		}
		details := audit.Details{}
		if req.Reason != "" {
			details["reason"] = req.Reason
		}
		return s.ledger.Append(txCtx, audit.Entry{
			ActorID:      actorID,
			TargetUserID: &req.UserID,
			ModuleKey:    req.Pair.ModuleKey,
			ActionKey:    req.Pair.ActionKey,
			ActionType:   audit.ActionPermissionRevoked,
			RiskLevel:    risk,
			Details:      details,
			CreatedAt:    now,
		})
	})
	if err != nil {
		return err
	}

	s.incrementMutation(audit.ActionPermissionRevoked)
	s.invalidateUsers(ctx, req.UserID)
	return nil
}

// ListUserOverrides returns the user's active override rows, expired or not.
// Expiry is the resolution engine's concern; the matrix view shows both.
func (s *Service) ListUserOverrides(ctx context.Context, userID id.UserID) ([]*permission.Override, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "user is required")
	}
	rows, err := s.overrides.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list overrides")
	}
	return rows, nil
}

// grantRisk tags sensitive grants high, and critical when the grant also
// carries an amount ceiling above the high-value threshold.
func (s *Service) grantRisk(snap *catalog.Snapshot, req GrantRequest) audit.RiskLevel {
	if !snap.IsSensitive(req.Pair) {
		return audit.RiskLow
	}
	if req.Conditions.AmountCeiling != nil && req.Conditions.AmountCeiling.Limit > s.highValueThreshold {
		return audit.RiskCritical
	}
	return audit.RiskHigh
}

func grantDetails(req GrantRequest) audit.Details {
	details := audit.Details{}
	if req.Reason != "" {
		details["reason"] = req.Reason
	}
	if window := req.Conditions.TimeWindow; window != nil {
		details["time_window"] = strconv.Itoa(window.StartHour) + "-" + strconv.Itoa(window.EndHour)
	}
	if ceiling := req.Conditions.AmountCeiling; ceiling != nil {
		details["amount_limit"] = strconv.FormatFloat(ceiling.Limit, 'f', -1, 64)
	}
	if req.ExpiresAt != nil {
		details["expires_at"] = req.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return details
}
