package audit

import (
	"time"

	id "permit/pkg/domain"
)

// ActionType enumerates every auditable permission event.
type ActionType string

const (
	ActionPermissionGranted        ActionType = "permission_granted"
	ActionPermissionRevoked        ActionType = "permission_revoked"
	ActionGroupCreated             ActionType = "group_created"
	ActionGroupJoined              ActionType = "group_joined"
	ActionGroupLeft                ActionType = "group_left"
	ActionGroupPermissionsReplaced ActionType = "group_permissions_replaced"
	ActionTemplateCreated          ActionType = "template_created"
	ActionAccessDenied             ActionType = "access_denied"
)

// RiskLevel is a coarse severity tag attached to audit entries for triage.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// rank orders risk levels so filters can express "at least medium".
var rank = map[RiskLevel]int{RiskLow: 0, RiskMedium: 1, RiskHigh: 2, RiskCritical: 3}

// AtLeast reports whether r is as severe as min.
func (r RiskLevel) AtLeast(min RiskLevel) bool {
	return rank[r] >= rank[min]
}

// Details carries structured context for an entry. Flat string pairs, not
// free text, so consumers can filter without parsing prose.
type Details map[string]string

// Entry is an immutable record of a permission-relevant mutation or denial.
// Entries are only ever appended; no update or delete path exists.
type Entry struct {
	ID           id.EntryID
	ActorID      id.UserID
	TargetUserID *id.UserID
	ModuleKey    string
	ActionKey    string
	ActionType   ActionType
	RiskLevel    RiskLevel
	Details      Details
	CreatedAt    time.Time
}

// Filter narrows ListEntries results. Zero values mean "no constraint".
type Filter struct {
	ActorID      id.UserID
	TargetUserID id.UserID
	ActionType   ActionType
	MinRisk      RiskLevel
}

// Matches reports whether the entry satisfies every set constraint.
func (f Filter) Matches(entry Entry) bool {
	if !f.ActorID.IsNil() && entry.ActorID != f.ActorID {
		return false
	}
	if !f.TargetUserID.IsNil() {
		if entry.TargetUserID == nil || *entry.TargetUserID != f.TargetUserID {
			return false
		}
	}
	if f.ActionType != "" && entry.ActionType != f.ActionType {
		return false
	}
	if f.MinRisk != "" && !entry.RiskLevel.AtLeast(f.MinRisk) {
		return false
	}
	return true
}
