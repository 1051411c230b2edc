package resolution

import (
	"time"

	"permit/internal/audit"
)

// Reason codes carried on every Decision. Callers branch on these, so they
// are part of the contract, not log strings.
const (
	ReasonUndefinedPermission = "undefined_permission"
	ReasonExplicitDeny        = "explicit_deny"
	ReasonExplicitGrant       = "explicit_grant"
	ReasonOutsideTimeWindow   = "outside_time_window"
	ReasonAmountExceedsLimit  = "amount_exceeds_limit"
	ReasonGroupGrant          = "group_grant"
	ReasonNoGrant             = "no_grant"
)

// Decision is the outcome of a permission check. A denial is a normal
// result, never an error.
type Decision struct {
	Allow     bool            `json:"allow"`
	Reason    string          `json:"reason"`
	RiskLevel audit.RiskLevel `json:"risk_level"`
}

// Context carries the situational inputs a conditional grant is evaluated
// against. Amount is nil when the operation has no monetary value.
type Context struct {
	Now    time.Time
	Amount *float64
}
