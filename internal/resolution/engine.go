package resolution

import (
	"permit/internal/audit"
	"permit/internal/permission"
)

// Evaluate resolves one (user, module, action) check given the user's
// active override for the pair (nil when none) and whether any of the
// user's groups grant it. Pure: all inputs are explicit, including time.
//
// Precedence, highest to lowest: explicit individual deny, explicit
// individual conditional allow, group allow, default deny. A granted
// override whose time or amount condition fails is not an outright deny;
// the check falls through to group evaluation, and the condition's reason
// surfaces only when no group rescues it.
func Evaluate(override *permission.Override, groupAllowed bool, evalCtx Context) Decision {
	denyReason := ReasonNoGrant

	// Expired rows are treated as absent whichever way they point, so an
	// explicit deny stops denying once its expires_at passes.
	if override != nil && override.Active && !override.ExpiredAt(evalCtx.Now) {
		if !override.Granted {
			return Decision{Allow: false, Reason: ReasonExplicitDeny, RiskLevel: audit.RiskHigh}
		}
		if reason, ok := conditionsFail(override.Conditions, evalCtx); ok {
			denyReason = reason
		} else {
			return Decision{Allow: true, Reason: ReasonExplicitGrant, RiskLevel: audit.RiskLow}
		}
	}

	if groupAllowed {
		return Decision{Allow: true, Reason: ReasonGroupGrant, RiskLevel: audit.RiskLow}
	}
	return Decision{Allow: false, Reason: denyReason, RiskLevel: audit.RiskMedium}
}

// conditionsFail reports the first failing condition, window before ceiling.
func conditionsFail(conditions permission.Conditions, evalCtx Context) (string, bool) {
	if window := conditions.TimeWindow; window != nil && !window.Contains(evalCtx.Now.Hour()) {
		return ReasonOutsideTimeWindow, true
	}
	if ceiling := conditions.AmountCeiling; ceiling != nil && evalCtx.Amount != nil && !ceiling.Allows(*evalCtx.Amount) {
		return ReasonAmountExceedsLimit, true
	}
	return "", false
}
