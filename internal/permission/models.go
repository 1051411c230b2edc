package permission

import (
	"encoding/json"
	"time"

	"permit/internal/catalog"
	id "permit/pkg/domain"
	dErrors "permit/pkg/domain-errors"
)

// TimeWindow restricts a grant to the hours [StartHour, EndHour). When
// StartHour > EndHour the window wraps past midnight: 22→6 allows hours
// 22, 23, 0..5.
type TimeWindow struct {
	StartHour int `json:"start_hour"`
	EndHour   int `json:"end_hour"`
}

// Contains reports whether the hour falls inside the window.
func (w TimeWindow) Contains(hour int) bool {
	if w.StartHour <= w.EndHour {
		return hour >= w.StartHour && hour < w.EndHour
	}
	return hour >= w.StartHour || hour < w.EndHour
}

// AmountCeiling caps the monetary amount a grant applies to. The limit is
// inclusive: an amount equal to the limit passes.
type AmountCeiling struct {
	Limit float64 `json:"limit"`
}

// Allows reports whether the amount is within the ceiling.
func (c AmountCeiling) Allows(amount float64) bool {
	return amount <= c.Limit
}

// Conditions is the tagged set of contextual constraints an override may
// carry. Both fields optional; a zero Conditions means unconditional. The
// wire form matches the historical JSON shape:
// {"time_restrictions":{"start_hour":..,"end_hour":..},"amount_limit":..}.
type Conditions struct {
	TimeWindow    *TimeWindow    `json:"time_restrictions,omitempty"`
	AmountCeiling *AmountCeiling `json:"-"`
}

// conditionsWire flattens AmountCeiling to the historical amount_limit field.
type conditionsWire struct {
	TimeWindow  *TimeWindow `json:"time_restrictions,omitempty"`
	AmountLimit *float64    `json:"amount_limit,omitempty"`
}

// MarshalJSON writes the tagged wire form.
func (c Conditions) MarshalJSON() ([]byte, error) {
	wire := conditionsWire{TimeWindow: c.TimeWindow}
	if c.AmountCeiling != nil {
		wire.AmountLimit = &c.AmountCeiling.Limit
	}
	return json.Marshal(wire)
}

// UnmarshalJSON reads the tagged wire form.
func (c *Conditions) UnmarshalJSON(data []byte) error {
	var wire conditionsWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	c.TimeWindow = wire.TimeWindow
	c.AmountCeiling = nil
	if wire.AmountLimit != nil {
		c.AmountCeiling = &AmountCeiling{Limit: *wire.AmountLimit}
	}
	return nil
}

// IsZero reports whether no condition is set.
func (c Conditions) IsZero() bool {
	return c.TimeWindow == nil && c.AmountCeiling == nil
}

// Validate rejects malformed condition values before they reach storage.
func (c Conditions) Validate() error {
	if c.TimeWindow != nil {
		if c.TimeWindow.StartHour < 0 || c.TimeWindow.StartHour > 23 {
			return dErrors.New(dErrors.CodeValidation, "start_hour must be between 0 and 23")
		}
		if c.TimeWindow.EndHour < 0 || c.TimeWindow.EndHour > 23 {
			return dErrors.New(dErrors.CodeValidation, "end_hour must be between 0 and 23")
		}
	}
	if c.AmountCeiling != nil && c.AmountCeiling.Limit < 0 {
		return dErrors.New(dErrors.CodeValidation, "amount limit must not be negative")
	}
	return nil
}

// Override is an individual per-user grant or explicit deny for one
// (module, action) pair. Rows are append-only: a new grant or revoke
// deactivates the prior active row rather than updating it in place, so the
// full history stays queryable.
type Override struct {
	ID         id.OverrideID
	UserID     id.UserID
	Pair       catalog.Pair
	Granted    bool
	Conditions Conditions
	ExpiresAt  *time.Time
	Active     bool
	GrantedBy  id.UserID
	Reason     string
	CreatedAt  time.Time
}

// ExpiredAt reports whether the override's expiry has passed. Expired rows
// are never deleted; resolution treats them as absent.
func (o *Override) ExpiredAt(now time.Time) bool {
	return o.ExpiresAt != nil && !o.ExpiresAt.After(now)
}

// Group is a named permission group. Color is display-only.
type Group struct {
	ID          id.GroupID
	Name        string
	Description string
	Color       string
	Active      bool
	CreatedBy   id.UserID
	CreatedAt   time.Time
}

// GroupPermission grants one pair to a group. Absence means not granted.
type GroupPermission struct {
	GroupID   id.GroupID
	Pair      catalog.Pair
	Granted   bool
	GrantedBy id.UserID
}

// Membership associates a user with a group, optionally until ExpiresAt.
// Removal deactivates the row and records a reason; history is preserved.
type Membership struct {
	ID          id.MembershipID
	GroupID     id.GroupID
	UserID      id.UserID
	GrantedBy   id.UserID
	ExpiresAt   *time.Time
	Active      bool
	EndedReason string
	EndedAt     *time.Time
	CreatedAt   time.Time
}

// ActiveAt reports whether the membership is active and unexpired as of now.
func (m *Membership) ActiveAt(now time.Time) bool {
	if !m.Active {
		return false
	}
	return m.ExpiresAt == nil || m.ExpiresAt.After(now)
}

// Template is an inert named pair-set. Applying one copies its pairs into a
// group or into individual grants; templates are never resolved directly.
type Template struct {
	ID          id.TemplateID
	Name        string
	Description string
	Pairs       []catalog.Pair
	CreatedBy   id.UserID
	CreatedAt   time.Time
}
