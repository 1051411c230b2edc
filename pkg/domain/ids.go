package domain

import (
	"github.com/google/uuid"

	dErrors "permit/pkg/domain-errors"
)

// Typed UUID identifiers. Distinct types keep a UserID from ever being passed
// where a GroupID is expected; the compiler enforces the distinction.
type (
	UserID       uuid.UUID
	GroupID      uuid.UUID
	MembershipID uuid.UUID
	OverrideID   uuid.UUID
	TemplateID   uuid.UUID
	EntryID      uuid.UUID
)

func (id UserID) String() string       { return uuid.UUID(id).String() }
func (id GroupID) String() string      { return uuid.UUID(id).String() }
func (id MembershipID) String() string { return uuid.UUID(id).String() }
func (id OverrideID) String() string   { return uuid.UUID(id).String() }
func (id TemplateID) String() string   { return uuid.UUID(id).String() }
func (id EntryID) String() string      { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id GroupID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id MembershipID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id OverrideID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id TemplateID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id EntryID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }

// parseUUID enforces the shared invariant: IDs must be valid, non-empty,
// non-nil UUIDs. Callers get a coded error suitable for trust boundaries.
func parseUUID(raw, what string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" is required")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" must be a valid UUID")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" must not be the nil UUID")
	}
	return parsed, nil
}

func ParseUserID(raw string) (UserID, error) {
	parsed, err := parseUUID(raw, "user_id")
	return UserID(parsed), err
}

func ParseGroupID(raw string) (GroupID, error) {
	parsed, err := parseUUID(raw, "group_id")
	return GroupID(parsed), err
}

func ParseMembershipID(raw string) (MembershipID, error) {
	parsed, err := parseUUID(raw, "membership_id")
	return MembershipID(parsed), err
}

func ParseOverrideID(raw string) (OverrideID, error) {
	parsed, err := parseUUID(raw, "override_id")
	return OverrideID(parsed), err
}

func ParseTemplateID(raw string) (TemplateID, error) {
	parsed, err := parseUUID(raw, "template_id")
	return TemplateID(parsed), err
}
