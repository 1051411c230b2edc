package handler

import (
	"time"

	"permit/internal/catalog"
	"permit/internal/permission"
	dErrors "permit/pkg/domain-errors"
)

// GrantRequest is the body of POST /permissions/grant.
type GrantRequest struct {
	UserID     string                 `json:"user_id"`
	Module     string                 `json:"module"`
	Action     string                 `json:"action"`
	Conditions *permission.Conditions `json:"conditions,omitempty"`
	ExpiresAt  *time.Time             `json:"expires_at,omitempty"`
	Reason     string                 `json:"reason,omitempty"`
}

func (r *GrantRequest) Validate() error {
	if r.UserID == "" {
		return dErrors.New(dErrors.CodeValidation, "user_id is required")
	}
	if r.Module == "" || r.Action == "" {
		return dErrors.New(dErrors.CodeValidation, "module and action are required")
	}
	if r.Conditions != nil {
		return r.Conditions.Validate()
	}
	return nil
}

func (r *GrantRequest) Pair() catalog.Pair {
	return catalog.Pair{ModuleKey: r.Module, ActionKey: r.Action}
}

func (r *GrantRequest) ParsedConditions() permission.Conditions {
	if r.Conditions == nil {
		return permission.Conditions{}
	}
	return *r.Conditions
}

// RevokeRequest is the body of POST /permissions/revoke.
type RevokeRequest struct {
	UserID string `json:"user_id"`
	Module string `json:"module"`
	Action string `json:"action"`
	Reason string `json:"reason,omitempty"`
}

func (r *RevokeRequest) Validate() error {
	if r.UserID == "" {
		return dErrors.New(dErrors.CodeValidation, "user_id is required")
	}
	if r.Module == "" || r.Action == "" {
		return dErrors.New(dErrors.CodeValidation, "module and action are required")
	}
	return nil
}

func (r *RevokeRequest) Pair() catalog.Pair {
	return catalog.Pair{ModuleKey: r.Module, ActionKey: r.Action}
}

// CreateGroupRequest is the body of POST /groups.
type CreateGroupRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Color       string   `json:"color,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

func (r *CreateGroupRequest) Validate() error {
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	_, err := parsePairs(r.Permissions)
	return err
}

// ReplacePermissionsRequest is the body of PUT /groups/{groupID}/permissions.
type ReplacePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

func (r *ReplacePermissionsRequest) Validate() error {
	_, err := parsePairs(r.Permissions)
	return err
}

// AddMemberRequest is the body of POST /groups/{groupID}/members.
type AddMemberRequest struct {
	UserID    string     `json:"user_id"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (r *AddMemberRequest) Validate() error {
	if r.UserID == "" {
		return dErrors.New(dErrors.CodeValidation, "user_id is required")
	}
	return nil
}

// CreateTemplateRequest is the body of POST /templates.
type CreateTemplateRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Permissions []string `json:"permissions"`
}

func (r *CreateTemplateRequest) Validate() error {
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if len(r.Permissions) == 0 {
		return dErrors.New(dErrors.CodeValidation, "permissions are required")
	}
	_, err := parsePairs(r.Permissions)
	return err
}

// CheckRequest is the body of POST /check.
type CheckRequest struct {
	UserID string     `json:"user_id"`
	Module string     `json:"module"`
	Action string     `json:"action"`
	Amount *float64   `json:"amount,omitempty"`
	At     *time.Time `json:"at,omitempty"`
}

func (r *CheckRequest) Validate() error {
	if r.UserID == "" {
		return dErrors.New(dErrors.CodeValidation, "user_id is required")
	}
	if r.Module == "" || r.Action == "" {
		return dErrors.New(dErrors.CodeValidation, "module and action are required")
	}
	if r.Amount != nil && *r.Amount < 0 {
		return dErrors.New(dErrors.CodeValidation, "amount must not be negative")
	}
	return nil
}

func (r *CheckRequest) Pair() catalog.Pair {
	return catalog.Pair{ModuleKey: r.Module, ActionKey: r.Action}
}

// parsePairs converts "module:action" keys, failing fast on malformed input.
// Whether an unknown-but-well-formed pair is fatal is the service's call.
func parsePairs(keys []string) ([]catalog.Pair, error) {
	pairs := make([]catalog.Pair, 0, len(keys))
	for _, key := range keys {
		pair, err := catalog.ParsePair(key)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}
