package handler

import (
	"time"

	"permit/internal/audit"
	"permit/internal/catalog"
	"permit/internal/permission"
	"permit/internal/permission/service"
)

type grantResponse struct {
	OverrideID string `json:"override_id"`
}

type groupResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Color       string    `json:"color,omitempty"`
	Active      bool      `json:"active"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

func fromGroup(group *permission.Group) groupResponse {
	return groupResponse{
		ID:          group.ID.String(),
		Name:        group.Name,
		Description: group.Description,
		Color:       group.Color,
		Active:      group.Active,
		CreatedBy:   group.CreatedBy.String(),
		CreatedAt:   group.CreatedAt,
	}
}

func fromGroups(groups []*permission.Group) []groupResponse {
	out := make([]groupResponse, 0, len(groups))
	for _, group := range groups {
		out = append(out, fromGroup(group))
	}
	return out
}

type membershipResponse struct {
	MembershipID string `json:"membership_id"`
}

type replaceResponse struct {
	ReplacedCount int      `json:"replaced_count"`
	SkippedPairs  []string `json:"skipped_pairs,omitempty"`
}

func fromReplaceResult(result service.ReplaceResult) replaceResponse {
	resp := replaceResponse{ReplacedCount: result.ReplacedCount}
	for _, pair := range result.SkippedPairs {
		resp.SkippedPairs = append(resp.SkippedPairs, pair.String())
	}
	return resp
}

type templateResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Permissions []string  `json:"permissions"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

func fromTemplate(tpl *permission.Template) templateResponse {
	permissions := make([]string, 0, len(tpl.Pairs))
	for _, pair := range tpl.Pairs {
		permissions = append(permissions, pair.String())
	}
	return templateResponse{
		ID:          tpl.ID.String(),
		Name:        tpl.Name,
		Description: tpl.Description,
		Permissions: permissions,
		CreatedBy:   tpl.CreatedBy.String(),
		CreatedAt:   tpl.CreatedAt,
	}
}

func fromTemplates(templates []*permission.Template) []templateResponse {
	out := make([]templateResponse, 0, len(templates))
	for _, tpl := range templates {
		out = append(out, fromTemplate(tpl))
	}
	return out
}

type groupDetailResponse struct {
	groupResponse
	Permissions []string `json:"permissions"`
}

func fromGroupDetail(group *permission.Group, pairs []catalog.Pair) groupDetailResponse {
	permissions := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		permissions = append(permissions, pair.String())
	}
	return groupDetailResponse{groupResponse: fromGroup(group), Permissions: permissions}
}

type overrideResponse struct {
	ID         string                 `json:"id"`
	Module     string                 `json:"module"`
	Action     string                 `json:"action"`
	Granted    bool                   `json:"granted"`
	Conditions *permission.Conditions `json:"conditions,omitempty"`
	ExpiresAt  *time.Time             `json:"expires_at,omitempty"`
	GrantedBy  string                 `json:"granted_by"`
	Reason     string                 `json:"reason,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

func fromOverrides(rows []*permission.Override) []overrideResponse {
	out := make([]overrideResponse, 0, len(rows))
	for _, row := range rows {
		resp := overrideResponse{
			ID:        row.ID.String(),
			Module:    row.Pair.ModuleKey,
			Action:    row.Pair.ActionKey,
			Granted:   row.Granted,
			ExpiresAt: row.ExpiresAt,
			GrantedBy: row.GrantedBy.String(),
			Reason:    row.Reason,
			CreatedAt: row.CreatedAt,
		}
		if !row.Conditions.IsZero() {
			conditions := row.Conditions
			resp.Conditions = &conditions
		}
		out = append(out, resp)
	}
	return out
}

type moduleResponse struct {
	Key         string `json:"key"`
	DisplayName string `json:"display_name"`
	Icon        string `json:"icon,omitempty"`
}

func fromModules(modules []catalog.Module) []moduleResponse {
	out := make([]moduleResponse, 0, len(modules))
	for _, module := range modules {
		out = append(out, moduleResponse{
			Key:         module.Key,
			DisplayName: module.DisplayName,
			Icon:        module.Icon,
		})
	}
	return out
}

type auditEntryResponse struct {
	ID           string            `json:"id"`
	ActorID      string            `json:"actor_id"`
	TargetUserID string            `json:"target_user_id,omitempty"`
	Module       string            `json:"module,omitempty"`
	Action       string            `json:"action,omitempty"`
	ActionType   string            `json:"action_type"`
	RiskLevel    string            `json:"risk_level"`
	Details      map[string]string `json:"details,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

func fromAuditEntries(entries []audit.Entry) []auditEntryResponse {
	out := make([]auditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		resp := auditEntryResponse{
			ID:         entry.ID.String(),
			ActorID:    entry.ActorID.String(),
			Module:     entry.ModuleKey,
			Action:     entry.ActionKey,
			ActionType: string(entry.ActionType),
			RiskLevel:  string(entry.RiskLevel),
			Details:    entry.Details,
			CreatedAt:  entry.CreatedAt,
		}
		if entry.TargetUserID != nil {
			resp.TargetUserID = entry.TargetUserID.String()
		}
		out = append(out, resp)
	}
	return out
}
