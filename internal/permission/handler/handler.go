package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"permit/internal/audit"
	"permit/internal/permission/service"
	"permit/internal/resolution"
	id "permit/pkg/domain"
	dErrors "permit/pkg/domain-errors"
	"permit/pkg/platform/httputil"
	"permit/pkg/requestcontext"
)

// Handler wires permission endpoints to the mutation and resolution
// services. Actor identity is placed in the request context by the caller's
// auth middleware before requests reach these handlers.
type Handler struct {
	mutations *service.Service
	resolver  *resolution.Service
	ledger    *audit.Ledger
	logger    *slog.Logger
}

func New(mutations *service.Service, resolver *resolution.Service, ledger *audit.Ledger, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		mutations: mutations,
		resolver:  resolver,
		ledger:    ledger,
		logger:    logger,
	}
}

// Register mounts all permission endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/permissions/grant", h.HandleGrant)
	r.Post("/permissions/revoke", h.HandleRevoke)
	r.Post("/groups", h.HandleCreateGroup)
	r.Get("/groups", h.HandleListGroups)
	r.Get("/groups/{groupID}", h.HandleGetGroup)
	r.Put("/groups/{groupID}/permissions", h.HandleReplacePermissions)
	r.Post("/groups/{groupID}/members", h.HandleAddMember)
	r.Delete("/groups/{groupID}/members/{userID}", h.HandleRemoveMember)
	r.Post("/templates", h.HandleCreateTemplate)
	r.Get("/templates", h.HandleListTemplates)
	r.Post("/templates/{templateID}/apply/{groupID}", h.HandleApplyTemplate)
	r.Post("/check", h.HandleCheck)
	r.Get("/audit", h.HandleListAudit)
	r.Get("/users/{userID}/matrix", h.HandleMatrix)
	r.Get("/users/{userID}/modules", h.HandleModules)
	r.Get("/users/{userID}/groups", h.HandleUserGroups)
	r.Get("/users/{userID}/overrides", h.HandleUserOverrides)
}

func (h *Handler) requireActor(w http.ResponseWriter, r *http.Request) bool {
	if requestcontext.ActorID(r.Context()).IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return false
	}
	return true
}

// HandleGrant handles POST /permissions/grant.
func (h *Handler) HandleGrant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	if !h.requireActor(w, r) {
		return
	}

	req, ok := httputil.DecodeAndPrepare[GrantRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	userID, err := id.ParseUserID(req.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	overrideID, err := h.mutations.Grant(ctx, service.GrantRequest{
		UserID:     userID,
		Pair:       req.Pair(),
		Conditions: req.ParsedConditions(),
		ExpiresAt:  req.ExpiresAt,
		Reason:     req.Reason,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "grant failed",
			"request_id", requestID, "user_id", req.UserID, "pair", req.Pair().String(), "error", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, grantResponse{OverrideID: overrideID.String()})
}

// HandleRevoke handles POST /permissions/revoke.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	if !h.requireActor(w, r) {
		return
	}

	req, ok := httputil.DecodeAndPrepare[RevokeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	userID, err := id.ParseUserID(req.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.mutations.Revoke(ctx, service.RevokeRequest{
		UserID: userID,
		Pair:   req.Pair(),
		Reason: req.Reason,
	}); err != nil {
		h.logger.ErrorContext(ctx, "revoke failed",
			"request_id", requestID, "user_id", req.UserID, "pair", req.Pair().String(), "error", err)
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleCreateGroup handles POST /groups.
func (h *Handler) HandleCreateGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	if !h.requireActor(w, r) {
		return
	}

	req, ok := httputil.DecodeAndPrepare[CreateGroupRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	pairs, err := parsePairs(req.Permissions)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	group, err := h.mutations.CreateGroup(ctx, service.CreateGroupRequest{
		Name:         req.Name,
		Description:  req.Description,
		Color:        req.Color,
		InitialPairs: pairs,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "group creation failed",
			"request_id", requestID, "name", req.Name, "error", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, fromGroup(group))
}

// HandleListGroups handles GET /groups.
func (h *Handler) HandleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.mutations.ListGroups(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromGroups(groups))
}

// HandleGetGroup handles GET /groups/{groupID}, returning the group with its
// granted permission set.
func (h *Handler) HandleGetGroup(w http.ResponseWriter, r *http.Request) {
	groupID, err := id.ParseGroupID(chi.URLParam(r, "groupID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	group, err := h.mutations.GetGroup(r.Context(), groupID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	pairs, err := h.mutations.GroupGrantedPairs(r.Context(), groupID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromGroupDetail(group, pairs))
}

// HandleReplacePermissions handles PUT /groups/{groupID}/permissions.
func (h *Handler) HandleReplacePermissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	if !h.requireActor(w, r) {
		return
	}

	groupID, err := id.ParseGroupID(chi.URLParam(r, "groupID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReplacePermissionsRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	pairs, err := parsePairs(req.Permissions)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.mutations.ReplaceGroupPermissions(ctx, groupID, pairs)
	if err != nil {
		h.logger.ErrorContext(ctx, "permission replacement failed",
			"request_id", requestID, "group_id", groupID.String(), "error", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, fromReplaceResult(result))
}

// HandleAddMember handles POST /groups/{groupID}/members.
func (h *Handler) HandleAddMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	if !h.requireActor(w, r) {
		return
	}

	groupID, err := id.ParseGroupID(chi.URLParam(r, "groupID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[AddMemberRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	userID, err := id.ParseUserID(req.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	membershipID, err := h.mutations.AddMember(ctx, groupID, userID, req.ExpiresAt)
	if err != nil {
		h.logger.ErrorContext(ctx, "member addition failed",
			"request_id", requestID, "group_id", groupID.String(), "user_id", req.UserID, "error", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, membershipResponse{MembershipID: membershipID.String()})
}

// HandleRemoveMember handles DELETE /groups/{groupID}/members/{userID}.
func (h *Handler) HandleRemoveMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	if !h.requireActor(w, r) {
		return
	}

	groupID, err := id.ParseGroupID(chi.URLParam(r, "groupID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.mutations.RemoveMember(ctx, groupID, userID, r.URL.Query().Get("reason")); err != nil {
		h.logger.ErrorContext(ctx, "member removal failed",
			"request_id", requestID, "group_id", groupID.String(), "user_id", userID.String(), "error", err)
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleCreateTemplate handles POST /templates.
func (h *Handler) HandleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	if !h.requireActor(w, r) {
		return
	}

	req, ok := httputil.DecodeAndPrepare[CreateTemplateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	pairs, err := parsePairs(req.Permissions)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	tpl, err := h.mutations.CreateTemplate(ctx, service.CreateTemplateRequest{
		Name:        req.Name,
		Description: req.Description,
		Pairs:       pairs,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "template creation failed",
			"request_id", requestID, "name", req.Name, "error", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, fromTemplate(tpl))
}

// HandleListTemplates handles GET /templates.
func (h *Handler) HandleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.mutations.ListTemplates(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromTemplates(templates))
}

// HandleApplyTemplate handles POST /templates/{templateID}/apply/{groupID}.
func (h *Handler) HandleApplyTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	if !h.requireActor(w, r) {
		return
	}

	templateID, err := id.ParseTemplateID(chi.URLParam(r, "templateID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	groupID, err := id.ParseGroupID(chi.URLParam(r, "groupID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.mutations.ApplyTemplateToGroup(ctx, templateID, groupID)
	if err != nil {
		h.logger.ErrorContext(ctx, "template application failed",
			"request_id", requestID, "template_id", templateID.String(), "group_id", groupID.String(), "error", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, fromReplaceResult(result))
}

// HandleCheck handles POST /check. A denial is a 200 with allow=false,
// never an error status.
func (h *Handler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CheckRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	userID, err := id.ParseUserID(req.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	evalCtx := resolution.Context{Amount: req.Amount}
	if req.At != nil {
		evalCtx.Now = *req.At
	}
	decision := h.resolver.Check(ctx, userID, req.Pair(), evalCtx)
	httputil.WriteJSON(w, http.StatusOK, decision)
}

// HandleListAudit handles GET /audit.
func (h *Handler) HandleListAudit(w http.ResponseWriter, r *http.Request) {
	if !h.requireActor(w, r) {
		return
	}

	filter, limit, err := auditQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entries, err := h.ledger.List(r.Context(), filter, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromAuditEntries(entries))
}

// HandleMatrix handles GET /users/{userID}/matrix.
func (h *Handler) HandleMatrix(w http.ResponseWriter, r *http.Request) {
	if !h.requireActor(w, r) {
		return
	}
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	matrix, err := h.resolver.Matrix(r.Context(), userID, resolution.Context{})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, matrix)
}

// HandleModules handles GET /users/{userID}/modules.
func (h *Handler) HandleModules(w http.ResponseWriter, r *http.Request) {
	if !h.requireActor(w, r) {
		return
	}
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	modules, err := h.resolver.AccessibleModules(r.Context(), userID, resolution.Context{})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromModules(modules))
}

// HandleUserGroups handles GET /users/{userID}/groups.
func (h *Handler) HandleUserGroups(w http.ResponseWriter, r *http.Request) {
	if !h.requireActor(w, r) {
		return
	}
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	groups, err := h.mutations.GroupsOf(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromGroups(groups))
}

// HandleUserOverrides handles GET /users/{userID}/overrides.
func (h *Handler) HandleUserOverrides(w http.ResponseWriter, r *http.Request) {
	if !h.requireActor(w, r) {
		return
	}
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rows, err := h.mutations.ListUserOverrides(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromOverrides(rows))
}

func auditQuery(r *http.Request) (audit.Filter, int, error) {
	var filter audit.Filter
	query := r.URL.Query()

	if raw := query.Get("actor_id"); raw != "" {
		actorID, err := id.ParseUserID(raw)
		if err != nil {
			return filter, 0, err
		}
		filter.ActorID = actorID
	}
	if raw := query.Get("target_user_id"); raw != "" {
		targetID, err := id.ParseUserID(raw)
		if err != nil {
			return filter, 0, err
		}
		filter.TargetUserID = targetID
	}
	if raw := query.Get("action_type"); raw != "" {
		filter.ActionType = audit.ActionType(raw)
	}
	if raw := query.Get("min_risk"); raw != "" {
		filter.MinRisk = audit.RiskLevel(raw)
	}

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return filter, 0, dErrors.New(dErrors.CodeValidation, "limit must be a positive integer")
		}
		limit = parsed
	}
	return filter, limit, nil
}
