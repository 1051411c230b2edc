package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"permit/internal/audit"
	"permit/internal/catalog"
	"permit/internal/permission"
	id "permit/pkg/domain"
	dErrors "permit/pkg/domain-errors"
	"permit/pkg/platform/sentinel"
	"permit/pkg/requestcontext"
)

// CreateTemplateRequest names an inert permission pair-set. Templates are
// applied by copying, never resolved directly.
type CreateTemplateRequest struct {
	Name        string
	Description string
	Pairs       []catalog.Pair
}

// CreateTemplate stores a named pair-set. Unlike group replacement, an
// invalid pair here is fatal: a template is authored deliberately and a bad
// key means the author made a mistake worth surfacing.
func (s *Service) CreateTemplate(ctx context.Context, req CreateTemplateRequest) (*permission.Template, error) {
	actorID := requestcontext.ActorID(ctx)
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "template name is required")
	}
	if len(req.Pairs) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "template needs at least one permission")
	}

	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[catalog.Pair]struct{}, len(req.Pairs))
	pairs := make([]catalog.Pair, 0, len(req.Pairs))
	for _, pair := range req.Pairs {
		if !snap.IsValidPair(pair) {
			return nil, dErrors.New(dErrors.CodeValidation, "unknown permission "+pair.String())
		}
		if _, dup := seen[pair]; dup {
			continue
		}
		seen[pair] = struct{}{}
		pairs = append(pairs, pair)
	}

	now := requestcontext.Now(ctx)
	tpl := &permission.Template{
		ID:          id.TemplateID(uuid.New()),
		Name:        name,
		Description: req.Description,
		Pairs:       pairs,
		CreatedBy:   actorID,
		CreatedAt:   now,
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.templates.Create(txCtx, tpl); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "template name must be unique")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create template")
		}
		return s.ledger.Append(txCtx, audit.Entry{
			ActorID:    actorID,
			ActionType: audit.ActionTemplateCreated,
			RiskLevel:  pairSetRisk(snap, pairs),
			Details: audit.Details{
				"template_id": tpl.ID.String(),
				"name":        tpl.Name,
				"pair_count":  strconv.Itoa(len(pairs)),
			},
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.incrementMutation(audit.ActionTemplateCreated)
	return tpl, nil
}

func (s *Service) ListTemplates(ctx context.Context) ([]*permission.Template, error) {
	templates, err := s.templates.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list templates")
	}
	return templates, nil
}

func (s *Service) GetTemplate(ctx context.Context, templateID id.TemplateID) (*permission.Template, error) {
	tpl, err := s.templates.Get(ctx, templateID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "template not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load template")
	}
	return tpl, nil
}

// ApplyTemplateToGroup copies the template's pairs onto the group via one
// atomic replacement. The template stays inert; the group does not remember
// where its permissions came from. Pairs the catalog no longer knows are
// skipped by the replacement like any other unknown pair.
func (s *Service) ApplyTemplateToGroup(ctx context.Context, templateID id.TemplateID, groupID id.GroupID) (ReplaceResult, error) {
	tpl, err := s.GetTemplate(ctx, templateID)
	if err != nil {
		return ReplaceResult{}, err
	}
	return s.ReplaceGroupPermissions(ctx, groupID, tpl.Pairs)
}
