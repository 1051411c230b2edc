package template

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"permit/internal/permission"
	id "permit/pkg/domain"
	"permit/pkg/platform/sentinel"
	txcontext "permit/pkg/platform/tx"
)

// PostgresStore persists permission templates. Pair lists are stored as a
// jsonb array of "module:action" keys; templates reference catalog keys
// loosely so a template outlives catalog churn.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, tpl *permission.Template) error {
	pairs, err := json.Marshal(tpl.Pairs)
	if err != nil {
		return fmt.Errorf("marshal template pairs: %w", err)
	}

	query := `
		INSERT INTO permission_templates (id, name, description, pairs, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(tpl.ID), tpl.Name, tpl.Description, pairs,
		uuid.UUID(tpl.CreatedBy), tpl.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, templateID id.TemplateID) (*permission.Template, error) {
	query := `
		SELECT id, name, description, pairs, created_by, created_at
		FROM permission_templates
		WHERE id = $1
	`
	tpl, err := scanTemplate(s.db.QueryRowContext(ctx, query, uuid.UUID(templateID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}
	return tpl, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*permission.Template, error) {
	query := `
		SELECT id, name, description, pairs, created_by, created_at
		FROM permission_templates
		ORDER BY name
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	var templates []*permission.Template
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return templates, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*permission.Template, error) {
	var (
		tpl       permission.Template
		rowID     uuid.UUID
		createdBy uuid.UUID
		pairs     []byte
	)
	err := row.Scan(&rowID, &tpl.Name, &tpl.Description, &pairs, &createdBy, &tpl.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan template: %w", err)
	}
	tpl.ID = id.TemplateID(rowID)
	tpl.CreatedBy = id.UserID(createdBy)
	if err := json.Unmarshal(pairs, &tpl.Pairs); err != nil {
		return nil, fmt.Errorf("unmarshal template pairs: %w", err)
	}
	return &tpl, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
