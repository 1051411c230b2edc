package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	id "permit/pkg/domain"
	txcontext "permit/pkg/platform/tx"
)

// PostgresStore persists audit entries in PostgreSQL. Appends honor a
// transaction carried in context so a mutation and its audit row commit or
// roll back together.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed audit store.
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

func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	var details []byte
	if len(entry.Details) > 0 {
		var err error
		details, err = json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
	}

	var targetUserID *uuid.UUID
	if entry.TargetUserID != nil {
		uid := uuid.UUID(*entry.TargetUserID)
		targetUserID = &uid
	}

	query := `
		INSERT INTO permission_audit_log (
			id, actor_id, target_user_id, module_key, action_key,
			action_type, risk_level, details, created_at
		)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, $9)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(entry.ID),
		uuid.UUID(entry.ActorID),
		targetUserID,
		entry.ModuleKey,
		entry.ActionKey,
		string(entry.ActionType),
		string(entry.RiskLevel),
		details,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter, limit int) ([]Entry, error) {
	query := `
		SELECT id, actor_id, target_user_id, module_key, action_key,
		       action_type, risk_level, details, created_at
		FROM permission_audit_log
		WHERE ($1::uuid IS NULL OR actor_id = $1)
		  AND ($2::uuid IS NULL OR target_user_id = $2)
		  AND ($3 = '' OR action_type = $3)
		ORDER BY created_at DESC
		LIMIT $4
	`
	if limit <= 0 {
		limit = 100
	}

	var actorID, targetUserID *uuid.UUID
	if !filter.ActorID.IsNil() {
		uid := uuid.UUID(filter.ActorID)
		actorID = &uid
	}
	if !filter.TargetUserID.IsNil() {
		uid := uuid.UUID(filter.TargetUserID)
		targetUserID = &uid
	}

	rows, err := s.db.QueryContext(ctx, query, actorID, targetUserID, string(filter.ActionType), limit)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry          Entry
			entryID        uuid.UUID
			actor          uuid.UUID
			targetNullable *uuid.UUID
			moduleKey      sql.NullString
			actionKey      sql.NullString
			actionType     string
			riskLevel      string
			details        []byte
		)
		err := rows.Scan(&entryID, &actor, &targetNullable, &moduleKey, &actionKey,
			&actionType, &riskLevel, &details, &entry.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}

		entry.ID = id.EntryID(entryID)
		entry.ActorID = id.UserID(actor)
		if targetNullable != nil {
			target := id.UserID(*targetNullable)
			entry.TargetUserID = &target
		}
		entry.ModuleKey = moduleKey.String
		entry.ActionKey = actionKey.String
		entry.ActionType = ActionType(actionType)
		entry.RiskLevel = RiskLevel(riskLevel)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &entry.Details); err != nil {
				return nil, fmt.Errorf("unmarshal audit details: %w", err)
			}
		}

		// MinRisk ordering lives in Go; SQL sees only equality filters.
		if filter.MinRisk != "" && !entry.RiskLevel.AtLeast(filter.MinRisk) {
			continue
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}
