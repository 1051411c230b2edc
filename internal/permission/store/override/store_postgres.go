package override

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"permit/internal/catalog"
	"permit/internal/permission"
	id "permit/pkg/domain"
	txcontext "permit/pkg/platform/tx"
)

// PostgresStore persists individual overrides in PostgreSQL. Mutations honor
// a transaction carried in context so supersession (deactivate + insert)
// commits atomically.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed override store.
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

func (s *PostgresStore) Insert(ctx context.Context, row *permission.Override) error {
	var conditions []byte
	if !row.Conditions.IsZero() {
		var err error
		conditions, err = json.Marshal(row.Conditions)
		if err != nil {
			return fmt.Errorf("marshal conditions: %w", err)
		}
	}

	query := `
		INSERT INTO user_permissions (
			id, user_id, module_id, action_id, is_granted, conditions,
			expires_at, is_active, granted_by, reason, created_at
		)
		SELECT $1, $2, sm.id, sa.id, $3, $4, $5, $6, $7, $8, $9
		FROM system_modules sm, system_actions sa
		WHERE sm.module_key = $10 AND sa.action_key = $11
	`
	result, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(row.ID),
		uuid.UUID(row.UserID),
		row.Granted,
		conditions,
		nullTime(row.ExpiresAt),
		row.Active,
		uuid.UUID(row.GrantedBy),
		row.Reason,
		row.CreatedAt,
		row.Pair.ModuleKey,
		row.Pair.ActionKey,
	)
	if err != nil {
		return fmt.Errorf("insert override: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("pair %s not in catalog", row.Pair)
	}
	return nil
}

func (s *PostgresStore) DeactivateActive(ctx context.Context, userID id.UserID, pair catalog.Pair, _ time.Time) (bool, error) {
	query := `
		UPDATE user_permissions up
		SET is_active = FALSE
		FROM system_modules sm, system_actions sa
		WHERE up.module_id = sm.id AND up.action_id = sa.id
		  AND up.user_id = $1 AND sm.module_key = $2 AND sa.action_key = $3
		  AND up.is_active
	`
	result, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(userID), pair.ModuleKey, pair.ActionKey,
	)
	if err != nil {
		return false, fmt.Errorf("deactivate override: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deactivate override: %w", err)
	}
	return affected > 0, nil
}

const overrideColumns = `
	up.id, up.user_id, sm.module_key, sa.action_key, up.is_granted,
	up.conditions, up.expires_at, up.is_active, up.granted_by, up.reason, up.created_at
`

func (s *PostgresStore) ActiveOverride(ctx context.Context, userID id.UserID, pair catalog.Pair) (*permission.Override, error) {
	query := `
		SELECT ` + overrideColumns + `
		FROM user_permissions up
		JOIN system_modules sm ON up.module_id = sm.id
		JOIN system_actions sa ON up.action_id = sa.id
		WHERE up.user_id = $1 AND sm.module_key = $2 AND sa.action_key = $3 AND up.is_active
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(userID), pair.ModuleKey, pair.ActionKey)
	if err != nil {
		return nil, fmt.Errorf("query override: %w", err)
	}
	defer rows.Close()

	overrides, err := scanOverrides(rows)
	if err != nil {
		return nil, err
	}
	if len(overrides) == 0 {
		return nil, nil
	}
	return overrides[0], nil
}

func (s *PostgresStore) ListActiveByUser(ctx context.Context, userID id.UserID) ([]*permission.Override, error) {
	query := `
		SELECT ` + overrideColumns + `
		FROM user_permissions up
		JOIN system_modules sm ON up.module_id = sm.id
		JOIN system_actions sa ON up.action_id = sa.id
		WHERE up.user_id = $1 AND up.is_active
		ORDER BY sm.module_key, sa.action_key
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("query overrides: %w", err)
	}
	defer rows.Close()
	return scanOverrides(rows)
}

func (s *PostgresStore) History(ctx context.Context, userID id.UserID, pair catalog.Pair) ([]*permission.Override, error) {
	query := `
		SELECT ` + overrideColumns + `
		FROM user_permissions up
		JOIN system_modules sm ON up.module_id = sm.id
		JOIN system_actions sa ON up.action_id = sa.id
		WHERE up.user_id = $1 AND sm.module_key = $2 AND sa.action_key = $3
		ORDER BY up.created_at
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(userID), pair.ModuleKey, pair.ActionKey)
	if err != nil {
		return nil, fmt.Errorf("query override history: %w", err)
	}
	defer rows.Close()
	return scanOverrides(rows)
}

func scanOverrides(rows *sql.Rows) ([]*permission.Override, error) {
	var overrides []*permission.Override
	for rows.Next() {
		var (
			row        permission.Override
			rowID      uuid.UUID
			userID     uuid.UUID
			grantedBy  uuid.UUID
			conditions []byte
			expiresAt  sql.NullTime
			reason     sql.NullString
		)
		err := rows.Scan(&rowID, &userID, &row.Pair.ModuleKey, &row.Pair.ActionKey, &row.Granted,
			&conditions, &expiresAt, &row.Active, &grantedBy, &reason, &row.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		row.ID = id.OverrideID(rowID)
		row.UserID = id.UserID(userID)
		row.GrantedBy = id.UserID(grantedBy)
		row.Reason = reason.String
		if expiresAt.Valid {
			expiry := expiresAt.Time
			row.ExpiresAt = &expiry
		}
		if len(conditions) > 0 {
			if err := json.Unmarshal(conditions, &row.Conditions); err != nil {
				return nil, fmt.Errorf("unmarshal conditions: %w", err)
			}
		}
		overrides = append(overrides, &row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate overrides: %w", err)
	}
	return overrides, nil
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *value, Valid: true}
}
