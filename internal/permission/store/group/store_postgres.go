package group

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"permit/internal/catalog"
	"permit/internal/permission"
	id "permit/pkg/domain"
	"permit/pkg/platform/sentinel"
	txcontext "permit/pkg/platform/tx"
)

// PostgresStore persists groups, group permissions, and memberships in
// PostgreSQL. Mutations honor a transaction carried in context.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed group store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

func (s *PostgresStore) CreateGroup(ctx context.Context, group *permission.Group) error {
	query := `
		INSERT INTO permission_groups (id, name, description, color, is_active, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(group.ID),
		group.Name,
		group.Description,
		group.Color,
		group.Active,
		uuid.UUID(group.CreatedBy),
		group.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("group name %q taken: %w", group.Name, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetGroup(ctx context.Context, groupID id.GroupID) (*permission.Group, error) {
	query := `
		SELECT id, name, description, color, is_active, created_by, created_at
		FROM permission_groups
		WHERE id = $1
	`
	var (
		group     permission.Group
		gid       uuid.UUID
		createdBy uuid.UUID
	)
	err := s.db.QueryRowContext(ctx, query, uuid.UUID(groupID)).Scan(
		&gid, &group.Name, &group.Description, &group.Color, &group.Active, &createdBy, &group.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("group %s: %w", groupID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query group: %w", err)
	}
	group.ID = id.GroupID(gid)
	group.CreatedBy = id.UserID(createdBy)
	return &group, nil
}

func (s *PostgresStore) ListGroups(ctx context.Context) ([]*permission.Group, error) {
	query := `
		SELECT id, name, description, color, is_active, created_by, created_at
		FROM permission_groups
		ORDER BY name
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	var groups []*permission.Group
	for rows.Next() {
		var (
			group     permission.Group
			gid       uuid.UUID
			createdBy uuid.UUID
		)
		if err := rows.Scan(&gid, &group.Name, &group.Description, &group.Color, &group.Active, &createdBy, &group.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		group.ID = id.GroupID(gid)
		group.CreatedBy = id.UserID(createdBy)
		groups = append(groups, &group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	return groups, nil
}

// ReplacePermissions deletes the group's current permission rows and inserts
// the supplied set. The caller must run this inside a transaction (via
// tx-in-context) so concurrent readers never observe the intermediate state.
func (s *PostgresStore) ReplacePermissions(ctx context.Context, groupID id.GroupID, perms []permission.GroupPermission) error {
	execer := s.execer(ctx)

	var exists bool
	err := execer.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM permission_groups WHERE id = $1)`,
		uuid.UUID(groupID),
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check group: %w", err)
	}
	if !exists {
		return fmt.Errorf("group %s: %w", groupID, sentinel.ErrNotFound)
	}

	if _, err := execer.ExecContext(ctx,
		`DELETE FROM group_permissions WHERE group_id = $1`,
		uuid.UUID(groupID),
	); err != nil {
		return fmt.Errorf("clear group permissions: %w", err)
	}

	insert := `
		INSERT INTO group_permissions (group_id, module_id, action_id, is_granted, granted_by)
		SELECT $1, sm.id, sa.id, $2, $3
		FROM system_modules sm, system_actions sa
		WHERE sm.module_key = $4 AND sa.action_key = $5
	`
	for _, perm := range perms {
		result, err := execer.ExecContext(ctx, insert,
			uuid.UUID(groupID),
			perm.Granted,
			uuid.UUID(perm.GrantedBy),
			perm.Pair.ModuleKey,
			perm.Pair.ActionKey,
		)
		if err != nil {
			return fmt.Errorf("insert group permission %s: %w", perm.Pair, err)
		}
		if affected, err := result.RowsAffected(); err == nil && affected == 0 {
			return fmt.Errorf("pair %s not in catalog: %w", perm.Pair, sentinel.ErrInvalidState)
		}
	}
	return nil
}

func (s *PostgresStore) GrantedPairs(ctx context.Context, groupID id.GroupID) ([]catalog.Pair, error) {
	if _, err := s.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	query := `
		SELECT sm.module_key, sa.action_key
		FROM group_permissions gp
		JOIN system_modules sm ON gp.module_id = sm.id
		JOIN system_actions sa ON gp.action_id = sa.id
		WHERE gp.group_id = $1 AND gp.is_granted
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(groupID))
	if err != nil {
		return nil, fmt.Errorf("query group permissions: %w", err)
	}
	defer rows.Close()

	var pairs []catalog.Pair
	for rows.Next() {
		var pair catalog.Pair
		if err := rows.Scan(&pair.ModuleKey, &pair.ActionKey); err != nil {
			return nil, fmt.Errorf("scan group permission: %w", err)
		}
		pairs = append(pairs, pair)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group permissions: %w", err)
	}
	return pairs, nil
}

func (s *PostgresStore) InsertMembership(ctx context.Context, membership *permission.Membership) error {
	// The partial unique index on (group_id, user_id) WHERE is_active
	// enforces the one-active-row invariant under concurrency.
	query := `
		INSERT INTO user_group_memberships (id, group_id, user_id, granted_by, expires_at, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(membership.ID),
		uuid.UUID(membership.GroupID),
		uuid.UUID(membership.UserID),
		uuid.UUID(membership.GrantedBy),
		nullTime(membership.ExpiresAt),
		membership.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("active membership exists: %w", sentinel.ErrConflict)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("group %s: %w", membership.GroupID, sentinel.ErrNotFound)
		}
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeactivateMembership(ctx context.Context, groupID id.GroupID, userID id.UserID, reason string, endedAt time.Time) error {
	query := `
		UPDATE user_group_memberships
		SET is_active = FALSE, ended_reason = $1, ended_at = $2
		WHERE group_id = $3 AND user_id = $4 AND is_active
	`
	result, err := s.execer(ctx).ExecContext(ctx, query,
		reason, endedAt, uuid.UUID(groupID), uuid.UUID(userID),
	)
	if err != nil {
		return fmt.Errorf("deactivate membership: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("no active membership: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ActiveMembers(ctx context.Context, groupID id.GroupID, asOf time.Time) ([]id.UserID, error) {
	query := `
		SELECT user_id
		FROM user_group_memberships
		WHERE group_id = $1 AND is_active AND (expires_at IS NULL OR expires_at > $2)
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(groupID), asOf)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var members []id.UserID
	for rows.Next() {
		var userID uuid.UUID
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, id.UserID(userID))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return members, nil
}

func (s *PostgresStore) GroupsOf(ctx context.Context, userID id.UserID, asOf time.Time) ([]*permission.Group, error) {
	query := `
		SELECT pg.id, pg.name, pg.description, pg.color, pg.is_active, pg.created_by, pg.created_at
		FROM permission_groups pg
		JOIN user_group_memberships ugm ON ugm.group_id = pg.id
		WHERE ugm.user_id = $1
		  AND ugm.is_active
		  AND (ugm.expires_at IS NULL OR ugm.expires_at > $2)
		  AND pg.is_active
		ORDER BY pg.name
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(userID), asOf)
	if err != nil {
		return nil, fmt.Errorf("query user groups: %w", err)
	}
	defer rows.Close()

	var groups []*permission.Group
	for rows.Next() {
		var (
			group     permission.Group
			gid       uuid.UUID
			createdBy uuid.UUID
		)
		if err := rows.Scan(&gid, &group.Name, &group.Description, &group.Color, &group.Active, &createdBy, &group.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user group: %w", err)
		}
		group.ID = id.GroupID(gid)
		group.CreatedBy = id.UserID(createdBy)
		groups = append(groups, &group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user groups: %w", err)
	}
	return groups, nil
}

func (s *PostgresStore) UserGrantedPairs(ctx context.Context, userID id.UserID, asOf time.Time) ([]catalog.Pair, error) {
	query := `
		SELECT DISTINCT sm.module_key, sa.action_key
		FROM user_group_memberships ugm
		JOIN permission_groups pg ON ugm.group_id = pg.id
		JOIN group_permissions gp ON pg.id = gp.group_id
		JOIN system_modules sm ON gp.module_id = sm.id
		JOIN system_actions sa ON gp.action_id = sa.id
		WHERE ugm.user_id = $1
		  AND ugm.is_active
		  AND (ugm.expires_at IS NULL OR ugm.expires_at > $2)
		  AND pg.is_active
		  AND gp.is_granted
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(userID), asOf)
	if err != nil {
		return nil, fmt.Errorf("query user group pairs: %w", err)
	}
	defer rows.Close()

	var pairs []catalog.Pair
	for rows.Next() {
		var pair catalog.Pair
		if err := rows.Scan(&pair.ModuleKey, &pair.ActionKey); err != nil {
			return nil, fmt.Errorf("scan user group pair: %w", err)
		}
		pairs = append(pairs, pair)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user group pairs: %w", err)
	}
	return pairs, nil
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *value, Valid: true}
}
