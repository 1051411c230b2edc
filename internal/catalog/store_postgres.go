package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore reads the catalog from PostgreSQL. The tables are seeded by
// migrations; this core never writes them.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed catalog store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ListModules(ctx context.Context) ([]Module, error) {
	query := `
		SELECT module_key, display_name, icon, is_active
		FROM system_modules
		ORDER BY display_name
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query modules: %w", err)
	}
	defer rows.Close()

	var modules []Module
	for rows.Next() {
		var module Module
		if err := rows.Scan(&module.Key, &module.DisplayName, &module.Icon, &module.Active); err != nil {
			return nil, fmt.Errorf("scan module: %w", err)
		}
		modules = append(modules, module)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate modules: %w", err)
	}
	return modules, nil
}

func (s *PostgresStore) ListActions(ctx context.Context) ([]Action, error) {
	query := `
		SELECT action_key, display_name, is_sensitive, requires_approval
		FROM system_actions
		ORDER BY action_key
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	var actions []Action
	for rows.Next() {
		var action Action
		if err := rows.Scan(&action.Key, &action.DisplayName, &action.IsSensitive, &action.RequiresApproval); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actions: %w", err)
	}
	return actions, nil
}

func (s *PostgresStore) ListPairs(ctx context.Context) ([]Pair, error) {
	query := `
		SELECT sm.module_key, sa.action_key
		FROM module_actions ma
		JOIN system_modules sm ON ma.module_id = sm.id
		JOIN system_actions sa ON ma.action_id = sa.id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query module actions: %w", err)
	}
	defer rows.Close()

	var pairs []Pair
	for rows.Next() {
		var pair Pair
		if err := rows.Scan(&pair.ModuleKey, &pair.ActionKey); err != nil {
			return nil, fmt.Errorf("scan module action: %w", err)
		}
		pairs = append(pairs, pair)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate module actions: %w", err)
	}
	return pairs, nil
}
