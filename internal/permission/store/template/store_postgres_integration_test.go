//go:build integration

package template

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permit/internal/catalog"
	"permit/internal/permission"
	id "permit/pkg/domain"
	"permit/pkg/platform/sentinel"
	"permit/pkg/testutil/containers"
)

func TestPostgresTemplateStore(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	store := NewPostgres(pg.DB)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	newTemplate := func(name string) *permission.Template {
		return &permission.Template{
			ID:          id.TemplateID(uuid.New()),
			Name:        name,
			Description: "starter set",
			Pairs: []catalog.Pair{
				{ModuleKey: "pos", ActionKey: "view"},
				{ModuleKey: "sales", ActionKey: "create"},
			},
			CreatedBy: id.UserID(uuid.New()),
			CreatedAt: now,
		}
	}

	t.Run("create and get preserves pairs", func(t *testing.T) {
		require.NoError(t, pg.TruncateState(ctx))
		tpl := newTemplate("Cashier")
		require.NoError(t, store.Create(ctx, tpl))

		got, err := store.Get(ctx, tpl.ID)
		require.NoError(t, err)
		assert.Equal(t, tpl.Name, got.Name)
		assert.Equal(t, tpl.Pairs, got.Pairs)
	})

	t.Run("duplicate name conflicts case insensitively", func(t *testing.T) {
		require.NoError(t, pg.TruncateState(ctx))
		require.NoError(t, store.Create(ctx, newTemplate("Cashier")))
		assert.ErrorIs(t, store.Create(ctx, newTemplate("cashier")), sentinel.ErrConflict)
	})

	t.Run("get unknown template", func(t *testing.T) {
		require.NoError(t, pg.TruncateState(ctx))
		_, err := store.Get(ctx, id.TemplateID(uuid.New()))
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("list ordered by name", func(t *testing.T) {
		require.NoError(t, pg.TruncateState(ctx))
		require.NoError(t, store.Create(ctx, newTemplate("Waiter")))
		require.NoError(t, store.Create(ctx, newTemplate("Cashier")))

		templates, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, templates, 2)
		assert.Equal(t, "Cashier", templates[0].Name)
		assert.Equal(t, "Waiter", templates[1].Name)
	})
}
