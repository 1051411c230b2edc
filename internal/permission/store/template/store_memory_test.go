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
)

func newTemplate(name string, keys ...string) *permission.Template {
	pairs := make([]catalog.Pair, 0, len(keys))
	for _, key := range keys {
		pair, err := catalog.ParsePair(key)
		if err != nil {
			panic(err)
		}
		pairs = append(pairs, pair)
	}
	return &permission.Template{
		ID:        id.TemplateID(uuid.New()),
		Name:      name,
		Pairs:     pairs,
		CreatedBy: id.UserID(uuid.New()),
		CreatedAt: time.Now(),
	}
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()

	require.NoError(t, store.Create(ctx, newTemplate("Cashier", "pos:view", "sales:create")))

	err := store.Create(ctx, newTemplate("cashier", "pos:view"))
	require.ErrorIs(t, err, sentinel.ErrConflict)
}

func TestGetUnknownTemplate(t *testing.T) {
	store := NewInMemory()

	_, err := store.Get(context.Background(), id.TemplateID(uuid.New()))
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestListSortsByName(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()

	require.NoError(t, store.Create(ctx, newTemplate("Manager", "pos:manage")))
	require.NoError(t, store.Create(ctx, newTemplate("Cashier", "pos:view")))

	templates, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, templates, 2)
	assert.Equal(t, "Cashier", templates[0].Name)
	assert.Equal(t, "Manager", templates[1].Name)
}

func TestReturnedTemplatesAreCopies(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()

	tpl := newTemplate("Cashier", "pos:view")
	require.NoError(t, store.Create(ctx, tpl))

	got, err := store.Get(ctx, tpl.ID)
	require.NoError(t, err)
	got.Pairs[0] = catalog.Pair{ModuleKey: "pos", ActionKey: "manage"}

	again, err := store.Get(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, []catalog.Pair{{ModuleKey: "pos", ActionKey: "view"}}, again.Pairs)
}
