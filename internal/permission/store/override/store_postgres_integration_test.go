//go:build integration

package override

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
	"permit/pkg/testutil/containers"
)

func TestPostgresOverrideStore(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	store := NewPostgres(pg.DB)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	pair := catalog.Pair{ModuleKey: "pos", ActionKey: "refund"}

	newOverride := func(userID id.UserID, granted bool) *permission.Override {
		return &permission.Override{
			ID:        id.OverrideID(uuid.New()),
			UserID:    userID,
			Pair:      pair,
			Granted:   granted,
			Active:    true,
			GrantedBy: id.UserID(uuid.New()),
			Reason:    "shift cover",
			CreatedAt: now,
		}
	}

	t.Run("insert and read back", func(t *testing.T) {
		require.NoError(t, pg.TruncateState(ctx))
		userID := id.UserID(uuid.New())
		require.NoError(t, store.Insert(ctx, newOverride(userID, true)))

		got, err := store.ActiveOverride(ctx, userID, pair)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, got.Granted)
		assert.Equal(t, pair, got.Pair)
		assert.Equal(t, "shift cover", got.Reason)
	})

	t.Run("unknown pair is rejected", func(t *testing.T) {
		require.NoError(t, pg.TruncateState(ctx))
		row := newOverride(id.UserID(uuid.New()), true)
		row.Pair = catalog.Pair{ModuleKey: "pos", ActionKey: "bogus"}
		assert.Error(t, store.Insert(ctx, row))
	})

	t.Run("deactivate then insert keeps one active row", func(t *testing.T) {
		require.NoError(t, pg.TruncateState(ctx))
		userID := id.UserID(uuid.New())
		require.NoError(t, store.Insert(ctx, newOverride(userID, true)))

		superseded, err := store.DeactivateActive(ctx, userID, pair, now)
		require.NoError(t, err)
		assert.True(t, superseded)
		require.NoError(t, store.Insert(ctx, newOverride(userID, false)))

		active, err := store.ActiveOverride(ctx, userID, pair)
		require.NoError(t, err)
		require.NotNil(t, active)
		assert.False(t, active.Granted)

		history, err := store.History(ctx, userID, pair)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.False(t, history[0].Active)
		assert.True(t, history[1].Active)
	})

	t.Run("deactivate without active row reports false", func(t *testing.T) {
		require.NoError(t, pg.TruncateState(ctx))
		superseded, err := store.DeactivateActive(ctx, id.UserID(uuid.New()), pair, now)
		require.NoError(t, err)
		assert.False(t, superseded)
	})

	t.Run("conditions survive the jsonb round trip", func(t *testing.T) {
		require.NoError(t, pg.TruncateState(ctx))
		userID := id.UserID(uuid.New())
		expiry := now.Add(8 * time.Hour)
		row := newOverride(userID, true)
		row.Conditions = permission.Conditions{
			TimeWindow:    &permission.TimeWindow{StartHour: 22, EndHour: 6},
			AmountCeiling: &permission.AmountCeiling{Limit: 250},
		}
		row.ExpiresAt = &expiry
		require.NoError(t, store.Insert(ctx, row))

		got, err := store.ActiveOverride(ctx, userID, pair)
		require.NoError(t, err)
		require.NotNil(t, got.Conditions.TimeWindow)
		assert.Equal(t, 22, got.Conditions.TimeWindow.StartHour)
		assert.Equal(t, 6, got.Conditions.TimeWindow.EndHour)
		require.NotNil(t, got.Conditions.AmountCeiling)
		assert.Equal(t, 250.0, got.Conditions.AmountCeiling.Limit)
		require.NotNil(t, got.ExpiresAt)
		assert.WithinDuration(t, expiry, *got.ExpiresAt, time.Second)
	})

	t.Run("list active scoped to user", func(t *testing.T) {
		require.NoError(t, pg.TruncateState(ctx))
		userID := id.UserID(uuid.New())
		other := newOverride(id.UserID(uuid.New()), true)
		require.NoError(t, store.Insert(ctx, newOverride(userID, true)))
		require.NoError(t, store.Insert(ctx, other))

		rows, err := store.ListActiveByUser(ctx, userID)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, userID, rows[0].UserID)
	})
}
