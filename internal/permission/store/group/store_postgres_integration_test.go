//go:build integration

package group

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
	txcontext "permit/pkg/platform/tx"
	"permit/pkg/testutil/containers"
)

func TestPostgresGroupStore(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	store := NewPostgres(pg.DB)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	newGroup := func(name string) *permission.Group {
		return &permission.Group{
			ID:        id.GroupID(uuid.New()),
			Name:      name,
			Active:    true,
			CreatedBy: id.UserID(uuid.New()),
			CreatedAt: now,
		}
	}

	t.Run("create get and duplicate name", func(t *testing.T) {
		require.NoError(t, pg.TruncateState(ctx))
		group := newGroup("Night Shift")
		require.NoError(t, store.CreateGroup(ctx, group))

		got, err := store.GetGroup(ctx, group.ID)
		require.NoError(t, err)
		assert.Equal(t, group.Name, got.Name)

		err = store.CreateGroup(ctx, newGroup("night shift"))
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("replace permissions swaps set", func(t *testing.T) {
		require.NoError(t, pg.TruncateState(ctx))
		group := newGroup("Managers")
		require.NoError(t, store.CreateGroup(ctx, group))
		grantedBy := id.UserID(uuid.New())

		require.NoError(t, store.ReplacePermissions(ctx, group.ID, []permission.GroupPermission{
			{GroupID: group.ID, Pair: catalog.Pair{ModuleKey: "pos", ActionKey: "view"}, Granted: true, GrantedBy: grantedBy},
			{GroupID: group.ID, Pair: catalog.Pair{ModuleKey: "sales", ActionKey: "refund"}, Granted: true, GrantedBy: grantedBy},
		}))
		require.NoError(t, store.ReplacePermissions(ctx, group.ID, []permission.GroupPermission{
			{GroupID: group.ID, Pair: catalog.Pair{ModuleKey: "inventory", ActionKey: "view"}, Granted: true, GrantedBy: grantedBy},
		}))

		pairs, err := store.GrantedPairs(ctx, group.ID)
		require.NoError(t, err)
		assert.Equal(t, []catalog.Pair{{ModuleKey: "inventory", ActionKey: "view"}}, pairs)
	})

	t.Run("replace rolls back inside failed transaction", func(t *testing.T) {
		require.NoError(t, pg.TruncateState(ctx))
		group := newGroup("Servers")
		require.NoError(t, store.CreateGroup(ctx, group))
		grantedBy := id.UserID(uuid.New())
		before := []permission.GroupPermission{
			{GroupID: group.ID, Pair: catalog.Pair{ModuleKey: "pos", ActionKey: "view"}, Granted: true, GrantedBy: grantedBy},
		}
		require.NoError(t, store.ReplacePermissions(ctx, group.ID, before))

		tx, err := pg.DB.BeginTx(ctx, nil)
		require.NoError(t, err)
		txCtx := txcontext.WithTx(ctx, tx)
		// unknown pair fails mid-replace after the delete already ran
		err = store.ReplacePermissions(txCtx, group.ID, []permission.GroupPermission{
			{GroupID: group.ID, Pair: catalog.Pair{ModuleKey: "pos", ActionKey: "bogus"}, Granted: true, GrantedBy: grantedBy},
		})
		require.Error(t, err)
		require.NoError(t, tx.Rollback())

		pairs, err := store.GrantedPairs(ctx, group.ID)
		require.NoError(t, err)
		assert.Equal(t, []catalog.Pair{{ModuleKey: "pos", ActionKey: "view"}}, pairs)
	})

	t.Run("one active membership enforced by index", func(t *testing.T) {
		require.NoError(t, pg.TruncateState(ctx))
		group := newGroup("Servers")
		require.NoError(t, store.CreateGroup(ctx, group))
		userID := id.UserID(uuid.New())

		membership := func() *permission.Membership {
			return &permission.Membership{
				ID:        id.MembershipID(uuid.New()),
				GroupID:   group.ID,
				UserID:    userID,
				GrantedBy: id.UserID(uuid.New()),
				Active:    true,
				CreatedAt: now,
			}
		}
		require.NoError(t, store.InsertMembership(ctx, membership()))
		assert.ErrorIs(t, store.InsertMembership(ctx, membership()), sentinel.ErrConflict)

		require.NoError(t, store.DeactivateMembership(ctx, group.ID, userID, "shift over", now))
		assert.ErrorIs(t, store.DeactivateMembership(ctx, group.ID, userID, "again", now), sentinel.ErrNotFound)

		// rejoin after deactivation starts a fresh row
		require.NoError(t, store.InsertMembership(ctx, membership()))
	})

	t.Run("membership into unknown group is not found", func(t *testing.T) {
		require.NoError(t, pg.TruncateState(ctx))
		err := store.InsertMembership(ctx, &permission.Membership{
			ID:        id.MembershipID(uuid.New()),
			GroupID:   id.GroupID(uuid.New()),
			UserID:    id.UserID(uuid.New()),
			GrantedBy: id.UserID(uuid.New()),
			Active:    true,
			CreatedAt: now,
		})
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("user granted pairs joins memberships and groups", func(t *testing.T) {
		require.NoError(t, pg.TruncateState(ctx))
		group := newGroup("Hosts")
		require.NoError(t, store.CreateGroup(ctx, group))
		grantedBy := id.UserID(uuid.New())
		require.NoError(t, store.ReplacePermissions(ctx, group.ID, []permission.GroupPermission{
			{GroupID: group.ID, Pair: catalog.Pair{ModuleKey: "rooms", ActionKey: "view"}, Granted: true, GrantedBy: grantedBy},
		}))

		userID := id.UserID(uuid.New())
		expiry := now.Add(time.Hour)
		require.NoError(t, store.InsertMembership(ctx, &permission.Membership{
			ID:        id.MembershipID(uuid.New()),
			GroupID:   group.ID,
			UserID:    userID,
			GrantedBy: grantedBy,
			ExpiresAt: &expiry,
			Active:    true,
			CreatedAt: now,
		}))

		pairs, err := store.UserGrantedPairs(ctx, userID, now)
		require.NoError(t, err)
		assert.Equal(t, []catalog.Pair{{ModuleKey: "rooms", ActionKey: "view"}}, pairs)

		// past the membership expiry nothing is granted
		pairs, err = store.UserGrantedPairs(ctx, userID, now.Add(2*time.Hour))
		require.NoError(t, err)
		assert.Empty(t, pairs)
	})
}
