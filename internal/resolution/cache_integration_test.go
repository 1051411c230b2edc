//go:build integration

package resolution

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permit/internal/audit"
	"permit/internal/catalog"
	"permit/internal/permission"
	groupstore "permit/internal/permission/store/group"
	overridestore "permit/internal/permission/store/override"
	redisplatform "permit/internal/platform/redis"
	id "permit/pkg/domain"
	"permit/pkg/testutil/containers"
)

func TestSnapshotCacheRedis(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	client := &redisplatform.Client{Client: rc.Client}
	ctx := context.Background()
	userID := id.UserID(uuid.New())

	t.Run("round trip and invalidate", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		cache := NewSnapshotCache(client, time.Minute, nil, nil)

		assert.Nil(t, cache.get(ctx, userID))

		snap := &userSnapshot{
			Overrides: []*permission.Override{{
				ID:      id.OverrideID(uuid.New()),
				UserID:  userID,
				Pair:    catalog.Pair{ModuleKey: "pos", ActionKey: "refund"},
				Granted: true,
				Active:  true,
				Conditions: permission.Conditions{
					AmountCeiling: &permission.AmountCeiling{Limit: 50},
				},
			}},
			GroupPairs: []catalog.Pair{{ModuleKey: "pos", ActionKey: "view"}},
		}
		cache.set(ctx, userID, snap)

		got := cache.get(ctx, userID)
		require.NotNil(t, got)
		require.Len(t, got.Overrides, 1)
		require.NotNil(t, got.Overrides[0].Conditions.AmountCeiling)
		assert.Equal(t, 50.0, got.Overrides[0].Conditions.AmountCeiling.Limit)
		assert.True(t, got.groupAllows(catalog.Pair{ModuleKey: "pos", ActionKey: "view"}))

		require.NoError(t, cache.InvalidateUser(ctx, userID))
		assert.Nil(t, cache.get(ctx, userID))
	})

	t.Run("expires after ttl", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		cache := NewSnapshotCache(client, time.Second, nil, nil)
		cache.set(ctx, userID, &userSnapshot{})
		require.NotNil(t, cache.get(ctx, userID))

		time.Sleep(1500 * time.Millisecond)
		assert.Nil(t, cache.get(ctx, userID))
	})

	t.Run("check serves from cache until invalidated", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		catalogStore := catalog.NewInMemoryStore()
		catalog.SeedHospitalityCatalog(catalogStore)
		groups := groupstore.NewInMemoryStore()
		overrides := overridestore.NewInMemoryStore()
		cache := NewSnapshotCache(client, time.Minute, nil, nil)
		resolver := New(
			catalog.NewRegistry(catalogStore),
			overrides, groups,
			audit.NewLedger(audit.NewInMemoryStore()),
			WithCache(cache),
		)

		pair := catalog.Pair{ModuleKey: "inventory", ActionKey: "view"}
		now := time.Date(2025, time.March, 10, 14, 0, 0, 0, time.UTC)
		decision := resolver.Check(ctx, userID, pair, Context{Now: now})
		assert.False(t, decision.Allow)

		// the denial is now cached; a direct store write alone is invisible
		require.NoError(t, overrides.Insert(ctx, &permission.Override{
			ID:      id.OverrideID(uuid.New()),
			UserID:  userID,
			Pair:    pair,
			Granted: true,
			Active:  true,
		}))
		decision = resolver.Check(ctx, userID, pair, Context{Now: now})
		assert.False(t, decision.Allow)

		require.NoError(t, cache.InvalidateUser(ctx, userID))
		decision = resolver.Check(ctx, userID, pair, Context{Now: now})
		assert.True(t, decision.Allow)
		assert.Equal(t, ReasonExplicitGrant, decision.Reason)
	})
}
