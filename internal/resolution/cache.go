package resolution

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"permit/internal/catalog"
	"permit/internal/permission"
	"permit/internal/platform/metrics"
	redisplatform "permit/internal/platform/redis"
	id "permit/pkg/domain"
)

const defaultSnapshotTTL = 30 * time.Second

// userSnapshot is everything resolution needs for one user: their active
// override rows (expired ones included, expiry is evaluated per check) and
// the pairs their groups grant.
type userSnapshot struct {
	Overrides  []*permission.Override `json:"overrides"`
	GroupPairs []catalog.Pair         `json:"group_pairs"`
}

func (s *userSnapshot) overrideFor(pair catalog.Pair) *permission.Override {
	for _, row := range s.Overrides {
		if row.Pair == pair {
			return row
		}
	}
	return nil
}

func (s *userSnapshot) groupAllows(pair catalog.Pair) bool {
	for _, granted := range s.GroupPairs {
		if granted == pair {
			return true
		}
	}
	return false
}

// SnapshotCache keeps per-user resolution snapshots in Redis. Every cache
// failure degrades to a direct store read; a check never fails because the
// cache is down.
type SnapshotCache struct {
	client  *redisplatform.Client
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewSnapshotCache(client *redisplatform.Client, ttl time.Duration, logger *slog.Logger, m *metrics.Metrics) *SnapshotCache {
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotCache{client: client, ttl: ttl, logger: logger, metrics: m}
}

func snapshotKey(userID id.UserID) string {
	return "perm:user:" + userID.String()
}

func (c *SnapshotCache) get(ctx context.Context, userID id.UserID) *userSnapshot {
	if c == nil || c.client == nil {
		return nil
	}
	payload, err := c.client.Get(ctx, snapshotKey(userID)).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.logger.WarnContext(ctx, "snapshot cache read failed",
				"user_id", userID.String(), "error", err)
		}
		c.miss()
		return nil
	}
	var snap userSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		c.logger.WarnContext(ctx, "snapshot cache entry corrupt",
			"user_id", userID.String(), "error", err)
		c.miss()
		return nil
	}
	c.hit()
	return &snap
}

func (c *SnapshotCache) set(ctx context.Context, userID id.UserID, snap *userSnapshot) {
	if c == nil || c.client == nil {
		return
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, snapshotKey(userID), payload, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "snapshot cache write failed",
			"user_id", userID.String(), "error", err)
	}
}

// InvalidateUser drops the user's cached snapshot. Called by the mutation
// layer after commit.
func (c *SnapshotCache) InvalidateUser(ctx context.Context, userID id.UserID) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, snapshotKey(userID)).Err()
}

func (c *SnapshotCache) hit() {
	if c.metrics != nil && c.metrics.CacheHitsTotal != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *SnapshotCache) miss() {
	if c.metrics != nil && c.metrics.CacheMissTotal != nil {
		c.metrics.CacheMissTotal.Inc()
	}
}
