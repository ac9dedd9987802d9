package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"story-bot/api/internal/logger"
)

const DefaultCacheTTL = 10 * time.Minute

// CachedStore is a read-through Redis cache in front of another Store. Stored analyses are
// immutable, so entries are only ever added and expire by TTL. Misses of the backing store
// are never cached.
type CachedStore struct {
	next   Store
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

func NewCachedStore(next Store, client *redis.Client, ttl time.Duration, log *logger.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CachedStore{next: next, client: client, ttl: ttl, log: log}
}

func (c *CachedStore) key(assetID int64) string {
	return fmt.Sprintf("vision:analysis:%d", assetID)
}

func (c *CachedStore) Get(ctx context.Context, assetID int64) (Analysis, error) {
	raw, err := c.client.Get(ctx, c.key(assetID)).Bytes()
	switch {
	case err == nil:
		var a Analysis
		if jerr := json.Unmarshal(raw, &a); jerr == nil {
			return a, nil
		}
		// broken entry: drop it and go to the source
		c.client.Del(ctx, c.key(assetID))
	case errors.Is(err, redis.Nil):
	default:
		// cache outage must not break reads
		c.log.Warn("vision cache get failed", "asset_id", assetID, "error", err)
	}

	a, err := c.next.Get(ctx, assetID)
	if err != nil {
		return Analysis{}, err
	}
	if data, jerr := json.Marshal(a); jerr == nil {
		if serr := c.client.Set(ctx, c.key(assetID), data, c.ttl).Err(); serr != nil {
			c.log.Warn("vision cache set failed", "asset_id", assetID, "error", serr)
		}
	}
	return a, nil
}
