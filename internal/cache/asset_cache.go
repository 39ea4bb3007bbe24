// Package cache wraps internal/persistence.AssetRepo with a Redis-backed
// read-through cache keyed by asset_id: a thin client over
// github.com/redis/go-redis/v9 with a default TTL and a prefixed key
// space.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/riftline/inspectgate/internal/persistence"
)

// DefaultTTL is long enough that a burst of duplicate requests for a
// freshly-dispatched asset doesn't hammer Postgres, short enough that a
// refresh=true write is visible quickly.
const DefaultTTL = 60 * time.Second

const keyPrefix = "inspectgate:asset:"

// cacheType labels this cache's hit/miss observations on the metrics side.
const cacheType = "asset"

// HitRecorder receives hit/miss observations; *metrics.Registry satisfies
// it. Nil disables recording.
type HitRecorder interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

// AssetCache is a read-through cache in front of an AssetRepo.
type AssetCache struct {
	redis *redis.Client
	repo  persistence.AssetRepo
	ttl   time.Duration
	rec   HitRecorder
}

// NewRedisClient builds the pooled client the gateway shares across the
// cache layer.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,

		MaxRetries:      3,
		MinRetryBackoff: 100 * time.Millisecond,
		MaxRetryBackoff: 500 * time.Millisecond,
	})
}

// New builds an AssetCache over an existing AssetRepo and Redis client.
func New(client *redis.Client, repo persistence.AssetRepo, ttl time.Duration) *AssetCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &AssetCache{
		redis: client,
		repo:  repo,
		ttl:   ttl,
	}
}

// WithRecorder attaches a hit/miss recorder and returns the cache.
func (c *AssetCache) WithRecorder(rec HitRecorder) *AssetCache {
	c.rec = rec
	return c
}

// GetByAssetID consults Redis first; on a miss (or a Redis error, since
// the cache is an accelerator, not a source of truth) it falls through to
// the repository and populates the cache for next time.
func (c *AssetCache) GetByAssetID(ctx context.Context, assetID int64) (*persistence.Asset, error) {
	key := keyFor(assetID)

	raw, err := c.redis.Get(ctx, key).Bytes()
	if err == nil {
		var asset persistence.Asset
		if unmarshalErr := json.Unmarshal(raw, &asset); unmarshalErr == nil {
			c.recordHit()
			return &asset, nil
		}
		log.Warn().Str("key", key).Msg("dropping corrupt cache entry")
	} else if !errors.Is(err, redis.Nil) {
		log.Warn().Err(err).Str("key", key).Msg("cache read failed, falling through to repository")
	}
	c.recordMiss()

	asset, err := c.repo.GetByAssetID(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("repository lookup for asset %d: %w", assetID, err)
	}
	if asset == nil {
		return nil, nil
	}

	c.populate(ctx, key, asset)
	return asset, nil
}

// Upsert writes through to the repository then invalidates (rather than
// updates) the cache entry, so the next read repopulates it from the
// freshly-written row.
func (c *AssetCache) Upsert(ctx context.Context, asset persistence.Asset) error {
	if err := c.repo.Upsert(ctx, asset); err != nil {
		return err
	}
	if err := c.redis.Del(ctx, keyFor(asset.AssetID)).Err(); err != nil {
		log.Warn().Err(err).Int64("asset_id", asset.AssetID).Msg("cache invalidation failed")
	}
	return nil
}

func (c *AssetCache) populate(ctx context.Context, key string, asset *persistence.Asset) {
	data, err := json.Marshal(asset)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to marshal asset for cache")
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to populate cache")
	}
}

func (c *AssetCache) recordHit() {
	if c.rec != nil {
		c.rec.RecordCacheHit(cacheType)
	}
}

func (c *AssetCache) recordMiss() {
	if c.rec != nil {
		c.rec.RecordCacheMiss(cacheType)
	}
}

func keyFor(assetID int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, assetID)
}
