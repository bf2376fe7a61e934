package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meridian-icu/registry/pkg/analytics"
	"github.com/meridian-icu/registry/pkg/common/logger"
)

const aggregateKeyPrefix = "registry:aggregates:"

// ErrCacheMiss is returned when the requested aggregate is not cached.
var ErrCacheMiss = errors.New("aggregate not in cache")

// AggregateCache keeps the latest suppressed statistics in Redis so the
// read API does not re-read exported files on every request. Only
// post-suppression payloads go in here; the cache must never see a raw
// count.
type AggregateCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewAggregateCache(client *redis.Client, ttl time.Duration) *AggregateCache {
	return &AggregateCache{client: client, ttl: ttl}
}

// StoreStatistics caches the complete statistics set under a single key.
func (c *AggregateCache) StoreStatistics(ctx context.Context, stats analytics.Statistics) error {
	payload, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encoding statistics: %w", err)
	}

	key := aggregateKeyPrefix + "complete"
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		logger.Log.WithError(err).Warn("Failed to cache aggregates")
		return err
	}

	logger.Log.WithField("key", key).Debug("Cached aggregate statistics")
	return nil
}

// Statistics returns the cached statistics set, or ErrCacheMiss.
func (c *AggregateCache) Statistics(ctx context.Context) (analytics.Statistics, error) {
	var stats analytics.Statistics

	payload, err := c.client.Get(ctx, aggregateKeyPrefix+"complete").Bytes()
	if errors.Is(err, redis.Nil) {
		return stats, ErrCacheMiss
	}
	if err != nil {
		return stats, fmt.Errorf("reading aggregate cache: %w", err)
	}

	if err := json.Unmarshal(payload, &stats); err != nil {
		return stats, fmt.Errorf("decoding cached statistics: %w", err)
	}
	return stats, nil
}

// Invalidate drops the cached statistics, forcing the next read to fall
// back to the exported files.
func (c *AggregateCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, aggregateKeyPrefix+"complete").Err()
}
