package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/weblog-etl/internal/domain"
)

const geoKeyPrefix = "weblog-etl:geo:"

// GeoCache implements domain.GeoCache with one JSON string per address.
// After a connection failure it stops talking to Redis for the rest of the
// run; lookups then go straight to the provider.
type GeoCache struct {
	client      *redis.Client
	logger      *slog.Logger
	ttl         time.Duration
	isAvailable atomic.Bool
}

// NewGeoCache creates a Redis-backed geo cache. A zero ttl keeps entries forever.
func NewGeoCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *GeoCache {
	c := &GeoCache{
		client: client,
		logger: logger.With("component", "redis_geo_cache"),
		ttl:    ttl,
	}
	c.isAvailable.Store(true) // Assume available initially
	return c
}

// Ping checks connectivity and marks the cache unavailable on failure.
func (c *GeoCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		c.isAvailable.Store(false)
		return err
	}
	c.isAvailable.Store(true)
	return nil
}

// Get returns the cached metadata for address, if any.
func (c *GeoCache) Get(ctx context.Context, address string) (domain.GeoMetadata, bool, error) {
	if !c.isAvailable.Load() {
		return domain.GeoMetadata{}, false, nil
	}

	payload, err := c.client.Get(ctx, geoKeyPrefix+address).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.GeoMetadata{}, false, nil
		}
		c.markDown(err)
		return domain.GeoMetadata{}, false, fmt.Errorf("failed to GET geo entry from redis: %w", err)
	}

	var meta domain.GeoMetadata
	if err := json.Unmarshal(payload, &meta); err != nil {
		c.logger.Warn("Discarding undecodable geo cache entry", "address", address, "error", err)
		return domain.GeoMetadata{}, false, nil
	}
	return meta, true, nil
}

// Set stores metadata for address.
func (c *GeoCache) Set(ctx context.Context, address string, meta domain.GeoMetadata) error {
	if !c.isAvailable.Load() {
		return nil
	}

	payload, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal geo metadata: %w", err)
	}
	if err := c.client.Set(ctx, geoKeyPrefix+address, payload, c.ttl).Err(); err != nil {
		c.markDown(err)
		return fmt.Errorf("failed to SET geo entry in redis: %w", err)
	}
	return nil
}

func (c *GeoCache) markDown(err error) {
	if isNetworkError(err) && c.isAvailable.CompareAndSwap(true, false) {
		c.logger.Error("Redis connection lost, continuing without geo cache", "error", err)
	}
}

func isNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, redis.ErrClosed)
}
