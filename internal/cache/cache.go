// Package cache provides an optional Redis-backed result cache for
// expensive insight payloads. A nil *Cache is a no-op, so callers never
// branch on whether caching is configured.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sohailahmedkhan/agents/config"
)

// Cache stores JSON payloads under namespaced keys with a TTL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *log.Logger
}

// New connects to Redis and verifies the connection. Returns nil (no
// error) when no host is configured; caching is simply off.
func New(ctx context.Context, cfg config.CacheConfig, logger *log.Logger) (*Cache, error) {
	if cfg.Host == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Pass,
		DB:       cfg.DB,
	})
	pingTimeout := cfg.Timeout
	if pingTimeout <= 0 {
		pingTimeout = 2 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis at %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{client: client, ttl: ttl, logger: logger}, nil
}

// Close releases the Redis client.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

// Get loads the payload for key into dst. The bool reports a hit.
func (c *Cache) Get(ctx context.Context, key string, dst any) bool {
	if c == nil {
		return false
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.logger.Printf("[CACHE] corrupt entry at %s: %v", key, err)
		return false
	}
	return true
}

// Set stores the payload for key. Failures are logged, never returned;
// the cache is best effort.
func (c *Cache) Set(ctx context.Context, key string, value any) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Printf("[CACHE] marshaling %s: %v", key, err)
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Printf("[CACHE] storing %s: %v", key, err)
	}
}
