// Copyright 2025 Mainsail
// SPDX-License-Identifier: Apache-2.0

// Package redis provides the Redis-backed counter store used for
// per-model quota accounting.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"mainsail/platform/shared/logger"
)

const (
	dialTimeout  = 5 * time.Second
	readTimeout  = 3 * time.Second
	writeTimeout = 3 * time.Second
)

// Client wraps a Redis connection with the small counter surface the
// quota guard needs.
type Client struct {
	rdb *redis.Client
	log *logger.Logger
}

// Open connects to Redis using a redis:// URL and verifies the
// connection with a ping.
func Open(ctx context.Context, redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.DialTimeout = dialTimeout
	opts.ReadTimeout = readTimeout
	opts.WriteTimeout = writeTimeout

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	log := logger.New("redis")
	log.Info("", "connected to redis", map[string]interface{}{
		"addr": opts.Addr,
		"db":   opts.DB,
	})

	return &Client{rdb: rdb, log: log}, nil
}

// NewFromClient wraps an existing go-redis client. Used by tests with
// an in-process server.
func NewFromClient(rdb *redis.Client) *Client {
	return &Client{rdb: rdb, log: logger.New("redis")}
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// HealthCheck pings the server and reports round-trip latency.
func (c *Client) HealthCheck(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// IncrWithExpiry atomically increments a counter and returns the new
// value. The expiry is applied only when the increment created the key,
// so the window anchors to the first event.
func (c *Client) IncrWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			c.log.WarnErr("", "failed to set counter expiry", err, map[string]interface{}{
				"key": key,
			})
		}
	}
	return count, nil
}

// Get returns the current counter value, or 0 when the key is absent.
func (c *Client) Get(ctx context.Context, key string) (int64, error) {
	val, err := c.rdb.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

// TTL returns the remaining lifetime of a key. A negative duration
// means the key is absent or has no expiry.
func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	return c.rdb.TTL(ctx, key).Result()
}
