// Package redis wraps go-redis/v9 for the query cache.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/health"
	"github.com/redis/go-redis/v9"
)

type Client struct {
	rdb *redis.Client
}

// NewClient connects and verifies the connection with a PING.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.rdb.Get(ctx, key).Result()
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// FlushByPattern unlinks every key matching the glob pattern in batches and
// returns how many were removed.
func (c *Client) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	const batch = 256
	var deleted int64
	keys := make([]string, 0, batch)
	flush := func() error {
		if len(keys) == 0 {
			return nil
		}
		n, err := c.rdb.Unlink(ctx, keys...).Result()
		deleted += n
		keys = keys[:0]
		return err
	}
	iter := c.rdb.Scan(ctx, 0, pattern, batch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == batch {
			if err := flush(); err != nil {
				return deleted, fmt.Errorf("unlinking keys matching %s: %w", pattern, err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("scanning pattern %s: %w", pattern, err)
	}
	if err := flush(); err != nil {
		return deleted, fmt.Errorf("unlinking keys matching %s: %w", pattern, err)
	}
	return deleted, nil
}

// IsNilError reports whether err is a Redis key-not-found reply.
func IsNilError(err error) bool {
	return errors.Is(err, redis.Nil)
}

// HealthCheck pings the server. Register it with health.Optional so an
// unreachable cache degrades the service instead of failing readiness.
func (c *Client) HealthCheck(ctx context.Context) health.ComponentHealth {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
	}
	return health.ComponentHealth{Status: health.StatusUp}
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
