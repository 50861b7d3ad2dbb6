// Package cache keeps query results in Redis, keyed by index run so a new
// index never serves results computed against the old one.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/webindex/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/webindex/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/resilience"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "search:"

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	store   Store
	cfg     config.RedisConfig
	breaker *resilience.Breaker
	metrics *metrics.Metrics
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a cache. Redis failures trip breaker and degrade to direct
// execution; m may be nil.
func New(store Store, cfg config.RedisConfig, breaker *resilience.Breaker, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		store:   store,
		cfg:     cfg,
		breaker: breaker,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Key identifies a plan and limit within one index run. Term order is
// irrelevant to the result, so it is ignored.
func Key(runID string, plan *parser.QueryPlan, limit int) string {
	raw := fmt.Sprintf("%s|%s|limit=%d", runID, plan.Key(), limit)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

func (c *QueryCache) Get(ctx context.Context, key string) (*executor.Result, bool) {
	var data string
	var found bool
	err := c.breaker.Do(func() error {
		v, err := c.store.Get(ctx, key)
		if pkgredis.IsNilError(err) {
			return nil
		}
		if err != nil {
			return err
		}
		data, found = v, true
		return nil
	})
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
	}
	if !found {
		c.miss()
		return nil, false
	}
	var result executor.Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, key string, result *executor.Result) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.breaker.Do(func() error {
		return c.store.Set(ctx, key, data, c.cfg.CacheTTL)
	}); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns a cached result or runs compute once per key, however
// many callers ask concurrently. compute runs under a context detached from
// the first caller's cancellation, so one caller going away does not fail the
// others; compute is expected to bound itself. A caller whose own context
// ends stops waiting and gets its context error.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	key string,
	compute func(ctx context.Context) (*executor.Result, error),
) (*executor.Result, bool, error) {
	if result, ok := c.Get(ctx, key); ok {
		return result, true, nil
	}
	ch := c.group.DoChan(key, func() (any, error) {
		shared := context.WithoutCancel(ctx)
		result, err := compute(shared)
		if err != nil {
			return nil, err
		}
		c.Set(shared, key, result)
		return result, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(*executor.Result), false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	var deleted int64
	err := c.breaker.Do(func() error {
		var err error
		deleted, err = c.store.FlushByPattern(ctx, keyPrefix+"*")
		return err
	})
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}
