// Package redis registers a Redis-backed recall-result cache, for
// deployments that share a cache across multiple engine processes.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/chirino/souvenir/internal/config"
	"github.com/chirino/souvenir/internal/registry/cache"
	goredis "github.com/redis/go-redis/v9"
)

const defaultTTL = 30 * time.Second
const keyPrefix = "souvenir:recall:"

func init() {
	cache.Register(cache.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

func load(ctx context.Context) (cache.Cache, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis cache: RedisURL is required")
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	opts, err := goredis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis cache: invalid URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis cache: ping failed: %w", err)
	}
	return &redisCache{client: client, ttl: ttl}, nil
}

type redisCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func (c *redisCache) Available() bool { return true }

func (c *redisCache) Get(ctx context.Context, key string) (*cache.Entry, error) {
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cache.Entry{Results: data}, nil
}

func (c *redisCache) Set(ctx context.Context, key string, entry cache.Entry, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	return c.client.Set(ctx, keyPrefix+key, entry.Results, ttl).Err()
}

func (c *redisCache) Remove(ctx context.Context, key string) error {
	return c.client.Del(ctx, keyPrefix+key).Err()
}

var _ cache.Cache = (*redisCache)(nil)
