// Package ristretto registers an in-process recall-result cache backed by
// dgraph-io/ristretto. It trades strict TTL precision for near-zero latency,
// suitable for a single-process deployment of the engine.
package ristretto

import (
	"context"
	"time"

	"github.com/chirino/souvenir/internal/registry/cache"
	goristretto "github.com/dgraph-io/ristretto/v2"
)

func init() {
	cache.Register(cache.Plugin{
		Name:   "ristretto",
		Loader: load,
	})
}

func load(ctx context.Context) (cache.Cache, error) {
	c, err := goristretto.NewCache(&goristretto.Config[string, cache.Entry]{
		NumCounters: 1e6,
		MaxCost:     1 << 26, // 64MiB
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &ristrettoCache{client: c}, nil
}

type ristrettoCache struct {
	client *goristretto.Cache[string, cache.Entry]
}

func (c *ristrettoCache) Available() bool { return true }

func (c *ristrettoCache) Get(_ context.Context, key string) (*cache.Entry, error) {
	v, ok := c.client.Get(key)
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (c *ristrettoCache) Set(_ context.Context, key string, entry cache.Entry, ttl time.Duration) error {
	cost := int64(len(entry.Results))
	if ttl <= 0 {
		c.client.Set(key, entry, cost)
	} else {
		c.client.SetWithTTL(key, entry, cost, ttl)
	}
	c.client.Wait()
	return nil
}

func (c *ristrettoCache) Remove(_ context.Context, key string) error {
	c.client.Del(key)
	return nil
}

var _ cache.Cache = (*ristrettoCache)(nil)
