// Package noop registers the "none" cache backend, used when recall-result
// caching is disabled.
package noop

import (
	"context"
	"time"

	"github.com/chirino/souvenir/internal/registry/cache"
)

func init() {
	cache.Register(cache.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (cache.Cache, error) {
			return noopCache{}, nil
		},
	})
}

type noopCache struct{}

func (noopCache) Available() bool { return false }
func (noopCache) Get(_ context.Context, _ string) (*cache.Entry, error) {
	return nil, nil
}
func (noopCache) Set(_ context.Context, _ string, _ cache.Entry, _ time.Duration) error {
	return nil
}
func (noopCache) Remove(_ context.Context, _ string) error { return nil }

var _ cache.Cache = noopCache{}
