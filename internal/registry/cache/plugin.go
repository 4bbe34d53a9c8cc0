// Package cache defines the recall-result cache abstraction and its plugin
// registry, following the same Register/Select/Names pattern used by the
// store, embed, and migrate registries.
package cache

import (
	"context"
	"fmt"
	"time"
)

type contextKey struct{}

// WithContext returns a new context carrying the given Cache.
func WithContext(ctx context.Context, c Cache) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext retrieves the Cache from the context. Returns nil if none was set.
func FromContext(ctx context.Context) Cache {
	c, _ := ctx.Value(contextKey{}).(Cache)
	return c
}

// Entry is a cached recall result for one (sanitised query, budget) key.
type Entry struct {
	Results []byte // caller-serialised []recall.ScoredRecall
}

// Cache caches RecallPipeline results keyed by a caller-constructed string
// (sanitised query + budgetTokens, see engine.cacheKey). Implementations
// must be safe for concurrent use.
type Cache interface {
	Available() bool
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error
	Remove(ctx context.Context, key string) error
}

// Loader creates a Cache from the ambient config.
type Loader func(ctx context.Context) (Cache, error)

// Plugin represents a cache backend.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a cache plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered cache plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named cache plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown cache %q; valid: %v", name, Names())
}
