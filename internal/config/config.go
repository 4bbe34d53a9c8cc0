// Package config holds engine configuration and the context-carried
// accessor used throughout the plugin registries, following the same
// pattern the rest of this codebase uses for request-scoped values.
package config

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"
)

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context, or nil if none was set.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

// Config holds all configuration for the memory engine.
type Config struct {
	// Datastore backend: "sqlite" or "postgres".
	DatastoreType string
	// DBURL is the backend DSN (sqlite: file path or ":memory:"; postgres: connection URL).
	DBURL string
	// DatastoreMigrateAtStart runs schema migrations on Engine.Initialize.
	DatastoreMigrateAtStart bool
	DBMaxOpenConns          int
	DBMaxIdleConns          int

	// Embedder backend: "none", "local", or "openai".
	EmbedType        string
	OpenAIAPIKey     string
	OpenAIModelName  string
	OpenAIBaseURL    string
	OpenAIDimensions int

	// EmbeddingDimension is the selected embedder's vector width, set by
	// Engine.Initialize before the store loader runs. Zero means no
	// embedder is configured; stores skip dimension validation in that case.
	EmbeddingDimension int

	// LLM backend: "openai" (the only built-in remote caller; tests inject a
	// callback directly and never go through this selector).
	LLMType       string
	LLMAPIKey     string
	LLMModelName  string
	LLMBaseURL    string

	// Recall-result cache backend: "none", "ristretto", or "redis".
	CacheType string
	RedisURL  string
	CacheTTL  time.Duration

	// EpisodeBuffer auto-flush threshold.
	FlushThreshold int

	// Default recall token budget when a caller does not specify one.
	DefaultBudgetTokens uint32

	// RecallConfig defaults; callers may override per-call.
	FTSWeight           float64
	VectorWeight        float64
	EntityWeight        float64
	ComponentWeights    map[string]float64
	RelevanceThreshold  float64
	TopK                int
	TemporalDecayLambda float64

	// Consolidation defaults.
	ConsolidationMinAge time.Duration
	MergeThreshold      float64

	// Compaction defaults.
	ExpiredRetention        time.Duration
	SupersededRetention     time.Duration
	DecayedRetention        time.Duration
	EpisodeRetention        time.Duration
	DeduplicationThreshold  float64 // 0 means disabled
}

// DefaultConfig returns a Config with sensible defaults, mirroring the shape
// of the values the engine would read from the environment in production.
func DefaultConfig() Config {
	return Config{
		DatastoreType:           "sqlite",
		DBURL:                   "souvenir.db",
		DatastoreMigrateAtStart: true,
		DBMaxOpenConns:          25,
		DBMaxIdleConns:          5,

		EmbedType:        "local",
		OpenAIModelName:  "text-embedding-3-small",
		OpenAIBaseURL:    "https://api.openai.com/v1",
		OpenAIDimensions: 1536,

		LLMType:      "openai",
		LLMModelName: "gpt-4o-mini",
		LLMBaseURL:   "https://api.openai.com/v1",

		CacheType: "none",
		CacheTTL:  30 * time.Second,

		FlushThreshold:      20,
		DefaultBudgetTokens: 2000,

		FTSWeight:           1.0,
		VectorWeight:        1.5,
		EntityWeight:        0.8,
		ComponentWeights:    map[string]float64{},
		RelevanceThreshold:  0.05,
		TopK:                20,
		TemporalDecayLambda: 0.005,

		ConsolidationMinAge: 0,
		MergeThreshold:      0.6,

		ExpiredRetention:    7 * 24 * time.Hour,
		SupersededRetention: 30 * 24 * time.Hour,
		DecayedRetention:    14 * 24 * time.Hour,
		EpisodeRetention:    90 * 24 * time.Hour,
	}
}

// FromEnv overlays environment variables (prefixed SOUVENIR_) on top of cfg.
func (c *Config) FromEnv() {
	if v := os.Getenv("SOUVENIR_DB_URL"); v != "" {
		c.DBURL = v
	}
	if v := os.Getenv("SOUVENIR_DATASTORE_TYPE"); v != "" {
		c.DatastoreType = v
	}
	if v := os.Getenv("SOUVENIR_EMBED_TYPE"); v != "" {
		c.EmbedType = v
	}
	if v := os.Getenv("SOUVENIR_OPENAI_API_KEY"); v != "" {
		c.OpenAIAPIKey = v
	}
	if v := os.Getenv("SOUVENIR_LLM_API_KEY"); v != "" {
		c.LLMAPIKey = v
	}
	if v := os.Getenv("SOUVENIR_CACHE_TYPE"); v != "" {
		c.CacheType = v
	}
	if v := os.Getenv("SOUVENIR_REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("SOUVENIR_FLUSH_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.FlushThreshold = n
		}
	}
	if v := os.Getenv("SOUVENIR_DEFAULT_BUDGET_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.DefaultBudgetTokens = uint32(n)
		}
	}
}

// ParseComponentWeights parses a comma-separated "component=weight" list
// (the env-var representation of RecallConfig.ComponentWeights).
func ParseComponentWeights(s string) map[string]float64 {
	weights := map[string]float64{}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		idx := strings.IndexByte(pair, '=')
		if idx < 0 {
			continue
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(pair[idx+1:]), 64)
		if err != nil {
			continue
		}
		weights[strings.TrimSpace(pair[:idx])] = w
	}
	return weights
}
