// Package engine wires the store, embedder, LLM caller, and cache backends
// selected by config.Config into the recall, consolidation, embedding, and
// compaction pipelines, and owns the one piece of mutable state none of
// those pipelines may own themselves: the episode buffer.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/souvenir/internal/compaction"
	"github.com/chirino/souvenir/internal/config"
	"github.com/chirino/souvenir/internal/consolidation"
	"github.com/chirino/souvenir/internal/embedding"
	"github.com/chirino/souvenir/internal/episode"
	"github.com/chirino/souvenir/internal/idgen"
	"github.com/chirino/souvenir/internal/lexical"
	"github.com/chirino/souvenir/internal/model"
	"github.com/chirino/souvenir/internal/plugin/store/metrics"
	"github.com/chirino/souvenir/internal/recall"
	registrycache "github.com/chirino/souvenir/internal/registry/cache"
	registryembed "github.com/chirino/souvenir/internal/registry/embed"
	registryllm "github.com/chirino/souvenir/internal/registry/llm"
	registrystore "github.com/chirino/souvenir/internal/registry/store"
	"github.com/chirino/souvenir/internal/telemetry"
)

// Engine is the embeddable entry point: one instance per backing store.
// Not safe for concurrent use by multiple goroutines; callers that need
// parallelism must serialise calls on a given instance themselves.
type Engine struct {
	cfg config.Config

	backend  registrystore.Backend
	embedder registryembed.Embedder
	cache    registrycache.Cache

	buffer episode.Buffer

	recall            recall.Pipeline
	consolidator      consolidation.Pipeline
	embedOrchestrator embedding.Orchestrator
	compactor         compaction.Compactor

	initialized bool
}

// New returns an Engine that has not yet been initialized.
func New(cfg config.Config) *Engine {
	return &Engine{cfg: cfg}
}

// Initialize opens the backing store, creates tables/indices, and wires the
// configured embedder and cache backends. Idempotent: once it has succeeded,
// further calls return nil without reopening the store. It never replays the
// episode buffer, which always starts empty.
func (e *Engine) Initialize(ctx context.Context) error {
	if e.initialized {
		return nil
	}
	telemetry.Init()

	// The embedder is selected before the store so the store's configured
	// embedding dimension (used to validate every write) is known by the
	// time the store loader runs.
	embedLoader, err := registryembed.Select(e.cfg.EmbedType)
	if err != nil {
		return &ConfigError{Reason: err.Error()}
	}
	embedder, err := embedLoader(config.WithContext(ctx, &e.cfg))
	if err != nil {
		return &ConfigError{Reason: err.Error()}
	}
	e.embedder = embedder
	e.cfg.EmbeddingDimension = embedder.Dimension()

	ctx = config.WithContext(ctx, &e.cfg)

	storeLoader, err := registrystore.Select(e.cfg.DatastoreType)
	if err != nil {
		return &ConfigError{Reason: err.Error()}
	}
	backend, err := storeLoader(ctx)
	if err != nil {
		return &StorageError{Op: "select store", Err: err}
	}
	e.backend = metrics.WrapBackend(backend)

	cacheLoader, err := registrycache.Select(e.cfg.CacheType)
	if err != nil {
		return &ConfigError{Reason: err.Error()}
	}
	c, err := cacheLoader(ctx)
	if err != nil {
		return &ConfigError{Reason: err.Error()}
	}
	e.cache = c

	e.recall = recall.Pipeline{
		Store:    e.backend.Memories(),
		Embedder: e.embedder,
		Config: recall.Config{
			FTSWeight:           e.cfg.FTSWeight,
			VectorWeight:        e.cfg.VectorWeight,
			EntityWeight:        e.cfg.EntityWeight,
			ComponentWeights:    e.cfg.ComponentWeights,
			RelevanceThreshold:  e.cfg.RelevanceThreshold,
			TopK:                e.cfg.TopK,
			TemporalDecayLambda: e.cfg.TemporalDecayLambda,
		},
	}
	e.consolidator = consolidation.Pipeline{
		Store:          e.backend.Memories(),
		EpisodeStore:   e.backend.Episodes(),
		MinAge:         e.cfg.ConsolidationMinAge,
		MergeThreshold: e.cfg.MergeThreshold,
	}
	e.embedOrchestrator = embedding.Orchestrator{
		Store:    e.backend.Memories(),
		Embedder: nonNilEmbedder(e.embedder),
	}
	e.compactor = compaction.Compactor{
		Store:        e.backend.Memories(),
		EpisodeStore: e.backend.Episodes(),
		Embedder:     nonNilEmbedder(e.embedder),
	}

	e.initialized = true
	return nil
}

// nonNilEmbedder turns the "disabled" embedder plugin's sentinel into a true
// nil interface value, so downstream nil-checks (embedding's vector signal,
// compaction's dedup gate) behave the same whether the caller selected
// EmbedType "none" or never configured an embedder at all.
func nonNilEmbedder(e registryembed.Embedder) registryembed.Embedder {
	if e == nil || e.Dimension() <= 0 {
		return nil
	}
	return e
}

func (e *Engine) requireInitialized(op string) error {
	if !e.initialized {
		return &UninitialisedError{Op: op}
	}
	return nil
}

// Record pushes ep onto the episode buffer, minting an id and timestamp if
// absent, and flushes automatically once the buffer reaches FlushThreshold.
func (e *Engine) Record(ctx context.Context, ep model.Episode) error {
	if err := e.requireInitialized("record"); err != nil {
		return err
	}
	now := time.Now().UTC()
	if ep.Timestamp.IsZero() {
		ep.Timestamp = now
	}
	if ep.ID == "" {
		ep.ID = idgen.New(ep.Timestamp)
	}
	if ep.Importance == 0 {
		ep.Importance = ep.Type.DefaultImportance()
	}

	size := e.buffer.Push(ep)
	if e.cfg.FlushThreshold > 0 && size >= e.cfg.FlushThreshold {
		return e.Flush(ctx)
	}
	return nil
}

// Flush drains the episode buffer into the EpisodeStore. A no-op on an
// empty buffer.
func (e *Engine) Flush(ctx context.Context) error {
	if err := e.requireInitialized("flush"); err != nil {
		return err
	}
	batch := e.buffer.Drain()
	if len(batch) == 0 {
		return nil
	}
	if err := e.backend.Episodes().Insert(ctx, batch); err != nil {
		return &StorageError{Op: "flush", Err: err}
	}
	return nil
}

// Consolidate flushes the episode buffer, runs the consolidation pipeline
// and, on success, the embedding orchestrator's post-hoc backfill pass.
// Embedding-provider failures are swallowed by the orchestrator itself and
// never reach here; only a storage failure while listing unembedded
// memories surfaces.
func (e *Engine) Consolidate(ctx context.Context, llm registryllm.Caller) (consolidation.Report, error) {
	var zero consolidation.Report
	if err := e.requireInitialized("consolidate"); err != nil {
		return zero, err
	}
	if err := e.Flush(ctx); err != nil {
		return zero, err
	}

	report, err := e.consolidator.Consolidate(ctx, llm)
	if err != nil {
		return report, &StorageError{Op: "consolidate", Err: err}
	}

	if _, err := e.embedOrchestrator.Run(ctx); err != nil {
		return report, &StorageError{Op: "consolidate: embed backfill", Err: err}
	}

	return report, nil
}

// Recall runs the recall pipeline for query, defaulting budgetTokens to the
// engine's configured DefaultBudgetTokens when zero, and transparently
// caches the ranked result when a cache backend is configured.
func (e *Engine) Recall(ctx context.Context, query string, budgetTokens uint32) ([]recall.ScoredRecall, error) {
	if err := e.requireInitialized("recall"); err != nil {
		return nil, err
	}
	if budgetTokens == 0 {
		budgetTokens = e.cfg.DefaultBudgetTokens
	}

	key := cacheKey(query, budgetTokens)
	if e.cache != nil && e.cache.Available() {
		if entry, err := e.cache.Get(ctx, key); err == nil && entry != nil {
			var cached []recall.ScoredRecall
			if json.Unmarshal(entry.Results, &cached) == nil {
				telemetry.CacheHitsTotal.Inc()
				return cached, nil
			}
		}
		telemetry.CacheMissesTotal.Inc()
	}

	start := time.Now()
	results, err := e.recall.Recall(ctx, query, budgetTokens)
	telemetry.RecallLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, &StorageError{Op: "recall", Err: err}
	}
	telemetry.RecallCandidates.Observe(float64(len(results)))

	if e.cache != nil && e.cache.Available() {
		if encoded, err := json.Marshal(results); err == nil {
			_ = e.cache.Set(ctx, key, registrycache.Entry{Results: encoded}, e.cfg.CacheTTL)
		}
	}

	return results, nil
}

func cacheKey(query string, budgetTokens uint32) string {
	tokens := lexical.Sanitize(query)
	h := sha256.New()
	for _, t := range tokens {
		h.Write([]byte(t))
		h.Write([]byte{0})
	}
	h.Write([]byte(strconv.FormatUint(uint64(budgetTokens), 10)))
	return hex.EncodeToString(h.Sum(nil))
}

// Compact runs the compaction pass described by cfg.
func (e *Engine) Compact(ctx context.Context, cfg compaction.Config) (compaction.Report, error) {
	var zero compaction.Report
	if err := e.requireInitialized("compact"); err != nil {
		return zero, err
	}
	report, err := e.compactor.Compact(ctx, cfg)
	if err != nil {
		var cfgErr *compaction.ConfigError
		if ok := asConfigError(err, &cfgErr); ok {
			return report, &ConfigError{Reason: cfgErr.Error()}
		}
		return report, &StorageError{Op: "compact", Err: err}
	}
	return report, nil
}

func asConfigError(err error, target **compaction.ConfigError) bool {
	if ce, ok := err.(*compaction.ConfigError); ok {
		*target = ce
		return true
	}
	return false
}

// Close flushes any buffered episodes and releases the backing store.
func (e *Engine) Close(ctx context.Context) error {
	if err := e.requireInitialized("close"); err != nil {
		return err
	}
	if err := e.Flush(ctx); err != nil {
		log.Warn("engine: flush during close failed", "error", err)
	}
	if err := e.backend.Close(); err != nil {
		return &StorageError{Op: "close", Err: err}
	}
	return nil
}
