// Package store defines the storage-backend abstraction (EpisodeStore and
// MemoryStore) and its plugin registry, following the same Register/Select
// pattern used throughout this codebase's registries.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/chirino/souvenir/internal/model"
)

// EpisodeStore persists the raw, pre-consolidation event log.
type EpisodeStore interface {
	// Insert is an atomic batch insert; an empty batch is a no-op.
	Insert(ctx context.Context, batch []model.Episode) error
	// FetchUnconsolidated returns all episodes with consolidated=false and
	// timestamp <= now-minAge, ordered by timestamp ascending.
	FetchUnconsolidated(ctx context.Context, minAge time.Duration) ([]model.Episode, error)
	// MarkConsolidated idempotently flips the consolidated flag for ids.
	MarkConsolidated(ctx context.Context, ids []string) error
	// DeleteConsolidatedBefore physically removes consolidated episodes
	// older than cutoff and returns the count removed.
	DeleteConsolidatedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// SimilarOptions narrows a component-scoped similarity search.
type SimilarOptions struct {
	Category  string // optional
	SessionID string // optional
	Limit     int
}

// ScoredMemory pairs a memory with its lexical search score.
type ScoredMemory struct {
	Memory model.Memory
	BM25   float64
}

// MemoryStore persists the unified, component-tagged memory table plus the
// shared entity/relationship graph.
type MemoryStore interface {
	// Insert writes a full memory row, its lexical index entry, and its
	// embedding BLOB if present.
	Insert(ctx context.Context, memory model.Memory) error
	// Update applies a partial update; always bumps UpdatedAt. Content
	// changes re-emit the lexical index row.
	Update(ctx context.Context, id string, update model.MemoryUpdate) error
	// UpdateAccessStats increments AccessCount and sets LastAccessed=now for
	// each id. Never touches UpdatedAt.
	UpdateAccessStats(ctx context.Context, ids []string) error

	// SearchFTS runs a lexical search and returns up to limit matches
	// ordered by BM25 score (best first).
	SearchFTS(ctx context.Context, query string, limit int) ([]ScoredMemory, error)
	// FindSimilar returns the best component-scoped lexical matches for
	// content with their positive-oriented relevance score (same convention
	// as SearchFTS), used by consolidation's merge-vs-create decision.
	FindSimilar(ctx context.Context, content, component string, opts SimilarOptions) ([]ScoredMemory, error)

	// UpsertEntity inserts or, on a case-insensitive name conflict, updates
	// the entity's type while keeping its id stable.
	UpsertEntity(ctx context.Context, entity model.Entity) (model.Entity, error)
	// UpsertRelationship inserts or, on composite-key conflict, replaces the
	// confidence and UpdatedAt of the (from, to, relation) edge.
	UpsertRelationship(ctx context.Context, rel model.Relationship) error
	// FindEntitiesByName returns entities whose name contains (case
	// insensitive) any token of query, after dropping tokens <= 2 chars.
	FindEntitiesByName(ctx context.Context, query string) ([]model.Entity, error)
	// FindRelationshipsForEntity returns relationships with from=id or to=id.
	FindRelationshipsForEntity(ctx context.Context, id string) ([]model.Relationship, error)
	// FindMemoriesByEntityIds returns distinct recallable memories whose
	// EntityIDs intersects ids.
	FindMemoriesByEntityIds(ctx context.Context, ids []string) ([]model.Memory, error)
	// FindEmbedded returns every recallable memory carrying a non-empty
	// embedding, for the recall vector signal and compaction's
	// near-duplicate merge.
	FindEmbedded(ctx context.Context) ([]model.Memory, error)
	// FindActiveByComponentSession returns every recallable memory tagged
	// with component and sessionId, ordered by ascending importance then
	// ascending updatedAt, so consolidation's per-session cap can evict the
	// weakest items first.
	FindActiveByComponentSession(ctx context.Context, component, sessionID string) ([]model.Memory, error)
	// FindUnembedded returns up to limit recallable memories with no
	// embedding yet, ordered by ascending createdAt, for the embedding
	// orchestrator's backfill pass.
	FindUnembedded(ctx context.Context, limit int) ([]model.Memory, error)

	// Supersede atomically marks oldID superseded by newID.
	Supersede(ctx context.Context, oldID, newID string) error
	// ExpireItem sets status=expired, invalidAt=now.
	ExpireItem(ctx context.Context, id string) error
	// ExpireSession expires all recallable rows matching sessionID+component
	// and returns the count expired.
	ExpireSession(ctx context.Context, sessionID, component string) (int, error)
	// ApplyImportanceDecay decays or tombstones inactive memories in a
	// component and returns the count of rows pushed below floorThreshold
	// (status set to decayed). floorThreshold<=0 disables flooring.
	ApplyImportanceDecay(ctx context.Context, component string, inactivePeriod time.Duration, decayRate, floorThreshold float64) (int, error)

	// DeleteTombstoned physically removes rows in the given tombstone
	// status with UpdatedAt < cutoff, purging their lexical index entries.
	DeleteTombstoned(ctx context.Context, status model.MemoryStatus, cutoff time.Time) (int, error)
	// DeleteOrphanedEntities removes entities referenced by no memory and
	// no relationship.
	DeleteOrphanedEntities(ctx context.Context) (int, error)
	// DeleteOrphanedRelationships removes relationships referencing an
	// entity that no longer exists.
	DeleteOrphanedRelationships(ctx context.Context) (int, error)

	// Stats returns an aggregate snapshot of the store.
	Stats(ctx context.Context) (model.Stats, error)
}

// Backend bundles the two stores a deployment configures together, since
// both are normally backed by the same database connection.
type Backend interface {
	Episodes() EpisodeStore
	Memories() MemoryStore
	// Migrate applies any pending schema migrations.
	Migrate(ctx context.Context) error
	// Close releases the underlying connection.
	Close() error
}

// Loader creates a Backend from the ambient config.
type Loader func(ctx context.Context) (Backend, error)

// Plugin represents a storage backend.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a storage backend plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered storage backend plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named storage backend plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}
