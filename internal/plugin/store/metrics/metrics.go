// Package metrics wraps a store.MemoryStore/EpisodeStore pair with
// per-operation latency recording.
package metrics

import (
	"context"
	"time"

	"github.com/chirino/souvenir/internal/model"
	"github.com/chirino/souvenir/internal/registry/store"
	"github.com/chirino/souvenir/internal/telemetry"
)

// WrapBackend returns a store.Backend whose Episodes()/Memories() stores
// record telemetry.StoreLatency for every operation.
func WrapBackend(inner store.Backend) store.Backend {
	return &metricsBackend{inner: inner}
}

type metricsBackend struct {
	inner store.Backend
}

func (b *metricsBackend) Episodes() store.EpisodeStore { return &episodeStore{inner: b.inner.Episodes()} }
func (b *metricsBackend) Memories() store.MemoryStore  { return &memoryStore{inner: b.inner.Memories()} }
func (b *metricsBackend) Migrate(ctx context.Context) error { return b.inner.Migrate(ctx) }
func (b *metricsBackend) Close() error                      { return b.inner.Close() }

func observe(op string, start time.Time) {
	telemetry.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

type episodeStore struct {
	inner store.EpisodeStore
}

func (s *episodeStore) Insert(ctx context.Context, batch []model.Episode) error {
	defer observe("episodes_insert", time.Now())
	return s.inner.Insert(ctx, batch)
}

func (s *episodeStore) FetchUnconsolidated(ctx context.Context, minAge time.Duration) ([]model.Episode, error) {
	defer observe("episodes_fetch_unconsolidated", time.Now())
	return s.inner.FetchUnconsolidated(ctx, minAge)
}

func (s *episodeStore) MarkConsolidated(ctx context.Context, ids []string) error {
	defer observe("episodes_mark_consolidated", time.Now())
	return s.inner.MarkConsolidated(ctx, ids)
}

func (s *episodeStore) DeleteConsolidatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	defer observe("episodes_delete_consolidated_before", time.Now())
	return s.inner.DeleteConsolidatedBefore(ctx, cutoff)
}

type memoryStore struct {
	inner store.MemoryStore
}

func (s *memoryStore) Insert(ctx context.Context, m model.Memory) error {
	defer observe("memories_insert", time.Now())
	return s.inner.Insert(ctx, m)
}

func (s *memoryStore) Update(ctx context.Context, id string, update model.MemoryUpdate) error {
	defer observe("memories_update", time.Now())
	return s.inner.Update(ctx, id, update)
}

func (s *memoryStore) UpdateAccessStats(ctx context.Context, ids []string) error {
	defer observe("memories_update_access_stats", time.Now())
	return s.inner.UpdateAccessStats(ctx, ids)
}

func (s *memoryStore) SearchFTS(ctx context.Context, query string, limit int) ([]store.ScoredMemory, error) {
	defer observe("memories_search_fts", time.Now())
	return s.inner.SearchFTS(ctx, query, limit)
}

func (s *memoryStore) FindSimilar(ctx context.Context, content, component string, opts store.SimilarOptions) ([]store.ScoredMemory, error) {
	defer observe("memories_find_similar", time.Now())
	return s.inner.FindSimilar(ctx, content, component, opts)
}

func (s *memoryStore) UpsertEntity(ctx context.Context, entity model.Entity) (model.Entity, error) {
	defer observe("memories_upsert_entity", time.Now())
	return s.inner.UpsertEntity(ctx, entity)
}

func (s *memoryStore) UpsertRelationship(ctx context.Context, rel model.Relationship) error {
	defer observe("memories_upsert_relationship", time.Now())
	return s.inner.UpsertRelationship(ctx, rel)
}

func (s *memoryStore) FindEntitiesByName(ctx context.Context, query string) ([]model.Entity, error) {
	defer observe("memories_find_entities_by_name", time.Now())
	return s.inner.FindEntitiesByName(ctx, query)
}

func (s *memoryStore) FindRelationshipsForEntity(ctx context.Context, id string) ([]model.Relationship, error) {
	defer observe("memories_find_relationships_for_entity", time.Now())
	return s.inner.FindRelationshipsForEntity(ctx, id)
}

func (s *memoryStore) FindMemoriesByEntityIds(ctx context.Context, ids []string) ([]model.Memory, error) {
	defer observe("memories_find_by_entity_ids", time.Now())
	return s.inner.FindMemoriesByEntityIds(ctx, ids)
}

func (s *memoryStore) FindEmbedded(ctx context.Context) ([]model.Memory, error) {
	defer observe("memories_find_embedded", time.Now())
	return s.inner.FindEmbedded(ctx)
}

func (s *memoryStore) FindActiveByComponentSession(ctx context.Context, component, sessionID string) ([]model.Memory, error) {
	defer observe("memories_find_active_by_component_session", time.Now())
	return s.inner.FindActiveByComponentSession(ctx, component, sessionID)
}

func (s *memoryStore) FindUnembedded(ctx context.Context, limit int) ([]model.Memory, error) {
	defer observe("memories_find_unembedded", time.Now())
	return s.inner.FindUnembedded(ctx, limit)
}

func (s *memoryStore) Supersede(ctx context.Context, oldID, newID string) error {
	defer observe("memories_supersede", time.Now())
	return s.inner.Supersede(ctx, oldID, newID)
}

func (s *memoryStore) ExpireItem(ctx context.Context, id string) error {
	defer observe("memories_expire_item", time.Now())
	return s.inner.ExpireItem(ctx, id)
}

func (s *memoryStore) ExpireSession(ctx context.Context, sessionID, component string) (int, error) {
	defer observe("memories_expire_session", time.Now())
	return s.inner.ExpireSession(ctx, sessionID, component)
}

func (s *memoryStore) ApplyImportanceDecay(ctx context.Context, component string, inactivePeriod time.Duration, decayRate, floorThreshold float64) (int, error) {
	defer observe("memories_apply_importance_decay", time.Now())
	return s.inner.ApplyImportanceDecay(ctx, component, inactivePeriod, decayRate, floorThreshold)
}

func (s *memoryStore) DeleteTombstoned(ctx context.Context, status model.MemoryStatus, cutoff time.Time) (int, error) {
	defer observe("memories_delete_tombstoned", time.Now())
	return s.inner.DeleteTombstoned(ctx, status, cutoff)
}

func (s *memoryStore) DeleteOrphanedEntities(ctx context.Context) (int, error) {
	defer observe("memories_delete_orphaned_entities", time.Now())
	return s.inner.DeleteOrphanedEntities(ctx)
}

func (s *memoryStore) DeleteOrphanedRelationships(ctx context.Context) (int, error) {
	defer observe("memories_delete_orphaned_relationships", time.Now())
	return s.inner.DeleteOrphanedRelationships(ctx)
}

func (s *memoryStore) Stats(ctx context.Context) (model.Stats, error) {
	defer observe("memories_stats", time.Now())
	return s.inner.Stats(ctx)
}

var _ store.Backend = (*metricsBackend)(nil)
var _ store.EpisodeStore = (*episodeStore)(nil)
var _ store.MemoryStore = (*memoryStore)(nil)
