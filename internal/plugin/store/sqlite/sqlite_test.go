package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/chirino/souvenir/internal/config"
	"github.com/chirino/souvenir/internal/model"
	registrystore "github.com/chirino/souvenir/internal/registry/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	_ "github.com/chirino/souvenir/internal/plugin/store/sqlite"
)

func newBackend(t *testing.T) registrystore.Backend {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DatastoreType = "sqlite"
	cfg.DBURL = ":memory:"
	ctx := config.WithContext(context.Background(), &cfg)

	loader, err := registrystore.Select("sqlite")
	require.NoError(t, err)
	backend, err := loader(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return backend
}

func mustMemory(id, content, component, category string, importance float64) model.Memory {
	now := time.Now().UTC()
	return model.Memory{
		ID: id, Content: content, Component: component, Category: category,
		Importance: importance, CreatedAt: now, UpdatedAt: now, Status: model.StatusActive,
	}
}

func TestSQLiteInsertAndSearchFTS(t *testing.T) {
	backend := newBackend(t)
	ctx := context.Background()
	memories := backend.Memories()

	require.NoError(t, memories.Insert(ctx, mustMemory("m1", "The user's favourite language is Go", "durable", "fact", 0.6)))
	require.NoError(t, memories.Insert(ctx, mustMemory("m2", "The weather today is sunny", "environmental", "observation", 0.3)))

	hits, err := memories.SearchFTS(ctx, "favourite language", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "m1", hits[0].Memory.ID)
	require.Greater(t, hits[0].BM25, 0.0)
}

func TestSQLiteUpdateReindexesContent(t *testing.T) {
	backend := newBackend(t)
	ctx := context.Background()
	memories := backend.Memories()

	require.NoError(t, memories.Insert(ctx, mustMemory("m1", "original content about cats", "durable", "fact", 0.5)))

	newContent := "updated content about dogs"
	require.NoError(t, memories.Update(ctx, "m1", model.MemoryUpdate{Content: &newContent}))

	hits, err := memories.SearchFTS(ctx, "dogs", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	hits, err = memories.SearchFTS(ctx, "cats", 10)
	require.NoError(t, err)
	require.Empty(t, hits)
}

func TestSQLiteSupersedeRemovesFromRecall(t *testing.T) {
	backend := newBackend(t)
	ctx := context.Background()
	memories := backend.Memories()

	require.NoError(t, memories.Insert(ctx, mustMemory("old", "Project database is MySQL", "durable", "fact", 0.5)))
	require.NoError(t, memories.Insert(ctx, mustMemory("new", "Project database is PostgreSQL", "durable", "fact", 0.8)))

	require.NoError(t, memories.Supersede(ctx, "old", "new"))

	hits, err := memories.SearchFTS(ctx, "MySQL", 10)
	require.NoError(t, err)
	require.Empty(t, hits)
}

func TestSQLiteFindUnembeddedOrdersByCreatedAt(t *testing.T) {
	backend := newBackend(t)
	ctx := context.Background()
	memories := backend.Memories()

	older := mustMemory("old", "first fact", "durable", "fact", 0.5)
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	newer := mustMemory("new", "second fact", "durable", "fact", 0.5)

	require.NoError(t, memories.Insert(ctx, newer))
	require.NoError(t, memories.Insert(ctx, older))

	pending, err := memories.FindUnembedded(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, "old", pending[0].ID)
	require.Equal(t, "new", pending[1].ID)
}

func TestSQLiteFindEmbeddedExcludesUnembedded(t *testing.T) {
	backend := newBackend(t)
	ctx := context.Background()
	memories := backend.Memories()

	withVec := mustMemory("m1", "fact with a vector", "durable", "fact", 0.5)
	withVec.Embedding = []float32{0.1, 0.2, 0.3}
	require.NoError(t, memories.Insert(ctx, withVec))
	require.NoError(t, memories.Insert(ctx, mustMemory("m2", "fact without a vector", "durable", "fact", 0.5)))

	embedded, err := memories.FindEmbedded(ctx)
	require.NoError(t, err)
	require.Len(t, embedded, 1)
	require.Equal(t, "m1", embedded[0].ID)
	require.Equal(t, []float32{0.1, 0.2, 0.3}, embedded[0].Embedding)
}

func TestSQLiteApplyImportanceDecayFloorsStaleMemories(t *testing.T) {
	backend := newBackend(t)
	ctx := context.Background()
	memories := backend.Memories()

	stale := mustMemory("m1", "stale observation", "environmental", "observation", 0.05)
	stale.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	stale.UpdatedAt = stale.CreatedAt
	require.NoError(t, memories.Insert(ctx, stale))

	flooredCount, err := memories.ApplyImportanceDecay(ctx, "environmental", time.Hour, 0.5, 0.1)
	require.NoError(t, err)
	require.Equal(t, 1, flooredCount)

	hits, err := memories.SearchFTS(ctx, "stale", 10)
	require.NoError(t, err)
	require.Empty(t, hits, "decayed-below-floor memory should no longer be recallable")
}

func TestSQLiteDeleteOrphanedRelationshipsThenEntities(t *testing.T) {
	backend := newBackend(t)
	ctx := context.Background()
	memories := backend.Memories()

	alice, err := memories.UpsertEntity(ctx, model.Entity{Name: "Alice", Type: "person"})
	require.NoError(t, err)
	bob, err := memories.UpsertEntity(ctx, model.Entity{Name: "Bob", Type: "person"})
	require.NoError(t, err)

	require.NoError(t, memories.UpsertRelationship(ctx, model.Relationship{
		FromEntityID: alice.ID, ToEntityID: bob.ID, Relation: "knows", Confidence: 0.9,
	}))

	// No memory references either entity, so both are orphaned once the
	// relationship referencing them is gone.
	relDeleted, err := memories.DeleteOrphanedRelationships(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, relDeleted, "relationship still references two existing entities")

	entDeleted, err := memories.DeleteOrphanedEntities(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, entDeleted, "entities are still referenced by the relationship")
}

func TestSQLiteDeleteOrphanedEntitiesIgnoresTombstonedMemories(t *testing.T) {
	backend := newBackend(t)
	ctx := context.Background()
	memories := backend.Memories()

	alice, err := memories.UpsertEntity(ctx, model.Entity{Name: "Alice", Type: "person"})
	require.NoError(t, err)

	m := mustMemory("m1", "Alice likes tea", "durable", "fact", 0.5)
	m.EntityIDs = []string{alice.ID.String()}
	require.NoError(t, memories.Insert(ctx, m))
	require.NoError(t, memories.Update(ctx, "m1", model.MemoryUpdate{Status: statusPtr(model.StatusExpired)}))

	entDeleted, err := memories.DeleteOrphanedEntities(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, entDeleted, "an entity referenced only by an expired memory is orphaned")
}

func statusPtr(s model.MemoryStatus) *model.MemoryStatus { return &s }

func newBackendWithDimension(t *testing.T, dim int) registrystore.Backend {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DatastoreType = "sqlite"
	cfg.DBURL = ":memory:"
	cfg.EmbeddingDimension = dim
	ctx := config.WithContext(context.Background(), &cfg)

	loader, err := registrystore.Select("sqlite")
	require.NoError(t, err)
	backend, err := loader(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return backend
}

func TestSQLiteInsertRejectsWrongDimensionEmbedding(t *testing.T) {
	backend := newBackendWithDimension(t, 3)
	ctx := context.Background()
	memories := backend.Memories()

	m := mustMemory("m1", "Alice likes tea", "durable", "fact", 0.5)
	m.Embedding = []float32{0.1, 0.2}
	require.Error(t, memories.Insert(ctx, m))

	m.Embedding = []float32{0.1, 0.2, 0.3}
	require.NoError(t, memories.Insert(ctx, m))
}

func TestSQLiteUpdateRejectsWrongDimensionEmbedding(t *testing.T) {
	backend := newBackendWithDimension(t, 3)
	ctx := context.Background()
	memories := backend.Memories()

	require.NoError(t, memories.Insert(ctx, mustMemory("m1", "Alice likes tea", "durable", "fact", 0.5)))

	err := memories.Update(ctx, "m1", model.MemoryUpdate{SetEmbedding: true, Embedding: []float32{0.1, 0.2}})
	require.Error(t, err)
}

func TestSQLiteUpsertEntityIsCaseInsensitiveOnName(t *testing.T) {
	backend := newBackend(t)
	ctx := context.Background()
	memories := backend.Memories()

	first, err := memories.UpsertEntity(ctx, model.Entity{Name: "Alice", Type: "person"})
	require.NoError(t, err)

	second, err := memories.UpsertEntity(ctx, model.Entity{Name: "alice", Type: "contact"})
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "contact", second.Type)
}

func TestSQLiteEpisodeInsertFetchMarkConsolidated(t *testing.T) {
	backend := newBackend(t)
	ctx := context.Background()
	episodes := backend.Episodes()

	id := uuid.NewString()
	require.NoError(t, episodes.Insert(ctx, []model.Episode{{
		ID: id, SessionID: "s1", Timestamp: time.Now().UTC().Add(-time.Minute),
		Type: model.EpisodeConversation, Content: "hello", Importance: 0.4,
	}}))

	pending, err := episodes.FetchUnconsolidated(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, id, pending[0].ID)

	require.NoError(t, episodes.MarkConsolidated(ctx, []string{id}))

	pending, err = episodes.FetchUnconsolidated(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestSQLiteDeleteConsolidatedBefore(t *testing.T) {
	backend := newBackend(t)
	ctx := context.Background()
	episodes := backend.Episodes()

	id := uuid.NewString()
	require.NoError(t, episodes.Insert(ctx, []model.Episode{{
		ID: id, SessionID: "s1", Timestamp: time.Now().UTC().Add(-time.Hour),
		Type: model.EpisodeConversation, Content: "old episode", Importance: 0.4,
	}}))
	require.NoError(t, episodes.MarkConsolidated(ctx, []string{id}))

	deleted, err := episodes.DeleteConsolidatedBefore(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, 1, deleted)
}

func TestSQLiteStatsAggregatesByStatusAndComponent(t *testing.T) {
	backend := newBackend(t)
	ctx := context.Background()
	memories := backend.Memories()

	require.NoError(t, memories.Insert(ctx, mustMemory("m1", "fact one", "durable", "fact", 0.5)))
	require.NoError(t, memories.Insert(ctx, mustMemory("m2", "fact two", "task", "goal", 0.6)))

	stats, err := memories.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.TotalMemories)
	require.Equal(t, 2, stats.ByStatus[model.StatusActive])
	require.Equal(t, 1, stats.ByComponent["durable"])
	require.Equal(t, 1, stats.ByComponent["task"])
}
