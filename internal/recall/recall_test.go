package recall_test

import (
	"context"
	"testing"
	"time"

	"github.com/chirino/souvenir/internal/model"
	"github.com/chirino/souvenir/internal/recall"
	registrystore "github.com/chirino/souvenir/internal/registry/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	registrystore.MemoryStore
	ftsHits       []registrystore.ScoredMemory
	embedded      []model.Memory
	entities      []model.Entity
	relationships map[string][]model.Relationship
	byEntityIDs   []model.Memory
	accessedIDs   []string
}

func (f *fakeStore) SearchFTS(ctx context.Context, query string, limit int) ([]registrystore.ScoredMemory, error) {
	return f.ftsHits, nil
}

func (f *fakeStore) FindEmbedded(ctx context.Context) ([]model.Memory, error) {
	return f.embedded, nil
}

func (f *fakeStore) FindEntitiesByName(ctx context.Context, query string) ([]model.Entity, error) {
	return f.entities, nil
}

func (f *fakeStore) FindRelationshipsForEntity(ctx context.Context, id string) ([]model.Relationship, error) {
	return f.relationships[id], nil
}

func (f *fakeStore) FindMemoriesByEntityIds(ctx context.Context, ids []string) ([]model.Memory, error) {
	return f.byEntityIDs, nil
}

func (f *fakeStore) UpdateAccessStats(ctx context.Context, ids []string) error {
	f.accessedIDs = ids
	return nil
}

type fakeEmbedder struct {
	queryVec []float32
}

func (f fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return [][]float32{f.queryVec}, nil
}
func (fakeEmbedder) ModelName() string { return "fake" }
func (fakeEmbedder) Dimension() int    { return 2 }

func baseConfig() recall.Config {
	return recall.Config{
		FTSWeight:           1.0,
		VectorWeight:        1.5,
		EntityWeight:        0.8,
		RelevanceThreshold:  0.01,
		TopK:                20,
		TemporalDecayLambda: 0,
	}
}

func TestRecallRanksByLexicalScore(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeStore{ftsHits: []registrystore.ScoredMemory{
		{Memory: model.Memory{ID: "weak", Content: "a dim match", Importance: 0.5, UpdatedAt: now}, BM25: 1},
		{Memory: model.Memory{ID: "strong", Content: "a strong match", Importance: 0.5, UpdatedAt: now}, BM25: 5},
	}}
	p := &recall.Pipeline{Store: store, Config: baseConfig(), Now: func() time.Time { return now }}

	results, err := p.Recall(context.Background(), "match", 1000)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "strong", results[0].ID)
	require.Equal(t, "weak", results[1].ID)
}

func TestRecallAppliesRelevanceThreshold(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeStore{ftsHits: []registrystore.ScoredMemory{
		{Memory: model.Memory{ID: "barely", Content: "barely relevant", Importance: 0.01, UpdatedAt: now}, BM25: 1},
	}}
	cfg := baseConfig()
	cfg.RelevanceThreshold = 0.9
	p := &recall.Pipeline{Store: store, Config: cfg, Now: func() time.Time { return now }}

	results, err := p.Recall(context.Background(), "barely", 1000)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestRecallSkipsVectorSignalWithoutEmbedder(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeStore{embedded: []model.Memory{
		{ID: "m1", Content: "vector only candidate", Importance: 0.5, UpdatedAt: now, Embedding: []float32{1, 0}},
	}}
	p := &recall.Pipeline{Store: store, Config: baseConfig(), Now: func() time.Time { return now }}

	results, err := p.Recall(context.Background(), "anything", 1000)
	require.NoError(t, err)
	require.Empty(t, results, "no embedder means the vector signal never fires")
}

func TestRecallFusesVectorSignalWhenEmbedderPresent(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeStore{embedded: []model.Memory{
		{ID: "m1", Content: "vector match", Importance: 0.5, UpdatedAt: now, Embedding: []float32{1, 0}},
		{ID: "m2", Content: "orthogonal", Importance: 0.5, UpdatedAt: now, Embedding: []float32{0, 1}},
	}}
	p := &recall.Pipeline{
		Store:    store,
		Embedder: fakeEmbedder{queryVec: []float32{1, 0}},
		Config:   baseConfig(),
		Now:      func() time.Time { return now },
	}

	results, err := p.Recall(context.Background(), "match", 1000)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "m1", results[0].ID)
}

func TestRecallDedupesIdenticalContent(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeStore{ftsHits: []registrystore.ScoredMemory{
		{Memory: model.Memory{ID: "a", Content: "same text", Importance: 0.5, UpdatedAt: now}, BM25: 5},
		{Memory: model.Memory{ID: "b", Content: "same text", Importance: 0.5, UpdatedAt: now}, BM25: 3},
	}}
	p := &recall.Pipeline{Store: store, Config: baseConfig(), Now: func() time.Time { return now }}

	results, err := p.Recall(context.Background(), "same", 1000)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "a", results[0].ID)
}

func TestRecallTrimsToTokenBudget(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeStore{ftsHits: []registrystore.ScoredMemory{
		{Memory: model.Memory{ID: "a", Content: "a rather long sentence with many tokens in it", Importance: 0.5, UpdatedAt: now}, BM25: 5},
		{Memory: model.Memory{ID: "b", Content: "another fairly long sentence with several tokens", Importance: 0.5, UpdatedAt: now}, BM25: 4},
	}}
	p := &recall.Pipeline{Store: store, Config: baseConfig(), Now: func() time.Time { return now }}

	results, err := p.Recall(context.Background(), "sentence", 1)
	require.NoError(t, err)
	require.Len(t, results, 1, "a tiny budget still keeps the single best-ranked result")
	require.Equal(t, "a", results[0].ID)
}

func TestRecallUpdatesAccessStatsForReturnedResults(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeStore{ftsHits: []registrystore.ScoredMemory{
		{Memory: model.Memory{ID: "a", Content: "tracked memory", Importance: 0.5, UpdatedAt: now}, BM25: 5},
	}}
	p := &recall.Pipeline{Store: store, Config: baseConfig(), Now: func() time.Time { return now }}

	_, err := p.Recall(context.Background(), "tracked", 1000)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, store.accessedIDs)
}

func TestRecallFusesGraphSignalFromRelatedEntities(t *testing.T) {
	now := time.Now().UTC()
	personID := uuid.New()
	relatedID := uuid.New()

	store := &fakeStore{
		entities: []model.Entity{{ID: personID, Name: "Alice", Type: "person"}},
		relationships: map[string][]model.Relationship{
			personID.String(): {{FromEntityID: personID, ToEntityID: relatedID, Relation: "owns", Confidence: 0.7}},
		},
		byEntityIDs: []model.Memory{
			{ID: "m1", Content: "Alice owns a project", Importance: 0.5, UpdatedAt: now, EntityIDs: []string{personID.String()}},
		},
	}
	p := &recall.Pipeline{Store: store, Config: baseConfig(), Now: func() time.Time { return now }}

	results, err := p.Recall(context.Background(), "Alice", 1000)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "m1", results[0].ID)
	require.Greater(t, results[0].EntitySignal, 0.0)
}
