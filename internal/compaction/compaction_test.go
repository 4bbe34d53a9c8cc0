package compaction_test

import (
	"context"
	"testing"
	"time"

	"github.com/chirino/souvenir/internal/compaction"
	"github.com/chirino/souvenir/internal/model"
	registrystore "github.com/chirino/souvenir/internal/registry/store"
	"github.com/stretchr/testify/require"
)

type fakeEpisodeStore struct {
	registrystore.EpisodeStore
	deleteConsolidatedBeforeCalls []time.Time
}

func (f *fakeEpisodeStore) DeleteConsolidatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	f.deleteConsolidatedBeforeCalls = append(f.deleteConsolidatedBeforeCalls, cutoff)
	return 3, nil
}

type fakeStore struct {
	registrystore.MemoryStore
	tombstoneCalls   []model.MemoryStatus
	embedded         []model.Memory
	superseded       map[string]string
	relsDeleted      int
	entitiesDeleted  int
}

func (f *fakeStore) DeleteTombstoned(ctx context.Context, status model.MemoryStatus, cutoff time.Time) (int, error) {
	f.tombstoneCalls = append(f.tombstoneCalls, status)
	return 1, nil
}

func (f *fakeStore) FindEmbedded(ctx context.Context) ([]model.Memory, error) {
	return f.embedded, nil
}

func (f *fakeStore) Supersede(ctx context.Context, oldID, newID string) error {
	if f.superseded == nil {
		f.superseded = map[string]string{}
	}
	f.superseded[oldID] = newID
	return nil
}

func (f *fakeStore) DeleteOrphanedRelationships(ctx context.Context) (int, error) {
	f.relsDeleted++
	return 2, nil
}

func (f *fakeStore) DeleteOrphanedEntities(ctx context.Context) (int, error) {
	f.entitiesDeleted++
	return 1, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}
func (fakeEmbedder) ModelName() string { return "fake" }
func (fakeEmbedder) Dimension() int    { return 2 }

func TestCompactRunsAllRetentionPasses(t *testing.T) {
	store := &fakeStore{}
	episodes := &fakeEpisodeStore{}
	c := compaction.Compactor{Store: store, EpisodeStore: episodes}

	report, err := c.Compact(context.Background(), compaction.Config{})
	require.NoError(t, err)
	require.Equal(t, []model.MemoryStatus{model.StatusExpired, model.StatusSuperseded, model.StatusDecayed}, store.tombstoneCalls)
	require.Equal(t, 1, report.ExpiredDeleted)
	require.Equal(t, 1, report.SupersededDeleted)
	require.Equal(t, 1, report.DecayedDeleted)
	require.Equal(t, 3, report.EpisodesDeleted)
	require.Equal(t, 2, report.OrphanedRelationshipsDeleted)
	require.Equal(t, 1, report.OrphanedEntitiesDeleted)
}

func TestCompactRejectsDedupWithoutEmbedder(t *testing.T) {
	threshold := 0.9
	c := compaction.Compactor{Store: &fakeStore{}, EpisodeStore: &fakeEpisodeStore{}}

	_, err := c.Compact(context.Background(), compaction.Config{DeduplicationThreshold: &threshold})
	require.Error(t, err)
	var cfgErr *compaction.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestCompactMergesNearDuplicatesKeepingHigherImportance(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeStore{embedded: []model.Memory{
		{ID: "weak", Component: "durable", Importance: 0.3, CreatedAt: now, Embedding: []float32{1, 0}},
		{ID: "strong", Component: "durable", Importance: 0.9, CreatedAt: now, Embedding: []float32{1, 0}},
	}}
	threshold := 0.99
	c := compaction.Compactor{Store: store, EpisodeStore: &fakeEpisodeStore{}, Embedder: fakeEmbedder{}}

	report, err := c.Compact(context.Background(), compaction.Config{DeduplicationThreshold: &threshold})
	require.NoError(t, err)
	require.Equal(t, 1, report.DuplicatesMerged)
	require.Equal(t, "strong", store.superseded["weak"])
}

func TestCompactSkipsDifferentComponents(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeStore{embedded: []model.Memory{
		{ID: "a", Component: "durable", Importance: 0.5, CreatedAt: now, Embedding: []float32{1, 0}},
		{ID: "b", Component: "task", Importance: 0.5, CreatedAt: now, Embedding: []float32{1, 0}},
	}}
	threshold := 0.5
	c := compaction.Compactor{Store: store, EpisodeStore: &fakeEpisodeStore{}, Embedder: fakeEmbedder{}}

	report, err := c.Compact(context.Background(), compaction.Config{DeduplicationThreshold: &threshold})
	require.NoError(t, err)
	require.Equal(t, 0, report.DuplicatesMerged)
}
