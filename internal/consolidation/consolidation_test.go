package consolidation_test

import (
	"context"
	"testing"
	"time"

	"github.com/chirino/souvenir/internal/consolidation"
	"github.com/chirino/souvenir/internal/model"
	registrycomponent "github.com/chirino/souvenir/internal/registry/component"
	registrystore "github.com/chirino/souvenir/internal/registry/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// A fixture component registered once for this package's tests, so the
// pipeline can be driven end to end without pulling in every built-in
// component (each of which would also run over the same fixture episodes).
const fixtureComponent = "fixture"

func init() {
	registrycomponent.Register(registrycomponent.Definition{
		Name:               fixtureComponent,
		SystemPrompt:       "extract durable facts",
		Shape:              registrycomponent.ShapeFacts,
		DefaultCategory:    "fact",
		DefaultImportance:  0.5,
		MaxItemsPerSession: 2,
	})
}

type fakeEpisodeStore struct {
	registrystore.EpisodeStore
	unconsolidated     []model.Episode
	markedConsolidated []string
}

func (f *fakeEpisodeStore) FetchUnconsolidated(ctx context.Context, minAge time.Duration) ([]model.Episode, error) {
	return f.unconsolidated, nil
}

func (f *fakeEpisodeStore) MarkConsolidated(ctx context.Context, ids []string) error {
	f.markedConsolidated = append(f.markedConsolidated, ids...)
	return nil
}

type fakeStore struct {
	registrystore.MemoryStore
	inserted     []model.Memory
	updated      map[string]model.MemoryUpdate
	entities     map[string]model.Entity
	similar      []registrystore.ScoredMemory
	active       []model.Memory
	expiredItems []string
	expiredSess  []string
	decayCalls   int
}

func (f *fakeStore) UpsertEntity(ctx context.Context, e model.Entity) (model.Entity, error) {
	if f.entities == nil {
		f.entities = map[string]model.Entity{}
	}
	if existing, ok := f.entities[e.Name]; ok {
		return existing, nil
	}
	e.ID = uuid.New()
	f.entities[e.Name] = e
	return e, nil
}

func (f *fakeStore) UpsertRelationship(ctx context.Context, rel model.Relationship) error { return nil }

func (f *fakeStore) Supersede(ctx context.Context, oldID, newID string) error { return nil }

func (f *fakeStore) FindSimilar(ctx context.Context, content, component string, opts registrystore.SimilarOptions) ([]registrystore.ScoredMemory, error) {
	return f.similar, nil
}

func (f *fakeStore) Insert(ctx context.Context, m model.Memory) error {
	f.inserted = append(f.inserted, m)
	return nil
}

func (f *fakeStore) Update(ctx context.Context, id string, u model.MemoryUpdate) error {
	if f.updated == nil {
		f.updated = map[string]model.MemoryUpdate{}
	}
	f.updated[id] = u
	return nil
}

func (f *fakeStore) FindActiveByComponentSession(ctx context.Context, component, sessionID string) ([]model.Memory, error) {
	return f.active, nil
}

func (f *fakeStore) ExpireItem(ctx context.Context, id string) error {
	f.expiredItems = append(f.expiredItems, id)
	return nil
}

func (f *fakeStore) ExpireSession(ctx context.Context, sessionID, component string) (int, error) {
	f.expiredSess = append(f.expiredSess, sessionID)
	return 1, nil
}

func (f *fakeStore) ApplyImportanceDecay(ctx context.Context, component string, inactivePeriod time.Duration, decayRate, floorThreshold float64) (int, error) {
	f.decayCalls++
	return 0, nil
}

func TestConsolidateCreatesNewFactWhenNoSimilarExists(t *testing.T) {
	episodes := &fakeEpisodeStore{unconsolidated: []model.Episode{
		{ID: "e1", SessionID: "s1", Timestamp: time.Now().UTC(), Type: model.EpisodeConversation, Content: "user likes tea"},
	}}
	store := &fakeStore{}
	p := &consolidation.Pipeline{Store: store, EpisodeStore: episodes, MergeThreshold: 0.6}

	llm := func(ctx context.Context, system, user string) (string, error) {
		return `{"facts":[{"content":"User likes tea","importance":0.6,"entities":[]}],"relationships":[]}`, nil
	}

	report, err := p.Consolidate(context.Background(), llm)
	require.NoError(t, err)
	require.Equal(t, 1, report.Created)
	require.Equal(t, 0, report.Merged)
	require.Equal(t, 1, report.EpisodesConsumed)
	require.Len(t, store.inserted, 1)
	require.Equal(t, "User likes tea", store.inserted[0].Content)
	require.Equal(t, []string{"e1"}, store.inserted[0].SourceEpisodeIDs)
	require.Equal(t, []string{"e1"}, episodes.markedConsolidated)
}

func TestConsolidateSkipsEntirelyWithNoUnconsolidatedEpisodes(t *testing.T) {
	episodes := &fakeEpisodeStore{}
	store := &fakeStore{}
	p := &consolidation.Pipeline{Store: store, EpisodeStore: episodes}

	report, err := p.Consolidate(context.Background(), func(ctx context.Context, system, user string) (string, error) {
		t.Fatal("llm should never be called with no episodes")
		return "", nil
	})
	require.NoError(t, err)
	require.Equal(t, consolidation.Report{}, report)
}

func TestConsolidateMergesDuplicateIntoExistingKeepingHigherImportance(t *testing.T) {
	episodes := &fakeEpisodeStore{unconsolidated: []model.Episode{
		{ID: "e1", SessionID: "s1", Timestamp: time.Now().UTC(), Type: model.EpisodeConversation, Content: "user restates tea preference"},
	}}
	existing := model.Memory{ID: "m1", Content: "User likes tea", Importance: 0.4, SourceEpisodeIDs: []string{"e0"}}
	store := &fakeStore{similar: []registrystore.ScoredMemory{{Memory: existing, BM25: 0.9}}}
	p := &consolidation.Pipeline{Store: store, EpisodeStore: episodes, MergeThreshold: 0.6}

	llm := func(ctx context.Context, system, user string) (string, error) {
		return `{"facts":[{"content":"User likes tea","importance":0.8,"entities":[],"conflict":"duplicate"}],"relationships":[]}`, nil
	}

	report, err := p.Consolidate(context.Background(), llm)
	require.NoError(t, err)
	require.Equal(t, 0, report.Created)
	require.Equal(t, 1, report.Merged)
	require.Empty(t, store.inserted)
	require.Contains(t, store.updated, "m1")
	require.Equal(t, 0.8, *store.updated["m1"].Importance)
	require.ElementsMatch(t, []string{"e0", "e1"}, store.updated["m1"].SourceIDs, "merge unions source episode ids with the existing memory's")
}

func TestConsolidateContradictionSupersedesExisting(t *testing.T) {
	episodes := &fakeEpisodeStore{unconsolidated: []model.Episode{
		{ID: "e1", SessionID: "s1", Timestamp: time.Now().UTC(), Type: model.EpisodeUserDirective, Content: "user now prefers coffee"},
	}}
	existing := model.Memory{ID: "m1", Content: "User likes tea", Importance: 0.4}
	store := &fakeStore{similar: []registrystore.ScoredMemory{{Memory: existing, BM25: 0.9}}}
	p := &consolidation.Pipeline{Store: store, EpisodeStore: episodes, MergeThreshold: 0.6}

	llm := func(ctx context.Context, system, user string) (string, error) {
		return `{"facts":[{"content":"User prefers coffee","importance":0.7,"entities":[],"conflict":"contradiction"}],"relationships":[]}`, nil
	}

	report, err := p.Consolidate(context.Background(), llm)
	require.NoError(t, err)
	require.Equal(t, 1, report.Created)
	require.Len(t, store.inserted, 1)
}

func TestConsolidateSkipsSessionOnUnparseableReply(t *testing.T) {
	episodes := &fakeEpisodeStore{unconsolidated: []model.Episode{
		{ID: "e1", SessionID: "s1", Timestamp: time.Now().UTC(), Type: model.EpisodeConversation, Content: "garbled"},
	}}
	store := &fakeStore{}
	p := &consolidation.Pipeline{Store: store, EpisodeStore: episodes}

	llm := func(ctx context.Context, system, user string) (string, error) {
		return "not json at all", nil
	}

	report, err := p.Consolidate(context.Background(), llm)
	require.NoError(t, err)
	require.Equal(t, 1, report.SessionsSkipped)
	require.Empty(t, store.inserted)
	require.Empty(t, episodes.markedConsolidated, "a skipped session's episodes stay unconsolidated for retry")
}
