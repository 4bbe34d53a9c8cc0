package embedding_test

import (
	"context"
	"errors"
	"testing"

	"github.com/chirino/souvenir/internal/embedding"
	"github.com/chirino/souvenir/internal/model"
	registrystore "github.com/chirino/souvenir/internal/registry/store"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	registrystore.MemoryStore
	unembedded []model.Memory
	updates    map[string]model.MemoryUpdate
}

func (f *fakeStore) FindUnembedded(ctx context.Context, limit int) ([]model.Memory, error) {
	return f.unembedded, nil
}

func (f *fakeStore) Update(ctx context.Context, id string, update model.MemoryUpdate) error {
	if f.updates == nil {
		f.updates = map[string]model.MemoryUpdate{}
	}
	f.updates[id] = update
	return nil
}

type fakeEmbedder struct {
	dim   int
	vecs  map[string][]float32
	fails map[string]bool
}

func (e *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if e.fails[t] {
			return nil, errors.New("provider down")
		}
		out[i] = e.vecs[t]
	}
	return out, nil
}

func (e *fakeEmbedder) ModelName() string { return "fake" }
func (e *fakeEmbedder) Dimension() int    { return e.dim }

func TestOrchestratorInertWithoutEmbedder(t *testing.T) {
	o := embedding.Orchestrator{Store: &fakeStore{unembedded: []model.Memory{{ID: "m1"}}}}
	report, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, embedding.Report{}, report)
}

func TestOrchestratorEmbedsEachCandidate(t *testing.T) {
	store := &fakeStore{unembedded: []model.Memory{
		{ID: "m1", Content: "likes rabbits"},
		{ID: "m2", Content: "uses Dart"},
	}}
	embedder := &fakeEmbedder{dim: 3, vecs: map[string][]float32{
		"likes rabbits": {0.1, 0.2, 0.3},
		"uses Dart":     {0.4, 0.5, 0.6},
	}}
	o := embedding.Orchestrator{Store: store, Embedder: embedder}

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, report.Embedded)
	require.Equal(t, 0, report.Failed)
	require.Equal(t, []float32{0.1, 0.2, 0.3}, store.updates["m1"].Embedding)
	require.True(t, store.updates["m1"].SetEmbedding)
}

func TestOrchestratorProviderFailureIsNonFatal(t *testing.T) {
	store := &fakeStore{unembedded: []model.Memory{{ID: "m1", Content: "x"}, {ID: "m2", Content: "y"}}}
	embedder := &fakeEmbedder{dim: 2, vecs: map[string][]float32{"y": {1, 2}}, fails: map[string]bool{"x": true}}
	o := embedding.Orchestrator{Store: store, Embedder: embedder}

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Embedded)
	require.Equal(t, 1, report.Failed)
}

func TestOrchestratorWrongDimensionIsNonFatal(t *testing.T) {
	store := &fakeStore{unembedded: []model.Memory{{ID: "m1", Content: "x"}}}
	embedder := &fakeEmbedder{dim: 3, vecs: map[string][]float32{"x": {1, 2}}}
	o := embedding.Orchestrator{Store: store, Embedder: embedder}

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, report.Embedded)
	require.Equal(t, 1, report.Failed)
}
