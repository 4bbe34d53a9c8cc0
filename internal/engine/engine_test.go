package engine_test

import (
	"context"
	"testing"

	"github.com/chirino/souvenir/internal/compaction"
	"github.com/chirino/souvenir/internal/config"
	"github.com/chirino/souvenir/internal/engine"
	"github.com/chirino/souvenir/internal/model"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.DatastoreType = "sqlite"
	cfg.DBURL = ":memory:"
	cfg.EmbedType = "none"
	cfg.CacheType = "none"
	cfg.FlushThreshold = 1000 // tests flush explicitly
	return cfg
}

func TestEngineMethodsRequireInitialize(t *testing.T) {
	e := engine.New(testConfig())
	ctx := context.Background()

	err := e.Record(ctx, model.Episode{Content: "hi"})
	require.Error(t, err)
	var uninit *engine.UninitialisedError
	require.ErrorAs(t, err, &uninit)

	err = e.Flush(ctx)
	require.ErrorAs(t, err, &uninit)

	_, err = e.Recall(ctx, "hi", 0)
	require.ErrorAs(t, err, &uninit)
}

func TestEngineRecordFlushConsolidateRecall(t *testing.T) {
	ctx := context.Background()
	e := engine.New(testConfig())
	require.NoError(t, e.Initialize(ctx))
	defer e.Close(ctx)

	require.NoError(t, e.Record(ctx, model.Episode{
		SessionID: "s1",
		Type:      model.EpisodeConversation,
		Content:   "The user's favourite colour is teal.",
	}))
	require.NoError(t, e.Flush(ctx))

	llm := func(ctx context.Context, system, user string) (string, error) {
		return `{"facts":[{"content":"User's favourite colour is teal","importance":0.7,"entities":[]}],"relationships":[]}`, nil
	}
	report, err := e.Consolidate(ctx, llm)
	require.NoError(t, err)
	require.Equal(t, 1, report.Created)
	require.Equal(t, 1, report.EpisodesConsumed)

	results, err := e.Recall(ctx, "colour", 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Contains(t, results[0].Content, "teal")
}

func TestEngineCompactWithoutEmbedderRejectsDedup(t *testing.T) {
	ctx := context.Background()
	e := engine.New(testConfig())
	require.NoError(t, e.Initialize(ctx))
	defer e.Close(ctx)

	threshold := 0.9
	_, err := e.Compact(ctx, compaction.Config{DeduplicationThreshold: &threshold})
	require.Error(t, err)
	var cfgErr *engine.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}
