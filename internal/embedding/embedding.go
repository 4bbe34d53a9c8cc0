// Package embedding drives the post-consolidation backfill that gives
// recallable memories a vector embedding, one batch at a time. It is inert
// when no embedding provider is configured: callers simply never invoke it.
package embedding

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/chirino/souvenir/internal/model"
	"github.com/chirino/souvenir/internal/registry/embed"
	registrystore "github.com/chirino/souvenir/internal/registry/store"
	"github.com/chirino/souvenir/internal/telemetry"
)

// DefaultBatchLimit bounds how many memories one Run call embeds, so a large
// backlog is processed incrementally across repeated consolidation cycles
// rather than in one unbounded pass.
const DefaultBatchLimit = 100

// Orchestrator embeds unembedded memories after consolidation.
type Orchestrator struct {
	Store    registrystore.MemoryStore
	Embedder embed.Embedder // nil disables the orchestrator entirely
	Limit    int            // defaults to DefaultBatchLimit
}

// Report counts the outcome of one Run call.
type Report struct {
	Embedded int
	Failed   int
}

func (o *Orchestrator) limit() int {
	if o.Limit > 0 {
		return o.Limit
	}
	return DefaultBatchLimit
}

// Run finds recallable memories with no embedding and embeds each in turn.
// A per-memory failure (provider error or a wrong-dimension vector) is
// logged and counted, never returned: the memory simply keeps its nil
// embedding and stays discoverable via lexical and graph signals.
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	if o.Embedder == nil {
		return Report{}, nil
	}

	candidates, err := o.Store.FindUnembedded(ctx, o.limit())
	if err != nil {
		return Report{}, err
	}

	var report Report
	dim := o.Embedder.Dimension()

	for _, mem := range candidates {
		if err := o.embedOne(ctx, mem, dim); err != nil {
			log.Warn("embedding: failed to embed memory", "id", mem.ID, "error", err)
			telemetry.EmbeddingFailuresTotal.Inc()
			report.Failed++
			continue
		}
		report.Embedded++
	}

	return report, nil
}

func (o *Orchestrator) embedOne(ctx context.Context, mem model.Memory, dim int) error {
	vecs, err := o.Embedder.EmbedTexts(ctx, []string{mem.Content})
	if err != nil {
		return err
	}
	if len(vecs) != 1 {
		return &EmbeddingError{Reason: "provider returned no vector"}
	}
	vec := vecs[0]
	if dim > 0 && len(vec) != dim {
		return &EmbeddingError{Reason: "vector dimension mismatch"}
	}

	return o.Store.Update(ctx, mem.ID, model.MemoryUpdate{
		Embedding:    vec,
		SetEmbedding: true,
	})
}
