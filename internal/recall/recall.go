// Package recall implements the multi-signal retrieval pipeline: lexical,
// vector, and graph candidates are gathered independently, fused under a
// single linear scoring function, thresholded, deduplicated, and trimmed to
// a token budget.
package recall

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/chirino/souvenir/internal/model"
	"github.com/chirino/souvenir/internal/registry/embed"
	registrystore "github.com/chirino/souvenir/internal/registry/store"
	"github.com/chirino/souvenir/internal/tokenizer"
)

// Config holds the fusion weights and thresholds for one Pipeline. All
// fields are dimensionless multipliers or plain thresholds; there are no
// learned weights here by design, so every signal stays independently
// inspectable.
type Config struct {
	FTSWeight           float64
	VectorWeight        float64
	EntityWeight        float64
	ComponentWeights    map[string]float64 // missing component defaults to 1.0
	RelevanceThreshold  float64
	TopK                int
	TemporalDecayLambda float64 // per day
}

// ScoredRecall is one ranked recall result, carrying the final fused score
// alongside the pre-weight signal breakdown so regressions in an individual
// signal are visible to callers and tests.
type ScoredRecall struct {
	ID         string
	Content    string
	Component  string
	Category   string
	Score      float64
	Tokens     uint32
	FTSSignal  float64
	VecSignal  float64
	EntitySignal float64
}

// Pipeline fuses lexical, vector, and graph candidates into ranked recall results.
type Pipeline struct {
	Store    registrystore.MemoryStore
	Embedder embed.Embedder // optional; nil disables the vector signal
	Config   Config
	Now      func() time.Time // optional; defaults to time.Now
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

type candidate struct {
	memory       model.Memory
	ftsRaw       float64
	vecRaw       float64
	entityRaw    float64
}

// signalResult is one gatherer's private view of the candidate set: each of
// the three signals runs concurrently against its own map, so they never
// need to coordinate over shared state; only the merge step below is
// single-threaded.
type signalResult struct {
	candidates map[string]*candidate
	err        error
}

// Recall runs the full gather-fuse-threshold-dedupe-trim algorithm and
// returns results ordered by descending score. It never fails on an empty
// result set: an empty slice with a nil error means no signal matched.
//
// Lexical, vector, and graph gathering run as independent goroutines; their
// partial results are merged only after all three complete, matching the
// suspension-point contract of a single recall call.
func (p *Pipeline) Recall(ctx context.Context, query string, budgetTokens uint32) ([]ScoredRecall, error) {
	gatherers := []func(context.Context, string) (map[string]*candidate, error){
		p.gatherLexical, p.gatherVector, p.gatherGraph,
	}
	results := make([]signalResult, len(gatherers))

	var wg sync.WaitGroup
	wg.Add(len(gatherers))
	for i, gather := range gatherers {
		go func(i int, gather func(context.Context, string) (map[string]*candidate, error)) {
			defer wg.Done()
			cands, err := gather(ctx, query)
			results[i] = signalResult{candidates: cands, err: err}
		}(i, gather)
	}
	wg.Wait()

	candidates := map[string]*candidate{}
	for _, r := range results {
		if r.err != nil {
			return nil, r.err
		}
		mergeCandidates(candidates, r.candidates)
	}

	now := p.now()
	scored := make([]ScoredRecall, 0, len(candidates))
	for _, c := range candidates {
		score := p.fuse(c, now)
		if score < p.Config.RelevanceThreshold {
			continue
		}
		scored = append(scored, ScoredRecall{
			ID:           c.memory.ID,
			Content:      c.memory.Content,
			Component:    c.memory.Component,
			Category:     c.memory.Category,
			Score:        score,
			Tokens:       tokenizer.Count(c.memory.Content),
			FTSSignal:    c.ftsRaw,
			VecSignal:    c.vecRaw,
			EntitySignal: c.entityRaw,
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID // stable tie-break for deterministic order
	})

	scored = dedupContent(scored)

	if p.Config.TopK > 0 && len(scored) > p.Config.TopK {
		scored = scored[:p.Config.TopK]
	}

	trimmed := trimToBudget(scored, budgetTokens)

	if len(trimmed) > 0 {
		ids := make([]string, len(trimmed))
		for i, r := range trimmed {
			ids[i] = r.ID
		}
		if err := p.Store.UpdateAccessStats(ctx, ids); err != nil {
			return nil, err
		}
	}

	return trimmed, nil
}

func (p *Pipeline) gatherLexical(ctx context.Context, query string) (map[string]*candidate, error) {
	candidates := map[string]*candidate{}
	hits, err := p.Store.SearchFTS(ctx, query, 50)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return candidates, nil
	}
	maxBM25 := hits[0].BM25
	for _, h := range hits {
		if h.BM25 > maxBM25 {
			maxBM25 = h.BM25
		}
	}
	if maxBM25 <= 0 {
		return candidates, nil
	}
	for _, h := range hits {
		c := candidateFor(candidates, h.Memory)
		c.ftsRaw = h.BM25 / maxBM25
	}
	return candidates, nil
}

func (p *Pipeline) gatherVector(ctx context.Context, query string) (map[string]*candidate, error) {
	candidates := map[string]*candidate{}
	if p.Embedder == nil {
		return candidates, nil
	}
	vecs, err := p.Embedder.EmbedTexts(ctx, []string{query})
	if err != nil || len(vecs) == 0 {
		return candidates, err
	}
	queryVec := vecs[0]

	rows, err := p.Store.FindEmbedded(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range rows {
		if len(m.Embedding) == 0 {
			continue
		}
		sim := cosineSimilarity(queryVec, m.Embedding)
		if sim <= 0 {
			continue
		}
		c := candidateFor(candidates, m)
		c.vecRaw = sim
	}
	return candidates, nil
}

func (p *Pipeline) gatherGraph(ctx context.Context, query string) (map[string]*candidate, error) {
	candidates := map[string]*candidate{}
	entities, err := p.Store.FindEntitiesByName(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return candidates, nil
	}

	confidence := map[string]float64{}
	var ids []string
	for _, e := range entities {
		id := e.ID.String()
		ids = append(ids, id)
		if confidence[id] < 1.0 {
			confidence[id] = 1.0
		}
	}
	for _, e := range entities {
		rels, err := p.Store.FindRelationshipsForEntity(ctx, e.ID.String())
		if err != nil {
			return nil, err
		}
		for _, r := range rels {
			other := r.ToEntityID.String()
			if other == e.ID.String() {
				other = r.FromEntityID.String()
			}
			if confidence[other] < r.Confidence {
				confidence[other] = r.Confidence
				ids = append(ids, other)
			}
		}
	}

	memories, err := p.Store.FindMemoriesByEntityIds(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, m := range memories {
		best := 0.0
		for _, eid := range m.EntityIDs {
			if confidence[eid] > best {
				best = confidence[eid]
			}
		}
		c := candidateFor(candidates, m)
		if best > c.entityRaw {
			c.entityRaw = best
		}
	}
	return candidates, nil
}

// mergeCandidates folds src into dst, combining signals for any memory id
// present in more than one gatherer's result.
func mergeCandidates(dst, src map[string]*candidate) {
	for id, c := range src {
		existing, ok := dst[id]
		if !ok {
			dst[id] = c
			continue
		}
		if c.ftsRaw > existing.ftsRaw {
			existing.ftsRaw = c.ftsRaw
		}
		if c.vecRaw > existing.vecRaw {
			existing.vecRaw = c.vecRaw
		}
		if c.entityRaw > existing.entityRaw {
			existing.entityRaw = c.entityRaw
		}
	}
}

func candidateFor(candidates map[string]*candidate, m model.Memory) *candidate {
	c, ok := candidates[m.ID]
	if !ok {
		c = &candidate{memory: m}
		candidates[m.ID] = c
	}
	return c
}

func (p *Pipeline) fuse(c *candidate, now time.Time) float64 {
	raw := p.Config.FTSWeight*c.ftsRaw + p.Config.VectorWeight*c.vecRaw + p.Config.EntityWeight*c.entityRaw

	cw := 1.0
	if w, ok := p.Config.ComponentWeights[c.memory.Component]; ok {
		cw = w
	}

	ageDays := now.Sub(c.memory.UpdatedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	decay := math.Exp(-p.Config.TemporalDecayLambda * ageDays)

	aboost := 1 + 0.1*math.Log(1+float64(c.memory.AccessCount))

	return raw * cw * c.memory.Importance * decay * aboost
}

func dedupContent(scored []ScoredRecall) []ScoredRecall {
	seen := make(map[string]bool, len(scored))
	out := scored[:0]
	for _, r := range scored {
		if seen[r.Content] {
			continue
		}
		seen[r.Content] = true
		out = append(out, r)
	}
	return out
}

func trimToBudget(scored []ScoredRecall, budget uint32) []ScoredRecall {
	if len(scored) == 0 {
		return scored
	}
	var total uint32
	out := make([]ScoredRecall, 0, len(scored))
	for i, r := range scored {
		if i == 0 {
			out = append(out, r)
			total = r.Tokens
			continue
		}
		if total+r.Tokens > budget {
			break
		}
		out = append(out, r)
		total += r.Tokens
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
