// Package consolidation drives registered components through the
// episodes-to-memories extraction pipeline: bucketing raw episodes by
// session, invoking the language model per component, resolving conflicts
// against existing memories, and upserting the shared entity graph.
package consolidation

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/souvenir/internal/idgen"
	"github.com/chirino/souvenir/internal/model"
	registrycomponent "github.com/chirino/souvenir/internal/registry/component"
	registryllm "github.com/chirino/souvenir/internal/registry/llm"
	registrystore "github.com/chirino/souvenir/internal/registry/store"
)

// Report aggregates the counts produced by one Consolidate call.
type Report struct {
	Created               int
	Merged                int
	EntitiesUpserted      int
	RelationshipsUpserted int
	Decayed               int
	EpisodesConsumed      int
	SessionsSkipped       int
	Outcomes              []SessionOutcome
}

// SessionOutcome is the per-(component, session) result of one consolidation
// pass: a closed sum type modelling "fully processed" vs "skipped", so the
// pipeline never needs exceptions-as-control-flow to short-circuit a bad LM
// reply.
type SessionOutcome struct {
	Component string
	SessionID string
	// Processed is true when the session extracted cleanly; Cause is only
	// meaningful when Processed is false.
	Processed bool
	Cause     string
	Created   int
	Merged    int

	// expiredOrCapped folds session-boundary expiry and per-session-cap
	// evictions into the report's Decayed counter, matching the aggregated
	// report shape (there is no separate "expired" bucket).
	expiredOrCapped int
}

// Pipeline drives registered components over unconsolidated episodes.
type Pipeline struct {
	Store registrystore.MemoryStore
	EpisodeStore registrystore.EpisodeStore
	MinAge time.Duration
	MergeThreshold float64 // used when a component does not override it
	Now func() time.Time

	// lastSeenSession tracks, per session-scoped component, the most
	// recently processed sessionId across Consolidate calls.
	lastSeenSession map[string]string
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// extractedFact is the component-agnostic shape every extraction variant
// (facts/items/observations) normalises into before conflict resolution.
type extractedFact struct {
	Content    string
	Category   string
	Importance float64
	Entities   []extractedEntity
	Conflict   string // "", "duplicate", "update", "contradiction"
}

type extractedEntity struct {
	Name string
	Type string
}

type extractedRelationship struct {
	From       string
	To         string
	Relation   string
	Confidence float64
}

// Consolidate runs the full gather → bucket → per-component-extraction →
// decay → markConsolidated algorithm and returns an aggregated report.
func (p *Pipeline) Consolidate(ctx context.Context, llm registryllm.Caller) (Report, error) {
	if p.lastSeenSession == nil {
		p.lastSeenSession = map[string]string{}
	}

	episodes, err := p.EpisodeStore.FetchUnconsolidated(ctx, p.MinAge)
	if err != nil {
		return Report{}, err
	}
	if len(episodes) == 0 {
		return Report{}, nil
	}

	buckets := bucketBySession(episodes)
	report := Report{}
	skippedSessions := map[string]bool{}

	for _, def := range registrycomponent.All() {
		for _, sessionID := range buckets.orderedSessionIDs {
			bucket := buckets.bySession[sessionID]
			outcome := p.processSession(ctx, def, sessionID, bucket, llm)
			report.Outcomes = append(report.Outcomes, outcome)
			if !outcome.Processed {
				report.SessionsSkipped++
				skippedSessions[sessionID] = true
				continue
			}
			report.Created += outcome.Created
			report.Merged += outcome.Merged
			report.Decayed += outcome.expiredOrCapped
		}

		decayed, err := p.applyDecay(ctx, def)
		if err != nil {
			return report, err
		}
		report.Decayed += decayed
	}

	// Episodes belonging to a session any component failed to extract stay
	// unconsolidated so the next run retries them; everything else is done.
	var consolidatedIDs []string
	for _, ep := range episodes {
		if skippedSessions[ep.SessionID] {
			continue
		}
		consolidatedIDs = append(consolidatedIDs, ep.ID)
	}
	if len(consolidatedIDs) > 0 {
		if err := p.EpisodeStore.MarkConsolidated(ctx, consolidatedIDs); err != nil {
			return report, err
		}
	}
	report.EpisodesConsumed = len(consolidatedIDs)

	return report, nil
}

type sessionBuckets struct {
	orderedSessionIDs []string
	bySession         map[string][]model.Episode
}

func bucketBySession(episodes []model.Episode) sessionBuckets {
	buckets := sessionBuckets{bySession: map[string][]model.Episode{}}
	for _, ep := range episodes {
		if _, ok := buckets.bySession[ep.SessionID]; !ok {
			buckets.orderedSessionIDs = append(buckets.orderedSessionIDs, ep.SessionID)
		}
		buckets.bySession[ep.SessionID] = append(buckets.bySession[ep.SessionID], ep)
	}
	for _, eps := range buckets.bySession {
		sort.SliceStable(eps, func(i, j int) bool { return eps[i].Timestamp.Before(eps[j].Timestamp) })
	}
	return buckets
}

func (p *Pipeline) processSession(ctx context.Context, def registrycomponent.Definition, sessionID string, episodes []model.Episode, llm registryllm.Caller) SessionOutcome {
	outcome := SessionOutcome{Component: def.Name, SessionID: sessionID, Processed: true}

	if def.SessionScoped {
		key := def.Name
		if prev, ok := p.lastSeenSession[key]; ok && prev != sessionID {
			expired, err := p.Store.ExpireSession(ctx, prev, def.Name)
			if err != nil {
				outcome.Processed = false
				outcome.Cause = "expire session: " + err.Error()
				return outcome
			}
			outcome.expiredOrCapped += expired
		}
		p.lastSeenSession[key] = sessionID
	}

	transcript := buildTranscript(episodes)
	reply, err := llm(ctx, def.SystemPrompt, transcript)
	if err != nil {
		log.Warn("consolidation: llm call failed", "component", def.Name, "session", sessionID, "error", err)
		outcome.Processed = false
		outcome.Cause = "llm: " + err.Error()
		return outcome
	}

	facts, relationships, err := parseExtraction(reply, def.Shape)
	if err != nil {
		log.Warn("consolidation: unparseable llm reply", "component", def.Name, "session", sessionID, "error", err)
		outcome.Processed = false
		outcome.Cause = "parse: " + err.Error()
		return outcome
	}

	episodeIDs := make([]string, len(episodes))
	for i, ep := range episodes {
		episodeIDs[i] = ep.ID
	}

	created, merged, err := p.applyFacts(ctx, def, sessionID, episodeIDs, facts)
	if err != nil {
		outcome.Processed = false
		outcome.Cause = "storage: " + err.Error()
		return outcome
	}
	outcome.Created, outcome.Merged = created, merged

	if err := p.applyRelationships(ctx, relationships); err != nil {
		outcome.Processed = false
		outcome.Cause = "storage: " + err.Error()
		return outcome
	}

	if def.MaxItemsPerSession > 0 {
		evicted, err := p.enforceSessionCap(ctx, def, sessionID)
		if err != nil {
			outcome.Processed = false
			outcome.Cause = "storage: " + err.Error()
			return outcome
		}
		outcome.expiredOrCapped += evicted
	}

	return outcome
}

func buildTranscript(episodes []model.Episode) string {
	var b strings.Builder
	for _, ep := range episodes {
		b.WriteString("[")
		b.WriteString(string(ep.Type))
		b.WriteString("] ")
		b.WriteString(ep.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// stripFences removes an optional triple-backtick markdown fence. The
// opening fence (with an optional language tag) must be on the first line;
// the closing fence must be the last line.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return s
	}
	if strings.TrimSpace(lines[len(lines)-1]) != "```" {
		return s
	}
	return strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
}

func parseExtraction(reply string, shape registrycomponent.Shape) ([]extractedFact, []extractedRelationship, error) {
	body := stripFences(reply)

	switch shape {
	case registrycomponent.ShapeItems:
		var parsed struct {
			Items []struct {
				Content    string  `json:"content"`
				Category   string  `json:"category"`
				Importance float64 `json:"importance"`
				Action     string  `json:"action"`
			} `json:"items"`
		}
		if err := json.Unmarshal([]byte(body), &parsed); err != nil {
			return nil, nil, err
		}
		facts := make([]extractedFact, 0, len(parsed.Items))
		for _, it := range parsed.Items {
			conflict := ""
			if it.Action == "merge" {
				conflict = "update"
			}
			facts = append(facts, extractedFact{Content: it.Content, Category: it.Category, Importance: it.Importance, Conflict: conflict})
		}
		return facts, nil, nil

	case registrycomponent.ShapeObservations:
		var parsed struct {
			Observations []struct {
				Content    string  `json:"content"`
				Category   string  `json:"category"`
				Importance float64 `json:"importance"`
			} `json:"observations"`
		}
		if err := json.Unmarshal([]byte(body), &parsed); err != nil {
			return nil, nil, err
		}
		facts := make([]extractedFact, 0, len(parsed.Observations))
		for _, o := range parsed.Observations {
			facts = append(facts, extractedFact{Content: o.Content, Category: o.Category, Importance: o.Importance})
		}
		return facts, nil, nil

	default: // ShapeFacts
		var parsed struct {
			Facts []struct {
				Content  string `json:"content"`
				Entities []struct {
					Name string `json:"name"`
					Type string `json:"type"`
				} `json:"entities"`
				Importance float64 `json:"importance"`
				Conflict   *string `json:"conflict"`
			} `json:"facts"`
			Relationships []struct {
				From       string  `json:"from"`
				To         string  `json:"to"`
				Relation   string  `json:"relation"`
				Confidence float64 `json:"confidence"`
			} `json:"relationships"`
		}
		if err := json.Unmarshal([]byte(body), &parsed); err != nil {
			return nil, nil, err
		}
		facts := make([]extractedFact, 0, len(parsed.Facts))
		for _, f := range parsed.Facts {
			ef := extractedFact{Content: f.Content, Importance: f.Importance}
			if f.Conflict != nil {
				ef.Conflict = *f.Conflict
			}
			for _, e := range f.Entities {
				ef.Entities = append(ef.Entities, extractedEntity{Name: e.Name, Type: e.Type})
			}
			facts = append(facts, ef)
		}
		rels := make([]extractedRelationship, 0, len(parsed.Relationships))
		for _, r := range parsed.Relationships {
			rels = append(rels, extractedRelationship{From: r.From, To: r.To, Relation: r.Relation, Confidence: r.Confidence})
		}
		return facts, rels, nil
	}
}

func (p *Pipeline) applyFacts(ctx context.Context, def registrycomponent.Definition, sessionID string, episodeIDs []string, facts []extractedFact) (created, merged int, err error) {
	now := p.now()
	for _, f := range facts {
		category := f.Category
		if category == "" {
			category = def.DefaultCategory
		}
		importance := f.Importance
		if importance == 0 {
			importance = def.DefaultImportance
		}

		var entityIDs []string
		for _, e := range f.Entities {
			entType := e.Type
			if entType == "" {
				entType = "concept"
			}
			ent, err := p.Store.UpsertEntity(ctx, model.Entity{Name: e.Name, Type: entType})
			if err != nil {
				return created, merged, err
			}
			entityIDs = append(entityIDs, ent.ID.String())
		}

		matches, err := p.Store.FindSimilar(ctx, f.Content, def.Name, registrystore.SimilarOptions{SessionID: sessionID, Limit: 1})
		if err != nil {
			return created, merged, err
		}

		mergeThreshold := p.MergeThreshold
		if def.MergeThreshold > 0 {
			mergeThreshold = def.MergeThreshold
		}

		var existing *model.Memory
		var aboveThreshold bool
		if len(matches) > 0 {
			existing = &matches[0].Memory
			aboveThreshold = matches[0].BM25 >= mergeThreshold
		}

		switch {
		case f.Conflict == "duplicate" && existing != nil:
			if existing.Importance >= importance {
				continue // old wins
			}
			if err := p.mergeInto(ctx, existing, f.Content, importance, entityIDs, episodeIDs, now, false); err != nil {
				return created, merged, err
			}
			merged++

		case f.Conflict == "contradiction" && existing != nil:
			newID := idgen.New(now)
			if err := p.Store.Insert(ctx, model.Memory{
				ID: newID, Content: f.Content, Component: def.Name, Category: category,
				Importance: importance, SessionID: sessionID, EntityIDs: entityIDs,
				SourceEpisodeIDs: episodeIDs,
				CreatedAt: now, UpdatedAt: now, Status: model.StatusActive,
			}); err != nil {
				return created, merged, err
			}
			if err := p.Store.Supersede(ctx, existing.ID, newID); err != nil {
				return created, merged, err
			}
			created++

		case existing != nil && f.Conflict == "update":
			if err := p.mergeInto(ctx, existing, f.Content, importance, entityIDs, episodeIDs, now, true); err != nil {
				return created, merged, err
			}
			merged++

		case existing != nil && f.Conflict == "" && aboveThreshold:
			if err := p.mergeInto(ctx, existing, f.Content, importance, entityIDs, episodeIDs, now, true); err != nil {
				return created, merged, err
			}
			merged++

		default:
			if err := p.Store.Insert(ctx, model.Memory{
				ID: idgen.New(now), Content: f.Content, Component: def.Name, Category: category,
				Importance: importance, SessionID: sessionID, EntityIDs: entityIDs,
				SourceEpisodeIDs: episodeIDs,
				CreatedAt: now, UpdatedAt: now, Status: model.StatusActive,
			}); err != nil {
				return created, merged, err
			}
			created++
		}
	}
	return created, merged, nil
}

func (p *Pipeline) mergeInto(ctx context.Context, existing *model.Memory, content string, importance float64, entityIDs, episodeIDs []string, now time.Time, replaceContent bool) error {
	newImportance := existing.Importance
	if importance > newImportance {
		newImportance = importance
	}
	mergedEntities := unionStrings(existing.EntityIDs, entityIDs)
	mergedSources := unionStrings(existing.SourceEpisodeIDs, episodeIDs)

	update := model.MemoryUpdate{
		Importance:   &newImportance,
		EntityIDs:    mergedEntities,
		SetEntityIDs: true,
		SourceIDs:    mergedSources,
		SetSourceIDs: true,
	}
	if replaceContent {
		update.Content = &content
	}
	return p.Store.Update(ctx, existing.ID, update)
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func (p *Pipeline) applyRelationships(ctx context.Context, rels []extractedRelationship) error {
	for _, r := range rels {
		if r.From == "" || r.To == "" || r.Relation == "" {
			continue
		}
		from, err := p.Store.UpsertEntity(ctx, model.Entity{Name: r.From, Type: "concept"})
		if err != nil {
			return err
		}
		to, err := p.Store.UpsertEntity(ctx, model.Entity{Name: r.To, Type: "concept"})
		if err != nil {
			return err
		}
		confidence := r.Confidence
		if confidence == 0 {
			confidence = 1.0
		}
		if err := p.Store.UpsertRelationship(ctx, model.Relationship{
			FromEntityID: from.ID, ToEntityID: to.ID, Relation: r.Relation, Confidence: confidence, UpdatedAt: p.now(),
		}); err != nil {
			return err
		}
	}
	return nil
}

// enforceSessionCap expires the lowest-importance active items for
// (component, sessionID) until the count is at most MaxItemsPerSession,
// breaking ties by older updatedAt. Evicted items are counted as decayed.
func (p *Pipeline) enforceSessionCap(ctx context.Context, def registrycomponent.Definition, sessionID string) (int, error) {
	active, err := p.Store.FindActiveByComponentSession(ctx, def.Name, sessionID)
	if err != nil {
		return 0, err
	}
	if len(active) <= def.MaxItemsPerSession {
		return 0, nil
	}
	overflow := active[:len(active)-def.MaxItemsPerSession]
	for _, m := range overflow {
		if err := p.Store.ExpireItem(ctx, m.ID); err != nil {
			return 0, err
		}
	}
	return len(overflow), nil
}

func (p *Pipeline) applyDecay(ctx context.Context, def registrycomponent.Definition) (int, error) {
	if def.DecayInactivePeriod <= 0 {
		return 0, nil
	}
	return p.Store.ApplyImportanceDecay(ctx, def.Name,
		time.Duration(def.DecayInactivePeriod)*time.Second, def.DecayRate, def.FloorThreshold)
}
