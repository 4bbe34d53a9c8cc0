// Package compaction implements the periodic maintenance pass: retention
// based tombstone deletion, near-duplicate merging, and graph orphan
// cleanup. It is invoked explicitly rather than on a timer internal to this
// package.
package compaction

import (
	"context"
	"math"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/souvenir/internal/model"
	"github.com/chirino/souvenir/internal/registry/embed"
	registrystore "github.com/chirino/souvenir/internal/registry/store"
	"github.com/chirino/souvenir/internal/telemetry"
)

// Config carries the retention windows and optional dedup threshold for one
// Compact call. DeduplicationThreshold is a pointer because unset and "0.0"
// are different: a configured threshold of 0 would merge every pair sharing
// a component, however unrelated, which is almost certainly not intended,
// so the zero value must mean "disabled" unless a caller opts in explicitly.
type Config struct {
	ExpiredRetention       time.Duration
	SupersededRetention    time.Duration
	DecayedRetention       time.Duration
	EpisodeRetention       time.Duration
	DeduplicationThreshold *float64
}

// Report aggregates every counter produced by one Compact call.
type Report struct {
	ExpiredDeleted               int
	SupersededDeleted            int
	DecayedDeleted               int
	EpisodesDeleted              int
	DuplicatesMerged             int
	OrphanedRelationshipsDeleted int
	OrphanedEntitiesDeleted      int
}

// ConfigError signals a Compact call made with an impossible configuration,
// such as a dedup threshold with no embedding provider to compute it.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "compaction: " + e.Reason }

// Compactor runs the retention, dedup, and orphan-cleanup passes.
type Compactor struct {
	Store        registrystore.MemoryStore
	EpisodeStore registrystore.EpisodeStore
	Embedder     embed.Embedder // optional; required only if a Config sets DeduplicationThreshold
	Now          func() time.Time
}

func (c *Compactor) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Compact runs deleteTombstoned for each tombstone status, prunes old
// consolidated episodes, optionally merges near-duplicate active memories,
// and finally cleans up orphaned graph rows. Relationships are cleaned
// before entities: an entity referenced only by a since-deleted relationship
// must be seen as orphaned, which only holds once that relationship is gone.
func (c *Compactor) Compact(ctx context.Context, cfg Config) (Report, error) {
	if cfg.DeduplicationThreshold != nil && c.Embedder == nil {
		return Report{}, &ConfigError{Reason: "deduplicationThreshold set but no embedding provider configured"}
	}

	defer func(start time.Time) {
		telemetry.CompactionLatency.Observe(time.Since(start).Seconds())
	}(c.now())

	var report Report
	now := c.now()

	expired, err := c.Store.DeleteTombstoned(ctx, model.StatusExpired, now.Add(-cfg.ExpiredRetention))
	if err != nil {
		return report, err
	}
	report.ExpiredDeleted = expired

	superseded, err := c.Store.DeleteTombstoned(ctx, model.StatusSuperseded, now.Add(-cfg.SupersededRetention))
	if err != nil {
		return report, err
	}
	report.SupersededDeleted = superseded

	decayed, err := c.Store.DeleteTombstoned(ctx, model.StatusDecayed, now.Add(-cfg.DecayedRetention))
	if err != nil {
		return report, err
	}
	report.DecayedDeleted = decayed

	episodes, err := c.EpisodeStore.DeleteConsolidatedBefore(ctx, now.Add(-cfg.EpisodeRetention))
	if err != nil {
		return report, err
	}
	report.EpisodesDeleted = episodes

	if cfg.DeduplicationThreshold != nil {
		merged, err := c.mergeNearDuplicates(ctx, *cfg.DeduplicationThreshold, now)
		if err != nil {
			return report, err
		}
		report.DuplicatesMerged = merged
	}

	relDeleted, err := c.Store.DeleteOrphanedRelationships(ctx)
	if err != nil {
		return report, err
	}
	report.OrphanedRelationshipsDeleted = relDeleted

	entDeleted, err := c.Store.DeleteOrphanedEntities(ctx)
	if err != nil {
		return report, err
	}
	report.OrphanedEntitiesDeleted = entDeleted

	telemetry.CompactionDeleted.WithLabelValues("expired").Add(float64(report.ExpiredDeleted))
	telemetry.CompactionDeleted.WithLabelValues("superseded").Add(float64(report.SupersededDeleted))
	telemetry.CompactionDeleted.WithLabelValues("decayed").Add(float64(report.DecayedDeleted))
	telemetry.CompactionDeleted.WithLabelValues("episode").Add(float64(report.EpisodesDeleted))
	telemetry.CompactionDeleted.WithLabelValues("orphaned_relationship").Add(float64(report.OrphanedRelationshipsDeleted))
	telemetry.CompactionDeleted.WithLabelValues("orphaned_entity").Add(float64(report.OrphanedEntitiesDeleted))

	return report, nil
}

// mergeNearDuplicates compares every pair of active, embedded memories that
// share a component; pairs whose cosine similarity exceeds threshold are
// collapsed, the weaker member superseded by the stronger. Quadratic by
// component is intentional here: sharding further by content length would
// reduce the comparison count but risks silently skipping a genuine
// near-duplicate pair that happens to straddle a bucket boundary.
func (c *Compactor) mergeNearDuplicates(ctx context.Context, threshold float64, now time.Time) (int, error) {
	candidates, err := c.Store.FindEmbedded(ctx)
	if err != nil {
		return 0, err
	}

	byComponent := map[string][]model.Memory{}
	for _, m := range candidates {
		if len(m.Embedding) == 0 {
			continue
		}
		byComponent[m.Component] = append(byComponent[m.Component], m)
	}

	superseded := map[string]bool{}
	merged := 0

	for _, group := range byComponent {
		for i := 0; i < len(group); i++ {
			if superseded[group[i].ID] {
				continue
			}
			for j := i + 1; j < len(group); j++ {
				if superseded[group[j].ID] {
					continue
				}
				sim := cosineSimilarity(group[i].Embedding, group[j].Embedding)
				if sim <= threshold {
					continue
				}

				winner, loser := pickSurvivor(group[i], group[j])
				if err := c.Store.Supersede(ctx, loser.ID, winner.ID); err != nil {
					return merged, err
				}
				superseded[loser.ID] = true
				merged++
				log.Debug("compaction: merged near-duplicate memory", "winner", winner.ID, "loser", loser.ID, "similarity", sim)
			}
		}
	}

	return merged, nil
}

// pickSurvivor decides which of two near-duplicate memories stays active.
// The source system left this undocumented; ties are broken by higher
// importance, then by older createdAt, so the decision never depends on
// undocumented map iteration order.
func pickSurvivor(a, b model.Memory) (winner, loser model.Memory) {
	if a.Importance != b.Importance {
		if a.Importance > b.Importance {
			return a, b
		}
		return b, a
	}
	if a.CreatedAt.Before(b.CreatedAt) {
		return a, b
	}
	return b, a
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
