// Package telemetry centralises the Prometheus metrics recorded across the
// engine's pipelines, following the same promauto registration pattern the
// HTTP layer of this codebase's ancestor used for its own request metrics.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoreLatency records per-operation MemoryStore/EpisodeStore latency.
	StoreLatency *prometheus.HistogramVec

	// RecallLatency records end-to-end RecallPipeline.Recall latency.
	RecallLatency prometheus.Histogram
	// RecallCandidates records how many results each recall call returned,
	// after threshold/topK/budget trimming.
	RecallCandidates prometheus.Histogram

	// ConsolidationLatency records end-to-end ConsolidationPipeline.Consolidate latency.
	ConsolidationLatency prometheus.Histogram
	// ConsolidationSessionsSkipped counts sessions abandoned due to LM/parse failure.
	ConsolidationSessionsSkipped prometheus.Counter

	// CompactionLatency records end-to-end Compactor.Compact latency.
	CompactionLatency prometheus.Histogram
	// CompactionDeleted counts rows physically removed by compaction, by kind.
	CompactionDeleted *prometheus.CounterVec

	// CacheHitsTotal and CacheMissesTotal count recall-result cache lookups.
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// EmbeddingFailuresTotal counts non-fatal embedding provider errors.
	EmbeddingFailuresTotal prometheus.Counter

	// DBPoolOpenConnections tracks currently open database connections.
	DBPoolOpenConnections prometheus.Gauge
)

var initOnce sync.Once

// Init registers every metric with the default registerer. Safe to call
// multiple times; only the first call registers.
func Init() {
	initOnce.Do(initInner)
}

func initInner() {
	f := promauto.With(prometheus.DefaultRegisterer)

	StoreLatency = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "souvenir_store_latency_seconds",
		Help:    "Store operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	RecallLatency = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "souvenir_recall_latency_seconds",
		Help:    "recall() call latency in seconds",
		Buckets: prometheus.DefBuckets,
	})
	RecallCandidates = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "souvenir_recall_candidates",
		Help:    "Number of recall results returned after threshold/topK/budget trimming",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	ConsolidationLatency = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "souvenir_consolidation_latency_seconds",
		Help:    "consolidate() call latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})
	ConsolidationSessionsSkipped = f.NewCounter(prometheus.CounterOpts{
		Name: "souvenir_consolidation_sessions_skipped_total",
		Help: "Sessions skipped due to LM failure or unparseable output",
	})

	CompactionLatency = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "souvenir_compaction_latency_seconds",
		Help:    "compact() call latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})
	CompactionDeleted = f.NewCounterVec(prometheus.CounterOpts{
		Name: "souvenir_compaction_deleted_total",
		Help: "Rows physically deleted by compaction, by kind",
	}, []string{"kind"})

	CacheHitsTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "souvenir_recall_cache_hits_total",
		Help: "Recall-result cache hits",
	})
	CacheMissesTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "souvenir_recall_cache_misses_total",
		Help: "Recall-result cache misses",
	})

	EmbeddingFailuresTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "souvenir_embedding_failures_total",
		Help: "Non-fatal embedding provider failures",
	})

	DBPoolOpenConnections = f.NewGauge(prometheus.GaugeOpts{
		Name: "souvenir_db_pool_open_connections",
		Help: "Number of open database connections",
	})
}
