package graph

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	nodesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "citegraph_nodes_processed_total",
		Help: "Papers expanded by graph traversals.",
	})

	citationsResolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "citegraph_citations_resolved_total",
		Help: "Citation stubs newly linked to a paper.",
	})

	papersMaterialized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "citegraph_papers_materialized_total",
		Help: "Papers created from registry records, by provenance.",
	}, []string{"provenance"})

	registryLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "citegraph_registry_lookups_total",
		Help: "Identity lookups by kind (local_doi, local_title, doi, search) and outcome (hit, miss, error).",
	}, []string{"kind", "outcome"})

	embeddingFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "citegraph_embedding_fallbacks_total",
		Help: "Chunks stored with a zero vector because embedding failed.",
	})

	// RunDuration is observed by the job runner once per run.
	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "citegraph_run_duration_seconds",
		Help:    "Wall-clock duration of graph runs.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	}, []string{"mode", "status"})
)

// Lookup kinds and outcomes used as metric labels.
const (
	lookupLocalDOI   = "local_doi"
	lookupLocalTitle = "local_title"
	lookupDOI        = "doi"
	lookupSearch     = "search"

	outcomeHit   = "hit"
	outcomeMiss  = "miss"
	outcomeError = "error"
)
