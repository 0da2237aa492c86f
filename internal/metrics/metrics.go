// Package metrics registers the orchestrator's Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Run metrics
	RunsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prosearch_runs_started_total",
			Help: "Total number of research runs started",
		},
	)

	RunsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prosearch_runs_completed_total",
			Help: "Total number of research runs completed",
		},
		[]string{"status"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "prosearch_run_duration_seconds",
			Help:    "Research run duration in seconds",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
		},
	)

	RunWaves = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "prosearch_run_waves",
			Help:    "Number of research waves executed per run",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		},
	)

	// Research task metrics
	ResearchTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prosearch_research_tasks_total",
			Help: "Total number of per-query research tasks executed",
		},
		[]string{"strategy", "status"},
	)

	// Provider call metrics
	LLMCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prosearch_llm_calls_total",
			Help: "Total number of model calls by provider and outcome",
		},
		[]string{"provider", "status"},
	)

	LLMCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prosearch_llm_call_duration_seconds",
			Help:    "Model call duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"provider"},
	)

	// Fetch metrics
	PageFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prosearch_page_fetches_total",
			Help: "Total number of document fetches by outcome",
		},
		[]string{"status"},
	)

	FetchCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prosearch_fetch_cache_hits_total",
			Help: "Total number of fetched-page cache hits",
		},
	)
)
