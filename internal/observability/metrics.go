package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "coordination", Name: "pipeline_runs_total", Help: "Recommendation pipeline runs by outcome"},
		[]string{"outcome"},
	)
	PipelineDuration = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "coordination", Name: "pipeline_duration_seconds", Help: "End-to-end pipeline latency"})

	CandidatesVerified = promauto.NewCounter(prometheus.CounterOpts{Namespace: "coordination", Name: "candidates_verified_total", Help: "Candidates that passed authoritative verification"})
	CandidatesDropped  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "coordination", Name: "candidates_dropped_total", Help: "Candidates dropped by a failed hard constraint"})

	RecommendationUpserts = promauto.NewCounter(prometheus.CounterOpts{Namespace: "coordination", Name: "recommendation_upserts_total", Help: "Recommendation rows written or refreshed"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "coordination", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "coordination",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
