// Package metrics exposes the Prometheus instrumentation for the
// detection pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EmailsAnalyzed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsentry_emails_analyzed_total",
			Help: "Emails analyzed, by tenant and final verdict",
		},
		[]string{"tenant", "verdict"},
	)

	AnalysisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailsentry_analysis_duration_seconds",
			Help:    "Full pipeline wall time per email",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	LayerSkips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsentry_layer_skips_total",
			Help: "Layers skipped during analysis, by layer",
		},
		[]string{"layer"},
	)

	LLMQuotaRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailsentry_llm_quota_rejections_total",
			Help: "LLM invocations refused by the daily quota",
		},
	)

	LookalikeDetections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsentry_lookalike_detections_total",
			Help: "Lookalike domains detected, by attack type",
		},
		[]string{"attack_type"},
	)

	IntelCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailsentry_intel_cache_hits_total",
			Help: "Threat-intel lookups served from cache",
		},
	)

	IntelFeedFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsentry_intel_feed_failures_total",
			Help: "Threat-feed lookup failures, by feed",
		},
		[]string{"feed"},
	)
)
