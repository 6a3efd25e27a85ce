package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	turnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "abyss_engine_turns_total",
			Help: "Total number of resolved turns by outcome.",
		},
		[]string{"scenario", "outcome"}, // outcome: applied, fallback, rejected_ap, ended
	)
	violationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "abyss_engine_response_repairs_total",
			Help: "Soft violations repaired or ignored while processing model responses.",
		},
		[]string{"kind"},
	)
	hardFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "abyss_engine_response_hard_failures_total",
			Help: "Model responses rejected outright and replaced by the fallback dilemma.",
		},
		[]string{"reason"},
	)
	amplifiedDelta = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "abyss_engine_applied_delta_abs",
			Help:    "Absolute applied stat delta after amplification and bound clamping.",
			Buckets: prometheus.LinearBuckets(0, 5, 13), // 0, 5, ..., 60
		},
		[]string{"zone"},
	)
	llmRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "abyss_engine_llm_requests_total",
			Help: "Total number of requests to the narrative model.",
		},
		[]string{"model", "status"},
	)
	llmRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "abyss_engine_llm_request_duration_seconds",
			Help:    "Histogram of narrative model request durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)
	llmTotalTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "abyss_engine_llm_total_tokens",
			Help:    "Histogram of total token counts (prompt + completion).",
			Buckets: prometheus.LinearBuckets(500, 500, 16), // 500, 1000, ..., 8000
		},
		[]string{"model"},
	)
)
