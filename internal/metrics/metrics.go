// Coursemap - Learning Personalization and Offline Sync Engine
// Copyright 2026 The Coursemap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursemap/coursemap

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for:
// - Offline action queue depth, replay outcomes and dead letters
// - Profile store fetches, fallbacks and remote write failures
// - Recommendation scoring latency and cache efficiency
// - Upstream client circuit breaker state
// - API endpoint latency and throughput
// - WebSocket connections

var (
	// Queue Metrics
	QueuePendingActions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "queue_pending_actions",
			Help: "Current number of actions pending replay",
		},
	)

	QueueEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_enqueued_total",
			Help: "Total number of actions enqueued",
		},
		[]string{"action_type"},
	)

	QueueReplaysTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_replays_total",
			Help: "Total number of action replay attempts",
		},
		[]string{"action_type", "result"}, // result: "success", "failure"
	)

	QueueFlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "queue_flush_duration_seconds",
			Help:    "Duration of queue flush passes in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	QueueFlushSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_flush_skipped_total",
			Help: "Total number of flush passes skipped",
		},
		[]string{"reason"}, // "in_progress", "offline"
	)

	QueueLastFlushSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "queue_last_flush_success_timestamp",
			Help: "Unix timestamp of last successful flush pass",
		},
	)

	// Dead Letter Metrics
	DeadLettersTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dead_letters_total",
			Help: "Current number of dead-lettered actions",
		},
	)

	DeadLettersAdded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dead_letters_added_total",
			Help: "Total number of actions dead-lettered after exhausting retries",
		},
		[]string{"action_type"},
	)

	DeadLettersRequeued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dead_letters_requeued_total",
			Help: "Total number of dead-lettered actions requeued for replay",
		},
	)

	DeadLettersPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dead_letters_purged_total",
			Help: "Total number of dead-lettered actions purged",
		},
	)

	// Profile Store Metrics
	ProfileFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "profile_fetches_total",
			Help: "Total number of profile fetches by source",
		},
		[]string{"source"}, // "cache", "store", "remote", "default"
	)

	ProfileDefaultFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "profile_default_fallbacks_total",
			Help: "Total number of profile reads served by the deterministic default",
		},
	)

	ProfileRemoteWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "profile_remote_write_failures_total",
			Help: "Total number of best-effort remote profile persists that failed",
		},
	)

	ProfilePathRegenerations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "profile_path_regenerations_total",
			Help: "Total number of learning path regenerations triggered by profile changes",
		},
	)

	// Recommendation Metrics
	RecommendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recommend_duration_seconds",
			Help:    "Duration of recommendation scoring in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"mode"}, // "standard", "adaptive"
	)

	RecommendCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommend_cache_hits_total",
			Help: "Total number of recommendation cache hits",
		},
	)

	RecommendCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommend_cache_misses_total",
			Help: "Total number of recommendation cache misses",
		},
	)

	RecommendCacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommend_cache_evictions_total",
			Help: "Total number of recommendation cache evictions (TTL expiry or invalidation)",
		},
	)

	RecommendEmptyResults = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommend_empty_results_total",
			Help: "Total number of recommendation requests that produced no candidates",
		},
	)

	// Connectivity Metrics
	ConnectivityOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "connectivity_online",
			Help: "Whether the upstream platform is reachable (1=online, 0=offline)",
		},
	)

	ConnectivityTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connectivity_transitions_total",
			Help: "Total number of connectivity state transitions",
		},
		[]string{"to_state"}, // "online", "offline"
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
		[]string{"error_type"},
	)

	// Storage Metrics
	StorageGCRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_gc_runs_total",
			Help: "Total number of value-log garbage collection runs",
		},
		[]string{"result"}, // "reclaimed", "noop", "error"
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordReplay records the outcome of a single action replay attempt
func RecordReplay(actionType string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	QueueReplaysTotal.WithLabelValues(actionType, result).Inc()
}

// RecordFlush records a completed flush pass
func RecordFlush(duration time.Duration, failed int) {
	QueueFlushDuration.Observe(duration.Seconds())
	if failed == 0 {
		QueueLastFlushSuccess.Set(float64(time.Now().Unix()))
	}
}

// RecordDeadLetter records an action moved to the dead-letter store
func RecordDeadLetter(actionType string) {
	DeadLettersAdded.WithLabelValues(actionType).Inc()
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
