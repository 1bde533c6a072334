package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// All collectors are registered with the default registry through promauto
// and exposed on /metrics by promhttp.

var (
	// ==================== HTTP METRICS ====================

	// HTTPRequestDuration tracks the duration of HTTP requests
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTPRequestsTotal counts total HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTPRequestsInFlight tracks currently processing requests
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// ==================== CACHE METRICS ====================

	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
	)

	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// CacheOperationDuration tracks cache operation latency
	CacheOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_operation_duration_seconds",
			Help:    "Duration of cache operations in seconds",
			Buckets: []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05},
		},
		[]string{"operation"}, // get, set, delete
	)

	// ==================== RATE LIMITING METRICS ====================

	RateLimitedRequestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limited_requests_total",
			Help: "Total number of rate-limited requests",
		},
	)

	RateLimitAllowedRequestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limit_allowed_requests_total",
			Help: "Total number of requests allowed by rate limiter",
		},
	)

	// ==================== BUSINESS METRICS ====================

	LinksCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "links_created_total",
			Help: "Total number of short links created",
		},
	)

	// AllocationAttemptsTotal counts generated short-code candidates
	AllocationAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shortcode_allocation_attempts_total",
			Help: "Total number of short-code candidates generated",
		},
	)

	// AllocationCollisionsTotal counts candidates rejected by the pre-check or the insert
	AllocationCollisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortcode_allocation_collisions_total",
			Help: "Total number of short-code collisions",
		},
		[]string{"stage"}, // reserved, precheck, insert
	)

	// AccessOutcomesTotal counts evaluator decisions per entry point
	AccessOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_outcomes_total",
			Help: "Total number of access decisions by entry point and decision",
		},
		[]string{"entry", "decision"}, // entry: redirect, verify
	)

	ClicksRecordedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clicks_recorded_total",
			Help: "Total number of click events recorded",
		},
	)

	ClickRecordFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "click_record_failures_total",
			Help: "Total number of click events that failed to persist",
		},
	)

	// ==================== DATABASE METRICS ====================

	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_seconds",
			Help:    "Duration of database queries in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	DatabaseErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_errors_total",
			Help: "Total number of database errors",
		},
		[]string{"operation"},
	)
)

// RecordCacheHit increments cache hit counter
func RecordCacheHit() {
	CacheHitsTotal.Inc()
}

// RecordCacheMiss increments cache miss counter
func RecordCacheMiss() {
	CacheMissesTotal.Inc()
}

// ObserveCache records the latency of a cache operation started at start.
func ObserveCache(operation string, start time.Time) {
	CacheOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func RecordLinkCreated() {
	LinksCreatedTotal.Inc()
}

func RecordAllocationAttempt() {
	AllocationAttemptsTotal.Inc()
}

func RecordAllocationCollision(stage string) {
	AllocationCollisionsTotal.WithLabelValues(stage).Inc()
}

// RecordAccessOutcome counts one evaluator decision.
func RecordAccessOutcome(entry, decision string) {
	AccessOutcomesTotal.WithLabelValues(entry, decision).Inc()
}

func RecordClickRecorded() {
	ClicksRecordedTotal.Inc()
}

func RecordClickFailed() {
	ClickRecordFailuresTotal.Inc()
}

// RecordRateLimited increments rate-limited requests counter
func RecordRateLimited() {
	RateLimitedRequestsTotal.Inc()
}

// RecordRateLimitAllowed increments allowed requests counter
func RecordRateLimitAllowed() {
	RateLimitAllowedRequestsTotal.Inc()
}

// ObserveQuery records a database query's latency, and counts it as an error
// when err is non-nil. Intended for use with defer.
func ObserveQuery(operation string, start time.Time, err error) {
	DatabaseQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		DatabaseErrorsTotal.WithLabelValues(operation).Inc()
	}
}
