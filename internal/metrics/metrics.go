// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Synchronization
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_sync_runs_total",
			Help: "Attendance synchronizations by platform and outcome",
		},
		[]string{"platform", "result"}, // result: "ok", "empty", "error"
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "attendance_sync_duration_seconds",
			Help:    "Wall time of one synchronization including the platform fetch",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"platform"},
	)

	SyncParticipants = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_sync_participants_total",
			Help: "Participants seen during synchronization",
		},
		[]string{"platform", "outcome"}, // outcome: "matched", "unassigned", "error"
	)

	CompletionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_completion_checks_total",
			Help: "Completion evaluations by result",
		},
		[]string{"result"}, // result: "met", "not_met", "error"
	)

	ManualAssignments = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "attendance_manual_assignments_total",
			Help: "Records assigned to a user by an operator",
		},
	)

	// Platform APIs
	PlatformRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_api_requests_total",
			Help: "Attendance fetches against meeting platform APIs",
		},
		[]string{"platform", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// HTTP
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "API requests by route and status code",
		},
		[]string{"method", "route", "status"},
	)

	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter",
		},
	)

	// Queue
	QueueJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_queue_jobs_total",
			Help: "Sync jobs by stage",
		},
		[]string{"stage"}, // stage: "published", "processed", "failed"
	)
)
