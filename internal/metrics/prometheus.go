package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API metrics
var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	APIAuthFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_auth_failures_total",
			Help: "Total number of failed logins",
		},
		[]string{"reason"}, // bad_credentials, locked
	)
)

// Dispatch metrics
var (
	BatchesAcceptedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_batches_accepted_total",
			Help: "Total number of batches accepted for sending",
		},
	)

	MessagesCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_messages_created_total",
			Help: "Total number of per-recipient message records created",
		},
	)

	MessageSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_message_sends_total",
			Help: "Send attempts by outcome",
		},
		[]string{"result"}, // sent, failed, retried
	)

	MessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_message_send_duration_seconds",
			Help:    "Duration of individual send attempts",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	BatchProgressEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_progress_events_total",
			Help: "Total number of batch progress snapshots observed",
		},
	)

	BatchesCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_batches_completed_total",
			Help: "Finished batches by outcome",
		},
		[]string{"result"}, // ok, closed, error
	)

	ActiveSessionRuntimes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "session_runtimes_active",
			Help: "Number of session runtimes currently registered",
		},
	)
)

// Database metrics
var (
	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of acquired database connections",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)
