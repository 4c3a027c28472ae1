package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheOperations tracks cache hits, misses and invalidations per table
	CacheOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keys_cache_operations_total",
		Help: "Total number of cache hits, misses and invalidations",
	}, []string{"key", "result"})

	// StoreErrors tracks failed calls to the backing grid
	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keys_store_errors_total",
		Help: "Total number of failed backing store operations",
	}, []string{"op"})

	// SkippedRows tracks malformed rows excluded from reads
	SkippedRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keys_store_skipped_rows_total",
		Help: "Total number of malformed rows skipped while reading",
	}, []string{"table", "reason"})

	// PendingRequests is the number of requests awaiting approval
	PendingRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "keys_pending_requests",
		Help: "Number of key requests awaiting approval",
	})

	// RequestOutcomes tracks how pending requests were resolved
	RequestOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keys_request_outcomes_total",
		Help: "Total number of key requests by outcome",
	}, []string{"outcome"})

	// Returns tracks key returns
	Returns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keys_returns_total",
		Help: "Total number of return attempts by result",
	}, []string{"result"})

	// ReminderSweeps tracks overdue reminder sweep runs
	ReminderSweeps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keys_reminder_sweeps_total",
		Help: "Total number of overdue reminder sweeps by result",
	}, []string{"result"})

	// NotificationFailures tracks notifications that could not be delivered
	NotificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keys_notification_failures_total",
		Help: "Total number of notifications that failed to send",
	})

	// HandlerPanics counts recovered handler panics
	HandlerPanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keys_http_panics_total",
		Help: "Total number of recovered HTTP handler panics",
	})
)
