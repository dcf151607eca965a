// Package metrics exposes Prometheus collectors for the API service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Session release outcomes.
const (
	OutcomeCommit         = "commit"
	OutcomeRollback       = "rollback"
	OutcomeCommitFailed   = "commit_failed"
	OutcomeRollbackFailed = "rollback_failed"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	dbSessionsAcquiredTotal    *prometheus.CounterVec
	dbSessionsReleasedTotal    *prometheus.CounterVec
	dbSessionAcquireFailures   *prometheus.CounterVec
	dbSessionsOpen             *prometheus.GaugeVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times; the Observe helpers call
// it themselves.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		dbSessionsAcquiredTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_sessions_acquired_total",
				Help: "Total number of database sessions acquired, labeled by role.",
			},
			[]string{"role"},
		)

		dbSessionsReleasedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_sessions_released_total",
				Help: "Total number of database sessions released, labeled by role and outcome.",
			},
			[]string{"role", "outcome"},
		)

		dbSessionAcquireFailures = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_session_acquire_failures_total",
				Help: "Total number of failed session acquisitions, labeled by role.",
			},
			[]string{"role"},
		)

		dbSessionsOpen = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "db_sessions_open",
				Help: "Number of database sessions currently held, labeled by role.",
			},
			[]string{"role"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveSessionAcquired records a successful session acquisition.
func ObserveSessionAcquired(role string) {
	Init()
	dbSessionsAcquiredTotal.WithLabelValues(role).Inc()
	dbSessionsOpen.WithLabelValues(role).Inc()
}

// ObserveSessionAcquireFailure records a failed acquisition.
func ObserveSessionAcquireFailure(role string) {
	Init()
	dbSessionAcquireFailures.WithLabelValues(role).Inc()
}

// ObserveSessionReleased records the end of a session with its outcome.
func ObserveSessionReleased(role, outcome string) {
	Init()
	dbSessionsReleasedTotal.WithLabelValues(role, outcome).Inc()
	dbSessionsOpen.WithLabelValues(role).Dec()
}
