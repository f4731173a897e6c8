// Package metrics holds the Prometheus collectors for the lending engine.
// Collectors register with the default registry at init via promauto and
// are exposed by the api package on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Loan lifecycle
	LoanTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_loan_transitions_total",
			Help: "Loan state machine operations by result",
		},
		[]string{"op", "result"}, // result: "ok" or an error code
	)

	LoanVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "library_loan_version",
			Help: "Last observed value of the loan change counter",
		},
	)

	InventoryClamped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "library_inventory_clamped_total",
			Help: "Reconciliations that found more copies out than owned",
		},
	)

	// Notices
	NoticesDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_notices_dispatched_total",
			Help: "Notices handed to the dispatcher after commit",
		},
		[]string{"kind", "result"},
	)

	NoticesDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_notices_delivered_total",
			Help: "Notices processed by the delivery worker",
		},
		[]string{"kind", "result"}, // "sent", "skipped", "failed", "rejected"
	)

	MailerBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "library_mailer_breaker_state",
			Help: "Mailer circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// Recommendation mining
	MiningDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "library_mining_duration_seconds",
			Help:    "Duration of association rule mining runs",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		},
	)

	MiningRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_mining_runs_total",
			Help: "Association rule mining runs by outcome",
		},
		[]string{"result"}, // "replaced", "insufficient", "error"
	)

	AssociationRules = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "library_association_rules",
			Help: "Rules stored by the last successful mining run",
		},
	)

	// HTTP API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "library_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "route"},
	)
)

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, route, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordMiningRun records the outcome of one mining run.
func RecordMiningRun(result string, rules int, duration time.Duration) {
	MiningRuns.WithLabelValues(result).Inc()
	MiningDuration.Observe(duration.Seconds())
	if result == "replaced" {
		AssociationRules.Set(float64(rules))
	}
}
