package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "approval_http_request_duration_seconds",
			Help:    "Histogram of response durations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	TokensIssued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "approval_tokens_issued_total",
			Help: "Number of approval tokens issued",
		},
	)

	// CallbackDecisions counts callback outcomes: approved, rejected,
	// replayed, invalid, not_found, error.
	CallbackDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_callback_decisions_total",
			Help: "Number of decision callbacks by outcome",
		},
		[]string{"outcome"},
	)

	SweepTransitioned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "approval_sweep_transitioned_total",
			Help: "Number of records auto-approved by the sweeper",
		},
	)

	SweepConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "approval_sweep_conflicts_total",
			Help: "Number of sweep transitions lost to a concurrent decision",
		},
	)

	SweepFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "approval_sweep_record_failures_total",
			Help: "Number of records skipped by the sweeper due to store errors",
		},
	)

	SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "approval_sweep_duration_seconds",
			Help:    "Duration of sweep runs",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func Init() {
	prometheus.MustRegister(
		RequestCount, RequestDuration,
		TokensIssued, CallbackDecisions,
		SweepTransitioned, SweepConflicts, SweepFailures, SweepDuration,
	)
}
