// Package metrics holds the process-wide Prometheus collectors for source
// calls, traversal outcomes and consensus decisions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lineage"

var (
	// sourceCalls counts adapter calls.
	// Labels: source, op (search, parents, ancestry, confirm, evidence), outcome (ok, empty, error, auth, rate_limited, unavailable)
	sourceCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "source",
		Name:      "calls_total",
		Help:      "Source adapter calls by outcome",
	}, []string{"source", "op", "outcome"})

	sourceLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "source",
		Name:      "call_duration_seconds",
		Help:      "Source adapter call latency including pacing waits",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"source", "op"})

	rateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "source",
		Name:      "rate_limited_total",
		Help:      "Explicit rate-limit responses received",
	}, []string{"source"})

	degraded = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "source",
		Name:      "degraded",
		Help:      "1 while a source is degraded for its rate-limit window",
	}, []string{"source"})

	// passResults counts search passes by whether they produced candidates.
	passResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "traversal",
		Name:      "passes_total",
		Help:      "Search passes attempted",
	}, []string{"pass", "result"})

	positions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "traversal",
		Name:      "positions_total",
		Help:      "Tree positions resolved by confidence level",
	}, []string{"level"})

	consensusDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "consensus",
		Name:      "decisions_total",
		Help:      "Consensus outcomes by kind (delta, correction) and decision (applied, suggested)",
	}, []string{"kind", "decision"})

	reviewerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "consensus",
		Name:      "reviewer_failures_total",
		Help:      "Reviewer calls that failed or returned invalid output",
	}, []string{"reviewer"})
)

// RecordSourceCall records one adapter call.
func RecordSourceCall(source, op, outcome string, d time.Duration) {
	sourceCalls.WithLabelValues(source, op, outcome).Inc()
	sourceLatency.WithLabelValues(source, op).Observe(d.Seconds())
}

// RecordRateLimited records an explicit rate-limit response.
func RecordRateLimited(source string) {
	rateLimited.WithLabelValues(source).Inc()
}

// SetDegraded flags a source as degraded or recovered.
func SetDegraded(source string, on bool) {
	v := 0.0
	if on {
		v = 1
	}
	degraded.WithLabelValues(source).Set(v)
}

// RecordPass records one search pass.
func RecordPass(pass string, results int) {
	result := "empty"
	if results > 0 {
		result = "hit"
	}
	passResults.WithLabelValues(pass, result).Inc()
}

// RecordPosition records a persisted position's level.
func RecordPosition(level string) {
	positions.WithLabelValues(level).Inc()
}

// RecordConsensus records a consensus decision.
func RecordConsensus(kind, decision string) {
	consensusDecisions.WithLabelValues(kind, decision).Inc()
}

// RecordReviewerFailure records a failed reviewer call.
func RecordReviewerFailure(reviewer string) {
	reviewerFailures.WithLabelValues(reviewer).Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
