package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "credibility"

// Metrics holds the Prometheus collectors for assessments and the HTTP server.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	batches       *prometheus.CounterVec
	batchDuration prometheus.Histogram
	evaluations   *prometheus.CounterVec
	reports       *prometheus.CounterVec
	credibility   prometheus.Histogram
	httpRequests  *prometheus.CounterVec
	staleReaped   prometheus.Counter
}

// NewMetrics registers the collectors with reg (prometheus.DefaultRegisterer when nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		batches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Assessment batches processed, by outcome.",
		}, []string{"outcome"}),
		batchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time of one assessment batch.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Question evaluations, by response and whether the fallback path was used.",
		}, []string{"response", "fallback"}),
		reports: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Final reports created, by overall result.",
		}, []string{"overall_result"}),
		credibility: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "credibility_score",
			Help:      "Distribution of final credibility scores.",
			Buckets:   prometheus.LinearBuckets(25, 10, 8),
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by route pattern and status code.",
		}, []string{"route", "code"}),
		staleReaped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_assessments_reaped_total",
			Help:      "Processing assessments marked failed by the stale reaper.",
		}),
	}
}

// ObserveBatch records one batch attempt.
func (m *Metrics) ObserveBatch(d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.batches.WithLabelValues(outcome).Inc()
	m.batchDuration.Observe(d.Seconds())
}

// ObserveEvaluation records one question evaluation.
func (m *Metrics) ObserveEvaluation(response string, fallback bool) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(response, strconv.FormatBool(fallback)).Inc()
}

// ObserveReport records a finalized report.
func (m *Metrics) ObserveReport(overallResult string, credibilityScore int) {
	if m == nil {
		return
	}
	m.reports.WithLabelValues(overallResult).Inc()
	m.credibility.Observe(float64(credibilityScore))
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(route string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// AddReaped records assessments failed by the reaper.
func (m *Metrics) AddReaped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.staleReaped.Add(float64(n))
}
