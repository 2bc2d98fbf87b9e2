package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cohort_builder"

var (
	countRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "counts",
		Name:      "requests_total",
		Help:      "Group count requests by outcome (started, completed, canceled, stale, failed).",
	}, []string{"outcome"})

	countsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "counts",
		Name:      "in_flight",
		Help:      "Paths with an outstanding group count request.",
	})

	countLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "counts",
		Name:      "latency_seconds",
		Help:      "Group count latency in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	})

	reviewPages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "review",
		Name:      "pages_total",
		Help:      "Review pages served by source (source, cache, fallback).",
	}, []string{"source"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method and status code.",
	}, []string{"method", "code"})
)

const (
	OutcomeStarted   = "started"
	OutcomeCompleted = "completed"
	OutcomeCanceled  = "canceled"
	OutcomeStale     = "stale"
	OutcomeFailed    = "failed"

	SourceBackend  = "source"
	SourceCache    = "cache"
	SourceFallback = "fallback"
)

func ObserveCount(outcome string) {
	countRequests.WithLabelValues(outcome).Inc()
}

func ObserveCountLatency(seconds float64) {
	countLatency.Observe(seconds)
}

func SetInFlight(n int) {
	countsInFlight.Set(float64(n))
}

func ObserveReviewPage(source string) {
	reviewPages.WithLabelValues(source).Inc()
}

func ObserveHTTP(method, code string) {
	httpRequests.WithLabelValues(method, code).Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
