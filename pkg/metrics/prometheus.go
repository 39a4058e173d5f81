package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the proxy's collectors on a private registry so several
// apps can live in one process (tests build one per case).
type Recorder struct {
	registry *prometheus.Registry

	quotesTotal      *prometheus.CounterVec
	upstreamStatus   *prometheus.CounterVec
	upstreamDuration prometheus.Histogram
	transformSeconds prometheus.Histogram
	pageBytes        prometheus.Histogram
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		quotesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chartless_quotes_total",
				Help: "Quote requests by outcome",
			},
			[]string{"outcome"},
		),
		upstreamStatus: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chartless_upstream_responses_total",
				Help: "Upstream responses by status code",
			},
			[]string{"status"},
		),
		upstreamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartless_upstream_duration_seconds",
			Help:    "Duration of upstream fetches in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}),
		transformSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartless_transform_duration_seconds",
			Help:    "Duration of markup transformation in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		pageBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartless_page_size_bytes",
			Help:    "Rendered page size in bytes",
			Buckets: []float64{10_000, 50_000, 100_000, 250_000, 500_000, 1_000_000, 2_500_000, 5_000_000},
		}),
	}
	r.registry.MustRegister(r.quotesTotal, r.upstreamStatus, r.upstreamDuration, r.transformSeconds, r.pageBytes)
	return r
}

// Handler serves the registry in the exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RecordOutcome counts a finished quote request.
func (r *Recorder) RecordOutcome(outcome string) {
	if r == nil {
		return
	}
	r.quotesTotal.WithLabelValues(outcome).Inc()
}

// RecordUpstream records an upstream reply and how long it took.
func (r *Recorder) RecordUpstream(status int, seconds float64) {
	if r == nil {
		return
	}
	r.upstreamStatus.WithLabelValues(strconv.Itoa(status)).Inc()
	r.upstreamDuration.Observe(seconds)
}

func (r *Recorder) RecordTransform(seconds float64, size int) {
	if r == nil {
		return
	}
	r.transformSeconds.Observe(seconds)
	r.pageBytes.Observe(float64(size))
}
