package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the memory service.
// A nil *Metrics is valid and records nothing, which keeps tests quiet.
type Metrics struct {
	Classifications     *prometheus.CounterVec
	Flushes             *prometheus.CounterVec
	VectorOps           *prometheus.CounterVec
	BackgroundJobs      *prometheus.CounterVec
	Degradations        *prometheus.CounterVec
	ContextSliceLatency *prometheus.HistogramVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Classifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Exchange classifications by resulting tag.",
		}, []string{"tag"}),
		Flushes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "short_term_flushes_total",
			Help:      "Short-term flush attempts by outcome.",
		}, []string{"outcome"}),
		VectorOps: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vector_ops_total",
			Help:      "Vector recall/store operations by op and outcome.",
		}, []string{"op", "outcome"}),
		BackgroundJobs: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "background_jobs_total",
			Help:      "Background jobs by name and outcome.",
		}, []string{"job", "outcome"}),
		Degradations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degradations_total",
			Help:      "Silent degradations by component.",
		}, []string{"component"}),
		ContextSliceLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "context_slice_latency_ms",
			Help:      "Latency of each combined-context slice fetch in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}, []string{"slice"}),
	}
}

func (m *Metrics) ObserveClassification(tag string) {
	if m == nil {
		return
	}
	m.Classifications.WithLabelValues(tag).Inc()
}

func (m *Metrics) ObserveFlush(outcome string) {
	if m == nil {
		return
	}
	m.Flushes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveVectorOp(op, outcome string) {
	if m == nil {
		return
	}
	m.VectorOps.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) ObserveJob(job, outcome string) {
	if m == nil {
		return
	}
	m.BackgroundJobs.WithLabelValues(job, outcome).Inc()
}

func (m *Metrics) ObserveDegradation(component string) {
	if m == nil {
		return
	}
	m.Degradations.WithLabelValues(component).Inc()
}

func (m *Metrics) ObserveContextSlice(slice string, d time.Duration) {
	if m == nil {
		return
	}
	m.ContextSliceLatency.WithLabelValues(slice).Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
