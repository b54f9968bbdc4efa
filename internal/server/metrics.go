package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joseph-ayodele/farm-advisor/constants"
)

// Metrics owns the advisor's Prometheus registry. It implements processor.Observer.
type Metrics struct {
	registry   *prometheus.Registry
	inferences *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	capability *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		inferences: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "advisor_inference_total",
			Help: "Finished inferences by kind and outcome.",
		}, []string{"kind", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "advisor_inference_duration_seconds",
			Help:    "Inference latency by kind.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"}),
		capability: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "advisor_capability_available",
			Help: "1 when the named model capability loaded, 0 otherwise.",
		}, []string{"capability"}),
	}
	m.registry.MustRegister(
		m.inferences,
		m.duration,
		m.capability,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveInference(kind constants.InferenceKind, outcome string, elapsed time.Duration) {
	k := string(kind)
	m.inferences.WithLabelValues(k, outcome).Inc()
	m.duration.WithLabelValues(k).Observe(elapsed.Seconds())
}

func (m *Metrics) SetCapability(name string, available bool) {
	v := 0.0
	if available {
		v = 1
	}
	m.capability.WithLabelValues(name).Set(v)
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
