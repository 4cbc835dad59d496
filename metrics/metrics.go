// Package metrics exposes classifier activity as Prometheus metrics on a
// private registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "naivebayes"

// Metrics holds every collector the service reports.
type Metrics struct {
	registry *prometheus.Registry

	TrainSamples    *prometheus.CounterVec   // samples trained, by category
	Classifications *prometheus.CounterVec   // classify results, by winning category
	RequestDuration *prometheus.HistogramVec // HTTP latency, by handler
	Categories      prometheus.Gauge
	Vocabulary      prometheus.Gauge
}

// New builds a registry with the Go and process collectors plus the
// classifier metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: reg}

	m.TrainSamples = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "train_samples_total",
		Help:      "Number of training samples accepted.",
	}, []string{"category"})

	m.Classifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "classifications_total",
		Help:      "Number of classifications, by winning category.",
	}, []string{"category"})

	m.RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"handler"})

	m.Categories = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "categories",
		Help:      "Number of categories with at least one sample.",
	})

	m.Vocabulary = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "vocabulary_size",
		Help:      "Number of distinct features seen in training.",
	})

	reg.MustRegister(m.TrainSamples, m.Classifications, m.RequestDuration, m.Categories, m.Vocabulary)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveModel records the current model size.
func (m *Metrics) ObserveModel(categories, vocabulary int) {
	m.Categories.Set(float64(categories))
	m.Vocabulary.Set(float64(vocabulary))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Instrument wraps next and records its latency under the handler label.
func (m *Metrics) Instrument(handler string, next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerDuration(
		m.RequestDuration.MustCurryWith(prometheus.Labels{"handler": handler}),
		next,
	)
}
