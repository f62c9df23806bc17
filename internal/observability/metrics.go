package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsClient is the metrics-emission surface used by the audit,
// dispatcher, and resilience packages. It intentionally exposes only the
// three shapes Prometheus needs (counter, histogram, gauge) rather than
// leaking client-specific types into call sites.
type MetricsClient interface {
	IncrementCounter(name string, value float64)
	IncrementCounterWithLabels(name string, value float64, labels map[string]string)
	RecordHistogram(name string, value float64, labels map[string]string)
	RecordGauge(name string, value float64, labels map[string]string)
}

// PrometheusMetrics is a MetricsClient backed by a private prometheus
// registry, lazily allocating one vector per metric name so callers
// never need to pre-declare their metrics.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
}

// NewPrometheusMetrics creates a MetricsClient registered against reg.
// Pass nil to use a fresh, private registry.
func NewPrometheusMetrics(reg *prometheus.Registry) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &PrometheusMetrics{
		registry:   reg,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}
}

// Registry exposes the underlying prometheus registry for /metrics wiring.
func (m *PrometheusMetrics) Registry() *prometheus.Registry { return m.registry }

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	return names
}

func (m *PrometheusMetrics) counterFor(name string, labels map[string]string) *prometheus.CounterVec {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.counters[name]; ok {
		return c
	}
	c := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name}, labelNames(labels))
	m.registry.MustRegister(c)
	m.counters[name] = c
	return c
}

func (m *PrometheusMetrics) histogramFor(name string, labels map[string]string) *prometheus.HistogramVec {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.histograms[name]; ok {
		return h
	}
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name}, labelNames(labels))
	m.registry.MustRegister(h)
	m.histograms[name] = h
	return h
}

func (m *PrometheusMetrics) gaugeFor(name string, labels map[string]string) *prometheus.GaugeVec {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.gauges[name]; ok {
		return g
	}
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name}, labelNames(labels))
	m.registry.MustRegister(g)
	m.gauges[name] = g
	return g
}

func (m *PrometheusMetrics) IncrementCounter(name string, value float64) {
	m.counterFor(name, nil).With(prometheus.Labels{}).Add(value)
}

func (m *PrometheusMetrics) IncrementCounterWithLabels(name string, value float64, labels map[string]string) {
	m.counterFor(name, labels).With(labels).Add(value)
}

func (m *PrometheusMetrics) RecordHistogram(name string, value float64, labels map[string]string) {
	m.histogramFor(name, labels).With(labels).Observe(value)
}

func (m *PrometheusMetrics) RecordGauge(name string, value float64, labels map[string]string) {
	m.gaugeFor(name, labels).With(labels).Set(value)
}

// NoopMetrics discards every observation, for callers with no registry
// to report to.
type NoopMetrics struct{}

func (NoopMetrics) IncrementCounter(string, float64)                                {}
func (NoopMetrics) IncrementCounterWithLabels(string, float64, map[string]string)    {}
func (NoopMetrics) RecordHistogram(string, float64, map[string]string)              {}
func (NoopMetrics) RecordGauge(string, float64, map[string]string)                  {}

// NewNoopMetrics returns a MetricsClient that discards all observations.
func NewNoopMetrics() MetricsClient { return NoopMetrics{} }
