// Package metrics exports engine metrics to Prometheus. Metrics implements the
// observer interfaces of data.Provider, scoring.Runner and brain.Orchestrator,
// and follows breaker transitions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wonny/zion/internal/resilience"
)

const namespace = "zion"

// Metrics holds every collector of the engine
type Metrics struct {
	registry *prometheus.Registry

	// FetchTotal counts source attempts. Labels: source, kind, outcome
	FetchTotal *prometheus.CounterVec
	// FetchDuration measures source latency. Labels: source, kind
	FetchDuration *prometheus.HistogramVec

	// UnitTotal counts unit invocations. Labels: unit, category, outcome
	UnitTotal *prometheus.CounterVec
	// UnitDuration measures unit latency. Labels: unit, category
	UnitDuration *prometheus.HistogramVec

	// CategoryTotal counts category executions. Labels: category, outcome
	CategoryTotal *prometheus.CounterVec
	// CategoryAttempts counts category attempts including retries. Labels: category
	CategoryAttempts *prometheus.CounterVec

	// AnalysisTotal counts finished analyses. Labels: verdict, cached
	AnalysisTotal *prometheus.CounterVec
	// AnalysisDuration measures Run latency. Labels: cached
	AnalysisDuration *prometheus.HistogramVec

	// BreakerState is 0 closed, 1 open, 2 half-open. Labels: source
	BreakerState *prometheus.GaugeVec
	// BreakerTransitions counts state changes. Labels: source, from, to
	BreakerTransitions *prometheus.CounterVec
}

// New registers the engine collectors (plus Go and process collectors) on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry registers the engine collectors on reg
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		FetchTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "data",
			Name:      "fetch_total",
			Help:      "Data source attempts by outcome",
		}, []string{"source", "kind", "outcome"}),
		FetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "data",
			Name:      "fetch_duration_seconds",
			Help:      "Data source latency including retries",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source", "kind"}),

		UnitTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "unit",
			Name:      "invocations_total",
			Help:      "Scoring unit invocations by outcome",
		}, []string{"unit", "category", "outcome"}),
		UnitDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "unit",
			Name:      "duration_seconds",
			Help:      "Scoring unit latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"unit", "category"}),

		CategoryTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "category",
			Name:      "executions_total",
			Help:      "Category executions by outcome",
		}, []string{"category", "outcome"}),
		CategoryAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "category",
			Name:      "attempts_total",
			Help:      "Category attempts including retries",
		}, []string{"category"}),

		AnalysisTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "runs_total",
			Help:      "Finished analyses by verdict",
		}, []string{"verdict", "cached"}),
		AnalysisDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "duration_seconds",
			Help:      "Analysis latency",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"cached"}),

		BreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		}, []string{"source"}),
		BreakerTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "transitions_total",
			Help:      "Circuit breaker state transitions",
		}, []string{"source", "from", "to"}),
	}
}

// ObserveFetch implements data.Observer
func (m *Metrics) ObserveFetch(source, kind, outcome string, d time.Duration) {
	m.FetchTotal.WithLabelValues(source, kind, outcome).Inc()
	if d > 0 {
		m.FetchDuration.WithLabelValues(source, kind).Observe(d.Seconds())
	}
}

// ObserveUnit implements scoring.Observer
func (m *Metrics) ObserveUnit(unit, category, outcome string, d time.Duration) {
	m.UnitTotal.WithLabelValues(unit, category, outcome).Inc()
	m.UnitDuration.WithLabelValues(unit, category).Observe(d.Seconds())
}

// ObserveCategory implements brain.Observer
func (m *Metrics) ObserveCategory(category, outcome string, attempts int, _ time.Duration) {
	m.CategoryTotal.WithLabelValues(category, outcome).Inc()
	if attempts > 0 {
		m.CategoryAttempts.WithLabelValues(category).Add(float64(attempts))
	}
}

// ObserveAnalysis implements brain.Observer
func (m *Metrics) ObserveAnalysis(verdict string, cached bool, d time.Duration) {
	c := "false"
	if cached {
		c = "true"
	}
	m.AnalysisTotal.WithLabelValues(verdict, c).Inc()
	m.AnalysisDuration.WithLabelValues(c).Observe(d.Seconds())
}

// BreakerStateChanged is installed as the breaker registry's transition hook
func (m *Metrics) BreakerStateChanged(source string, from, to resilience.State) {
	m.BreakerState.WithLabelValues(source).Set(float64(to))
	m.BreakerTransitions.WithLabelValues(source, from.String(), to.String()).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
