package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iammorganparry/neurograph/internal/consolidate"
)

// Metrics counts trigger invocations and their graph effects.
type Metrics struct {
	triggers *prometheus.CounterVec
	edges    prometheus.Counter
	patterns prometheus.Counter
	sweeps   prometheus.Histogram
}

// NewMetrics registers the service collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		triggers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "neurograph_trigger_total",
			Help: "Trigger invocations by event kind.",
		}, []string{"event"}),
		edges: factory.NewCounter(prometheus.CounterOpts{
			Name: "neurograph_edges_created_total",
			Help: "Edges created or replaced across all triggers.",
		}),
		patterns: factory.NewCounter(prometheus.CounterOpts{
			Name: "neurograph_patterns_created_total",
			Help: "Patterns created across all triggers.",
		}),
		sweeps: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "neurograph_sweep_duration_seconds",
			Help:    "Duration of full consolidation sweeps.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Observe records one trigger invocation's result.
func (m *Metrics) Observe(event string, res consolidate.Result) {
	if m == nil {
		return
	}
	m.triggers.WithLabelValues(event).Inc()
	m.edges.Add(float64(res.EdgesCreated))
	m.patterns.Add(float64(res.PatternsCreated))
}

// ObserveSweep records a full sweep's wall time in seconds.
func (m *Metrics) ObserveSweep(seconds float64) {
	if m == nil {
		return
	}
	m.sweeps.Observe(seconds)
}
