// Package metrics defines the prometheus collectors of the field location
// solver and the mesh field range cache.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dgfield"

// Search outcomes, the label values of Searches
const (
	ResultExact   = "exact"
	ResultNearest = "nearest"
	ResultNone    = "none"
)

// Metrics holds the collectors. Create with New and attach with Register;
// unregistered collectors still count.
type Metrics struct {
	SolverInvocations   prometheus.Counter
	SolverConvergences  prometheus.Counter
	SolverIterations    prometheus.Histogram
	ElementsPruned      prometheus.Counter
	Searches            *prometheus.CounterVec
	RangeEvaluations    prometheus.Counter
	RangeEvaluationTime prometheus.Histogram
	RangeInvalidations  *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		SolverInvocations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "invocations_total",
			Help:      "Number of per-element iterative solves.",
		}),
		SolverConvergences: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "convergences_total",
			Help:      "Number of per-element solves that converged.",
		}),
		SolverIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "iterations",
			Help:      "Newton iterations per element solve.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34, 50},
		}),
		ElementsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "elements_pruned_total",
			Help:      "Elements skipped because their field range excludes the target.",
		}),
		Searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "total",
			Help:      "Find element xi searches by result.",
		}, []string{"result"}),
		RangeEvaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ranges",
			Name:      "evaluations_total",
			Help:      "Full evaluations of a mesh field range cache.",
		}),
		RangeEvaluationTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ranges",
			Name:      "evaluation_seconds",
			Help:      "Duration of mesh field range evaluations.",
			Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 10),
		}),
		RangeInvalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ranges",
			Name:      "invalidations_total",
			Help:      "Mesh field range invalidations by cause.",
		}, []string{"cause"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.SolverInvocations,
		m.SolverConvergences,
		m.SolverIterations,
		m.ElementsPruned,
		m.Searches,
		m.RangeEvaluations,
		m.RangeEvaluationTime,
		m.RangeInvalidations,
	}
}

// Register attaches every collector to r, prometheus.DefaultRegisterer if nil
func (m *Metrics) Register(r prometheus.Registerer) error {
	if r == nil {
		r = prometheus.DefaultRegisterer
	}
	for _, c := range m.collectors() {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the process wide metrics, used when callers pass nil
func Default() *Metrics {
	defaultOnce.Do(func() { defaultMetrics = New() })
	return defaultMetrics
}

// Or returns m, or Default() when m is nil
func Or(m *Metrics) *Metrics {
	if m == nil {
		return Default()
	}
	return m
}
