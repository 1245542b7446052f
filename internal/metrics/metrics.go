// Package metrics exposes solver progress as Prometheus collectors.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/cfrsolve/sdk/solver"
)

const namespace = "cfrsolve"

var statuses = []solver.Status{
	solver.StatusIdle,
	solver.StatusRunning,
	solver.StatusExhausted,
	solver.StatusConverged,
	solver.StatusCancelled,
	solver.StatusFailed,
}

// Solver records driver progress for one solve.
type Solver struct {
	registry *prometheus.Registry

	iterations     prometheus.Counter
	infoSets       prometheus.Gauge
	exploitability prometheus.Gauge
	nodes          *prometheus.GaugeVec
	maxDepth       prometheus.Gauge
	iterationTime  prometheus.Histogram
	status         *prometheus.GaugeVec

	mu   sync.Mutex
	last int
}

// New registers the solver collectors on a fresh registry labelled with the
// game and run identifier.
func New(gameName, runID string) *Solver {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"game": gameName, "run_id": runID}
	f := promauto.With(prometheus.WrapRegistererWith(labels, reg))

	return &Solver{
		registry: reg,
		iterations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "iterations_total",
			Help:      "Completed CFR iterations",
		}),
		infoSets: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "infosets",
			Help:      "Information sets discovered so far",
		}),
		exploitability: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "exploitability",
			Help:      "Latest exploitability of the average strategy",
		}),
		nodes: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "iteration_nodes",
			Help:      "Nodes visited by the latest iteration, by kind",
		}, []string{"kind"}),
		maxDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "max_depth",
			Help:      "Deepest history reached by the latest iteration",
		}),
		iterationTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "iteration_seconds",
			Help:      "Wall-clock time of sampled iterations",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),
		status: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "status",
			Help:      "One for the driver's current status",
		}, []string{"status"}),
	}
}

// SetStart sets the iteration the solve starts from, so a resumed run only
// counts the iterations it performs itself.
func (s *Solver) SetStart(iteration int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = iteration
}

// Observe records a progress report. Reports must arrive in iteration order.
func (s *Solver) Observe(p solver.Progress) {
	s.mu.Lock()
	if delta := p.Iteration - s.last; delta > 0 {
		s.iterations.Add(float64(delta))
	}
	s.last = p.Iteration
	s.mu.Unlock()

	s.infoSets.Set(float64(p.InfoSets))
	if p.Evaluated {
		s.exploitability.Set(p.Exploitability)
	}
	s.nodes.WithLabelValues("total").Set(float64(p.Stats.NodesVisited))
	s.nodes.WithLabelValues("terminal").Set(float64(p.Stats.TerminalNodes))
	s.nodes.WithLabelValues("chance").Set(float64(p.Stats.ChanceNodes))
	s.nodes.WithLabelValues("decision").Set(float64(p.Stats.DecisionNodes))
	s.maxDepth.Set(float64(p.Stats.MaxDepth))
	if p.Stats.IterationTime > 0 {
		s.iterationTime.Observe(p.Stats.IterationTime.Seconds())
	}
	s.SetStatus(p.Status)
}

// SetStatus marks st as the current status.
func (s *Solver) SetStatus(st solver.Status) {
	for _, candidate := range statuses {
		v := 0.0
		if candidate == st {
			v = 1
		}
		s.status.WithLabelValues(candidate.String()).Set(v)
	}
}

// Registry returns the registry holding the collectors.
func (s *Solver) Registry() *prometheus.Registry {
	return s.registry
}

// Handler serves the collectors in the Prometheus exposition format.
func (s *Solver) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}
