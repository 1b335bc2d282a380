// Package metrics records pipeline measurements. Recorder abstracts the
// backend so tests can swap in a fake; Prometheus is the production
// implementation.
package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder receives pipeline measurements.
type Recorder interface {
	// StageDuration records how long a stage ran, successful or not.
	StageDuration(stage string, d time.Duration)

	// StageFailure counts a failed stage with its error kind.
	StageFailure(stage, kind string)

	// RunFinished counts a run by outcome ("done" or "failed").
	RunFinished(outcome string)

	// Ranking records one LexRank computation.
	Ranking(iterations int, converged bool)

	// RewriteOutput records the word count of a rewritten summary and
	// whether it fell within the requested bounds.
	RewriteOutput(words int, withinBounds bool)
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) StageDuration(string, time.Duration) {}
func (Nop) StageFailure(string, string)         {}
func (Nop) RunFinished(string)                  {}
func (Nop) Ranking(int, bool)                   {}
func (Nop) RewriteOutput(int, bool)             {}

// Prometheus implements Recorder with Prometheus collectors registered on
// the default registry.
type Prometheus struct {
	stageDuration *prometheus.HistogramVec
	stageFailures *prometheus.CounterVec
	runs          *prometheus.CounterVec
	iterations    prometheus.Histogram
	notConverged  prometheus.Counter
	outputWords   prometheus.Histogram
	outOfBounds   prometheus.Counter
}

var (
	promInstance *Prometheus
	promOnce     sync.Once
)

// register adds c to the default registry, returning the collector that
// is already registered under the same descriptor if there is one.
func register[T prometheus.Collector](c T) T {
	if err := prometheus.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

// NewPrometheus returns the process-wide Prometheus recorder, creating and
// registering its collectors on first use.
func NewPrometheus() *Prometheus {
	promOnce.Do(func() {
		promInstance = &Prometheus{
			stageDuration: register(prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "distill_stage_duration_seconds",
				Help:    "Duration of each pipeline stage",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			}, []string{"stage"})),
			stageFailures: register(prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "distill_stage_failures_total",
				Help: "Pipeline stage failures by stage and error kind",
			}, []string{"stage", "kind"})),
			runs: register(prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "distill_runs_total",
				Help: "Pipeline runs by outcome",
			}, []string{"outcome"})),
			iterations: register(prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "distill_lexrank_iterations",
				Help:    "Power iterations per LexRank computation",
				Buckets: []float64{1, 5, 10, 20, 40, 60, 80, 100},
			})),
			notConverged: register(prometheus.NewCounter(prometheus.CounterOpts{
				Name: "distill_lexrank_not_converged_total",
				Help: "LexRank computations that stopped at the iteration cap",
			})),
			outputWords: register(prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "distill_rewrite_output_words",
				Help:    "Word count of rewritten summaries",
				Buckets: []float64{10, 30, 50, 80, 100, 150, 200, 300, 500},
			})),
			outOfBounds: register(prometheus.NewCounter(prometheus.CounterOpts{
				Name: "distill_rewrite_out_of_bounds_total",
				Help: "Rewritten summaries outside the requested length bounds",
			})),
		}
	})
	return promInstance
}

func (p *Prometheus) StageDuration(stage string, d time.Duration) {
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *Prometheus) StageFailure(stage, kind string) {
	p.stageFailures.WithLabelValues(stage, kind).Inc()
}

func (p *Prometheus) RunFinished(outcome string) {
	p.runs.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) Ranking(iterations int, converged bool) {
	p.iterations.Observe(float64(iterations))
	if !converged {
		p.notConverged.Inc()
	}
}

func (p *Prometheus) RewriteOutput(words int, withinBounds bool) {
	p.outputWords.Observe(float64(words))
	if !withinBounds {
		p.outOfBounds.Inc()
	}
}
