// Package metrics exposes Prometheus instruments for the ingest pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gamestats"

// Pipeline holds the ingest instruments on a private registry. All methods
// are safe on a nil *Pipeline.
type Pipeline struct {
	registry *prometheus.Registry

	gamesProcessed         prometheus.Counter
	gamesSkipped           *prometheus.CounterVec
	flushes                *prometheus.CounterVec
	flushDuration          prometheus.Histogram
	accumulatorPositions   prometheus.Gauge
	accumulatorTransitions prometheus.Gauge
}

// NewPipeline registers the pipeline instruments on a fresh registry.
func NewPipeline() *Pipeline {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Pipeline{
		registry: reg,
		gamesProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_processed_total",
			Help:      "Games replayed and folded into the accumulator.",
		}),
		gamesSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_skipped_total",
			Help:      "Games discarded before aggregation, by reason.",
		}, []string{"reason"}),
		flushes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_total",
			Help:      "Accumulator flushes, by result.",
		}, []string{"result"}),
		flushDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_duration_seconds",
			Help:      "Wall time of accumulator flushes.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		accumulatorPositions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "accumulator_positions",
			Help:      "Distinct positions held in the pending accumulator.",
		}),
		accumulatorTransitions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "accumulator_transitions",
			Help:      "Distinct transitions held in the pending accumulator.",
		}),
	}
}

// GameProcessed counts one aggregated game.
func (p *Pipeline) GameProcessed() {
	if p == nil {
		return
	}
	p.gamesProcessed.Inc()
}

// GameSkipped counts one discarded game.
func (p *Pipeline) GameSkipped(reason string) {
	if p == nil {
		return
	}
	p.gamesSkipped.WithLabelValues(reason).Inc()
}

// Flush records a flush outcome and its duration in seconds.
func (p *Pipeline) Flush(ok bool, seconds float64) {
	if p == nil {
		return
	}
	result := "committed"
	if !ok {
		result = "failed"
	}
	p.flushes.WithLabelValues(result).Inc()
	p.flushDuration.Observe(seconds)
}

// Accumulator sets the pending accumulator size gauges.
func (p *Pipeline) Accumulator(positions, transitions int) {
	if p == nil {
		return
	}
	p.accumulatorPositions.Set(float64(positions))
	p.accumulatorTransitions.Set(float64(transitions))
}

// Registry returns the registry the instruments live on.
func (p *Pipeline) Registry() *prometheus.Registry {
	if p == nil {
		return nil
	}
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Pipeline) Handler() http.Handler {
	if p == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
