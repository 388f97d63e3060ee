// Package metrics exposes Prometheus instruments for estimations and
// refinement sessions.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/copyleftdev/integra/internal/quadrature"
)

const namespace = "integra"

var (
	// EstimatesTotal counts completed estimations by method ("refine" for the
	// tolerance refiner).
	EstimatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "estimates_total",
		Help:      "Completed integral estimations by method.",
	}, []string{"method"})

	// FunctionEvaluations counts integrand evaluations across all estimations.
	FunctionEvaluations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "function_evaluations_total",
		Help:      "Integrand evaluations performed.",
	})

	// RefineRounds observes how many rounds each finished refinement took.
	RefineRounds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "refine_rounds",
		Help:      "Rounds per finished tolerance refinement.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
	})

	// ActiveSessions is the number of refinement sessions not yet finished.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "refine_sessions_active",
		Help:      "Refinement sessions awaiting input or computing.",
	})
)

// Counter wraps a Function and counts its evaluations.
type Counter struct {
	f     quadrature.Function
	calls atomic.Int64
}

// Counting wraps f.
func Counting(f quadrature.Function) *Counter {
	return &Counter{f: f}
}

// Evaluate forwards to the wrapped function.
func (c *Counter) Evaluate(x float64) float64 {
	c.calls.Add(1)
	return c.f.Evaluate(x)
}

// Calls is the number of evaluations so far.
func (c *Counter) Calls() int64 {
	return c.calls.Load()
}

// Flush adds the evaluations since the last flush to FunctionEvaluations.
func (c *Counter) Flush() {
	if n := c.calls.Swap(0); n > 0 {
		FunctionEvaluations.Add(float64(n))
	}
}

// ObserveEstimate records one completed estimation.
func ObserveEstimate(method string) {
	EstimatesTotal.WithLabelValues(method).Inc()
}
