// Package metrics exposes the prometheus counters/gauges the pipeline
// updates, folding in the observability that original_source/'s ad hoc
// UpstreamHealth atomic-counter struct provided, as a Go-idiomatic
// registry-backed replacement (see DESIGN.md).
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	CircuitBreakerState = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "proxy",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state: 0=closed, 1=half_open, 2=open.",
	})

	RetryAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "proxy",
		Name:      "retry_attempts_total",
		Help:      "Total outbound retry attempts.",
	})

	PathologyTriggers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "proxy",
		Name:      "pathology_triggers_total",
		Help:      "Pathology Guard triggers by kind.",
	}, []string{"kind"})

	SignatureStoreOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "proxy",
		Name:      "signature_store_ops_total",
		Help:      "Signature store operations by kind and outcome.",
	}, []string{"op", "outcome"})
)

func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(CircuitBreakerState, RetryAttempts, PathologyTriggers, SignatureStoreOps)
}

// StateValue maps a breaker state string (see resilience.CircuitBreaker.State)
// to the gauge convention above.
func StateValue(state string) float64 {
	switch state {
	case "half_open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}
