package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetricsRegistry records protocol activity for both endpoint roles.
type GatewayMetricsRegistry struct {
	transitions *prometheus.CounterVec
	proofs      *prometheus.CounterVec
}

// HTTPMetricsRegistry records status API activity.
type HTTPMetricsRegistry struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	gatewayMetricsOnce sync.Once
	gatewayRegistry    *GatewayMetricsRegistry

	httpMetricsOnce sync.Once
	httpRegistry    *HTTPMetricsRegistry
)

// GatewayMetrics returns the lazily-initialised protocol metrics registry.
func GatewayMetrics() *GatewayMetricsRegistry {
	gatewayMetricsOnce.Do(func() {
		gatewayRegistry = &GatewayMetricsRegistry{
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crossgate",
				Subsystem: "gateway",
				Name:      "transitions_total",
				Help:      "Total protocol state transitions segmented by role, operation, and outcome.",
			}, []string{"role", "op", "outcome"}),
			proofs: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crossgate",
				Subsystem: "gateway",
				Name:      "proofs_total",
				Help:      "Total Merkle proof verifications segmented by kind and outcome.",
			}, []string{"kind", "outcome"}),
		}
		prometheus.MustRegister(gatewayRegistry.transitions, gatewayRegistry.proofs)
	})
	return gatewayRegistry
}

// ObserveTransition records the outcome of a protocol operation.
func (m *GatewayMetricsRegistry) ObserveTransition(role, op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.transitions.WithLabelValues(role, op, outcome).Inc()
}

// ObserveProof records the outcome of a proof verification.
func (m *GatewayMetricsRegistry) ObserveProof(kind string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.proofs.WithLabelValues(kind, outcome).Inc()
}

// HTTPMetrics returns the lazily-initialised status API metrics registry.
func HTTPMetrics() *HTTPMetricsRegistry {
	httpMetricsOnce.Do(func() {
		httpRegistry = &HTTPMetricsRegistry{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crossgate",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total status API requests segmented by route and status code.",
			}, []string{"route", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "crossgate",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for status API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route"}),
		}
		prometheus.MustRegister(httpRegistry.requests, httpRegistry.latency)
	})
	return httpRegistry
}

// ObserveRequest records one handled status API request.
func (m *HTTPMetricsRegistry) ObserveRequest(route, code string, seconds float64) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, code).Inc()
	m.latency.WithLabelValues(route).Observe(seconds)
}
