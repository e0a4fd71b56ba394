package telemetry

import "github.com/prometheus/client_golang/prometheus"

var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "gateway",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	},
	[]string{"method", "route", "status"},
)

var RPCToolCallsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "rpc",
		Name:      "tool_calls_total",
		Help:      "Total number of MCP tool invocations by tool name and outcome.",
	},
	[]string{"tool", "outcome"},
)

var AuditDecisionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "audit",
		Name:      "decisions_total",
		Help:      "Total number of write_audit rows finalized, by action and reason.",
	},
	[]string{"action", "reason"},
)

var OutboxDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "gateway",
		Subsystem: "outbox",
		Name:      "pending_depth",
		Help:      "Number of outbox rows observed pending at last worker tick.",
	},
)

var OutboxProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "outbox",
		Name:      "processed_total",
		Help:      "Total outbox rows processed by the worker, by outcome.",
	},
	[]string{"outcome"}, // sent, retry, dead, error
)

var OutboxProcessDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "gateway",
		Subsystem: "outbox",
		Name:      "process_duration_seconds",
		Help:      "Time spent processing a single outbox row end to end.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
)

var OpenMemoryCallsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "openmemory",
		Name:      "calls_total",
		Help:      "Total calls to OpenMemory by operation and outcome.",
	},
	[]string{"operation", "outcome"},
)

// All returns every Gateway-specific metric for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestDuration,
		RPCToolCallsTotal,
		AuditDecisionsTotal,
		OutboxDepth,
		OutboxProcessedTotal,
		OutboxProcessDuration,
		OpenMemoryCallsTotal,
	}
}
