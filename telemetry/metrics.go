package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MetricUnexpectedPanicTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "solbridge",
		Name:      "unexpected_panic_total",
		Help:      "Total number of panics recovered while handling bridge requests.",
	}, []string{"method"})

	MetricBridgeRequestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "solbridge",
		Name:      "bridge_request_total",
		Help:      "Total number of bridge requests received per method.",
	}, []string{"method"})

	MetricBridgeRequestErrorTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "solbridge",
		Name:      "bridge_request_errors_total",
		Help:      "Total number of bridge requests answered with a failure response.",
	}, []string{"method", "error"})

	MetricBridgeRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "solbridge",
		Name:      "bridge_request_duration_seconds",
		Help:      "Duration of bridge requests from body read to response write.",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"method"})

	MetricUpstreamRequestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "solbridge",
		Name:      "upstream_request_total",
		Help:      "Total number of json-rpc requests sent to the node.",
	}, []string{"method"})

	MetricUpstreamErrorTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "solbridge",
		Name:      "upstream_request_errors_total",
		Help:      "Total number of failed json-rpc requests sent to the node.",
	}, []string{"method", "error"})

	MetricCoverageTraceTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "solbridge",
		Name:      "coverage_trace_total",
		Help:      "Total number of execution traces collected for coverage.",
	}, []string{"method", "outcome"})

	MetricCoverageReportTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "solbridge",
		Name:      "coverage_report_total",
		Help:      "Total number of coverage reports written.",
	}, []string{"outcome"})

	MetricLifecycleState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "solbridge",
		Name:      "lifecycle_state",
		Help:      "Set to 1 for the current lifecycle state of the bridge.",
	}, []string{"state"})
)
