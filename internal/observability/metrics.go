package observability

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors shared across MXF components.
// Mirrors the teacher's per-subsystem collector grouping
// (internal/channels/metrics.go, internal/canvas/metrics.go).
type Metrics struct {
	BusEventsEmitted     *prometheus.CounterVec
	BusEventsDropped     *prometheus.CounterVec
	OrparIterations      *prometheus.HistogramVec
	OrparCircuitBreaks   *prometheus.CounterVec
	ToolDispatches       *prometheus.CounterVec
	ToolDispatchDuration *prometheus.HistogramVec
	SandboxExecutions    *prometheus.CounterVec
	SandboxDuration      *prometheus.HistogramVec
}

// NewMetrics registers and returns the shared metric set against reg. If
// reg is nil, the default Prometheus registry is used.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		BusEventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mxf",
			Subsystem: "bus",
			Name:      "events_emitted_total",
			Help:      "Events emitted on the event bus by topic.",
		}, []string{"topic"}),
		BusEventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mxf",
			Subsystem: "bus",
			Name:      "events_dropped_total",
			Help:      "Events dropped due to backpressure by topic.",
		}, []string{"topic"}),
		OrparIterations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mxf",
			Subsystem: "orpar",
			Name:      "iterations",
			Help:      "Number of ORPAR iterations per turn.",
			Buckets:   prometheus.LinearBuckets(1, 1, 12),
		}, []string{"agent_id"}),
		OrparCircuitBreaks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mxf",
			Subsystem: "orpar",
			Name:      "circuit_breaks_total",
			Help:      "Times the loop-detection circuit breaker tripped.",
		}, []string{"agent_id", "tool"}),
		ToolDispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mxf",
			Subsystem: "tools",
			Name:      "dispatches_total",
			Help:      "Tool dispatch outcomes by tool name and result.",
		}, []string{"tool", "result"}),
		ToolDispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mxf",
			Subsystem: "tools",
			Name:      "dispatch_duration_seconds",
			Help:      "Tool dispatch latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		SandboxExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mxf",
			Subsystem: "sandbox",
			Name:      "executions_total",
			Help:      "Code executions by language and outcome.",
		}, []string{"language", "result"}),
		SandboxDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mxf",
			Subsystem: "sandbox",
			Name:      "execution_duration_seconds",
			Help:      "Code execution duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"language"}),
	}

	for _, c := range []prometheus.Collector{
		m.BusEventsEmitted, m.BusEventsDropped, m.OrparIterations,
		m.OrparCircuitBreaks, m.ToolDispatches, m.ToolDispatchDuration,
		m.SandboxExecutions, m.SandboxDuration,
	} {
		_ = reg.Register(c)
	}

	return m
}
