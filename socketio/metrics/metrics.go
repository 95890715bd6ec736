// Package metrics provides Prometheus instrumentation for the Socket.IO
// layer: connection gauges plus counters for the failure modes that are
// tolerated rather than surfaced to clients (dropped binary accumulators,
// bus publish errors).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SessionsTotal tracks the current number of registered Engine.IO
	// sessions, across all transports.
	SessionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gosio_sessions_total",
		Help: "Current number of registered Engine.IO sessions",
	})

	// NamespaceSocketsTotal tracks the current number of connected
	// Socket.IO namespace sockets.
	NamespaceSocketsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gosio_namespace_sockets_total",
		Help: "Current number of connected Socket.IO namespace sockets",
	})

	// BinaryAccumulatorDropped counts every binary-attachment reassembly
	// abandoned because a text frame arrived mid-accumulation.
	BinaryAccumulatorDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gosio_binary_accumulator_dropped_total",
		Help: "Binary-attachment accumulations abandoned by an out-of-sequence text frame",
	})

	// BusPublishFailures counts GroupBus.GroupSend errors, labeled by bus
	// implementation (memory/redis/nats, or other for any further GroupBus).
	BusPublishFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gosio_bus_publish_failures_total",
		Help: "GroupBus publish failures",
	}, []string{"bus"})
)

func init() {
	prometheus.MustRegister(
		SessionsTotal,
		NamespaceSocketsTotal,
		BinaryAccumulatorDropped,
		BusPublishFailures,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
