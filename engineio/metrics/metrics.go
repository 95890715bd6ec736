// Package metrics provides Prometheus instrumentation for the Engine.IO
// session layer, kept separate from socketio/metrics so engineio never
// depends on the higher Socket.IO layer for instrumentation.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboundQueueDepth records how many packets were drained from a
// session's outbound queue into a single long-poll GET response.
var OutboundQueueDepth = prometheus.NewHistogram(prometheus.HistogramOpts{
	Name:    "gosio_engineio_outbound_queue_depth",
	Help:    "Number of packets drained from a session's outbound queue per long-poll GET",
	Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64},
})

func init() {
	prometheus.MustRegister(OutboundQueueDepth)
}
