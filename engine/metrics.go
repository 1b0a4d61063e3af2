package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metricSet mirrors the promauto counters in the teacher's events/metrics.go:
// process-wide vars registered once at package init, incremented by every
// Engine instance.
type metricSet struct {
	framesReceived prometheus.Counter
	bytesReceived  prometheus.Counter
	reconnects     prometheus.Counter
}

var metrics = newMetricSet()

func newMetricSet() *metricSet {
	return &metricSet{
		framesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "atstream_engine_frames_received_total",
			Help: "Number of inbound WebSocket frames received across all engine instances.",
		}),
		bytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "atstream_engine_bytes_received_total",
			Help: "Number of inbound WebSocket payload bytes received across all engine instances.",
		}),
		reconnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "atstream_engine_reconnects_total",
			Help: "Number of times an engine instance left the Connected state and rescheduled a reconnect.",
		}),
	}
}
