package tap

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metricSet mirrors firehose/metrics.go and jetstream/metrics.go's pattern,
// following events/metrics.go's package-level promauto var convention.
type metricSet struct {
	eventsDispatched prometheus.Counter
	acksSent         prometheus.Counter
	framesDropped    *prometheus.CounterVec
}

var metrics = newMetricSet()

func newMetricSet() *metricSet {
	return &metricSet{
		eventsDispatched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "atstream_tap_events_dispatched_total",
			Help: "Number of Tap events handed to the dispatcher.",
		}),
		acksSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "atstream_tap_acks_sent_total",
			Help: "Number of Tap ack frames emitted.",
		}),
		framesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "atstream_tap_frames_dropped_total",
			Help: "Number of Tap frames dropped without dispatch, by reason.",
		}, []string{"reason"}),
	}
}

const dropReasonDecode = "decode_error"
