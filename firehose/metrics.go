package firehose

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metricSet mirrors engine/metrics.go's pattern: process-wide promauto vars
// shared by every Stream instance, following events/metrics.go.
type metricSet struct {
	eventsDispatched prometheus.Counter
	framesDropped    *prometheus.CounterVec
}

var metrics = newMetricSet()

func newMetricSet() *metricSet {
	return &metricSet{
		eventsDispatched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "atstream_firehose_events_dispatched_total",
			Help: "Number of Firehose events handed to the dispatcher.",
		}),
		framesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "atstream_firehose_frames_dropped_total",
			Help: "Number of Firehose frames dropped without dispatch, by reason.",
		}, []string{"reason"}),
	}
}

const (
	dropReasonDecode     = "decode_error"
	dropReasonErrorOp    = "error_op"
	dropReasonUnknownTag = "unknown_tag"
	dropReasonOutOfOrder = "out_of_order_seq"
	dropReasonNonBinary  = "non_binary_frame"
)
