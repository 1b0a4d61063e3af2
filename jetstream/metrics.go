package jetstream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metricSet mirrors firehose/metrics.go's pattern, following
// events/metrics.go's package-level promauto var convention.
type metricSet struct {
	eventsDispatched prometheus.Counter
	framesDropped    *prometheus.CounterVec
}

var metrics = newMetricSet()

func newMetricSet() *metricSet {
	return &metricSet{
		eventsDispatched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "atstream_jetstream_events_dispatched_total",
			Help: "Number of Jetstream events handed to the dispatcher.",
		}),
		framesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "atstream_jetstream_frames_dropped_total",
			Help: "Number of Jetstream frames dropped without dispatch, by reason.",
		}, []string{"reason"}),
	}
}

const (
	dropReasonDecompress = "decompress_error"
	dropReasonParse      = "parse_error"
)
