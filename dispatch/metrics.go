package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// gaugeHandle wraps the process-wide in-flight-callback gauge so every
// Dispatcher instance reports into the same promauto metric, matching the
// teacher's pattern of labeling a shared gauge rather than constructing one
// per instance.
type gaugeHandle struct {
	gauge prometheus.Gauge
}

var inFlightGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "atstream_dispatch_inflight_callbacks",
	Help: "Number of user event-handler callbacks currently executing across all dispatchers.",
})

func newGaugeHandle() *gaugeHandle {
	return &gaugeHandle{gauge: inFlightGauge}
}

func (g *gaugeHandle) set(n int) {
	g.gauge.Set(float64(n))
}
