// Package prometheus provides Prometheus implementations of the mailbox,
// completes and supervision metrics interfaces.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/dispatch-go/core/metrics"
	"github.com/codewandler/dispatch-go/core/plugin"
)

func newTimer(h prometheus.Observer) metrics.Timer {
	return metrics.NewTimer(func(elapsed time.Duration) {
		h.Observe(elapsed.Seconds())
	})
}

// Default histogram buckets for delivery latency (in seconds).
var defaultBuckets = []float64{
	.00001, .00005, .0001, .0005, .001, .0025, .005, .01, .025, .05, .1, .5, 1,
}

func boolToStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// NewAllMetrics registers every metric family and returns them bundled for
// actor.Options.Metrics.
func NewAllMetrics(reg prometheus.Registerer) plugin.Metrics {
	return plugin.Metrics{
		Mailbox:     NewMailboxMetrics(reg),
		Completes:   NewCompletesMetrics(reg),
		Supervision: NewSupervisionMetrics(reg),
	}
}
