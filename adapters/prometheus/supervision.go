package prometheus

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/dispatch-go/core/completes"
	"github.com/codewandler/dispatch-go/core/supervision"
)

type completesMetrics struct {
	providedTotal  *prometheus.CounterVec
	forwardedTotal *prometheus.CounterVec
}

// NewCompletesMetrics creates a Prometheus implementation of completes.Metrics.
func NewCompletesMetrics(reg prometheus.Registerer) completes.Metrics {
	m := &completesMetrics{
		providedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_completes_provided_total",
			Help: "Total number of pooled completes handed out",
		}, []string{"by_address"}),
		forwardedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_completes_outcomes_forwarded_total",
			Help: "Total number of outcomes forwarded to clients",
		}, []string{"agent", "inline"}),
	}
	reg.MustRegister(m.providedTotal, m.forwardedTotal)
	return m
}

func (m *completesMetrics) CompletesProvided(byAddress bool) {
	m.providedTotal.WithLabelValues(boolToStr(byAddress)).Inc()
}

func (m *completesMetrics) OutcomeForwarded(agent int, inline bool) {
	m.forwardedTotal.WithLabelValues(strconv.Itoa(agent), boolToStr(inline)).Inc()
}

type supervisionMetrics struct {
	failuresTotal   *prometheus.CounterVec
	directivesTotal *prometheus.CounterVec
}

// NewSupervisionMetrics creates a Prometheus implementation of supervision.Metrics.
func NewSupervisionMetrics(reg prometheus.Registerer) supervision.Metrics {
	m := &supervisionMetrics{
		failuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_supervision_failures_total",
			Help: "Total number of failures reported to supervisors",
		}, []string{"supervisor"}),
		directivesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_supervision_directives_total",
			Help: "Total number of supervision directives applied",
		}, []string{"supervisor", "directive"}),
	}
	reg.MustRegister(m.failuresTotal, m.directivesTotal)
	return m
}

func (m *supervisionMetrics) FailureInformed(supervisor string) {
	m.failuresTotal.WithLabelValues(supervisor).Inc()
}

func (m *supervisionMetrics) DirectiveApplied(supervisor string, d supervision.Directive) {
	m.directivesTotal.WithLabelValues(supervisor, d.String()).Inc()
}

var (
	_ completes.Metrics   = (*completesMetrics)(nil)
	_ supervision.Metrics = (*supervisionMetrics)(nil)
)
