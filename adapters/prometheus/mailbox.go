package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/dispatch-go/core/mailbox"
	"github.com/codewandler/dispatch-go/core/metrics"
)

type mailboxMetrics struct {
	sentTotal        *prometheus.CounterVec
	droppedTotal     *prometheus.CounterVec
	fullTotal        *prometheus.CounterVec
	overflowTotal    *prometheus.CounterVec
	deliveryDuration *prometheus.HistogramVec
	deliveredTotal   *prometheus.CounterVec
	depth            *prometheus.GaugeVec
}

// NewMailboxMetrics creates a Prometheus implementation of mailbox.Metrics.
func NewMailboxMetrics(reg prometheus.Registerer) mailbox.Metrics {
	m := &mailboxMetrics{
		sentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_mailbox_messages_sent_total",
			Help: "Total number of messages accepted by mailboxes",
		}, []string{"kind"}),

		droppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_mailbox_messages_dropped_total",
			Help: "Total number of messages dropped by closed mailboxes",
		}, []string{"kind"}),

		fullTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_mailbox_full_total",
			Help: "Total number of sends rejected because a bounded mailbox was full",
		}, []string{"kind"}),

		overflowTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_mailbox_overflow_total",
			Help: "Total number of messages buffered in ring overflow",
		}, []string{"kind"}),

		deliveryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dispatch_dispatcher_delivery_duration_seconds",
			Help:    "Message delivery time in seconds",
			Buckets: defaultBuckets,
		}, []string{"dispatcher"}),

		deliveredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_dispatcher_messages_delivered_total",
			Help: "Total number of messages delivered",
		}, []string{"dispatcher", "success"}),

		depth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dispatch_dispatcher_mailbox_depth",
			Help: "Pending messages after the last delivery batch",
		}, []string{"dispatcher"}),
	}

	reg.MustRegister(
		m.sentTotal,
		m.droppedTotal,
		m.fullTotal,
		m.overflowTotal,
		m.deliveryDuration,
		m.deliveredTotal,
		m.depth,
	)
	return m
}

func (m *mailboxMetrics) MessageSent(kind string)     { m.sentTotal.WithLabelValues(kind).Inc() }
func (m *mailboxMetrics) MessageDropped(kind string)  { m.droppedTotal.WithLabelValues(kind).Inc() }
func (m *mailboxMetrics) MailboxFull(kind string)     { m.fullTotal.WithLabelValues(kind).Inc() }
func (m *mailboxMetrics) MailboxOverflow(kind string) { m.overflowTotal.WithLabelValues(kind).Inc() }

func (m *mailboxMetrics) DeliveryDuration(dispatcher string) metrics.Timer {
	return newTimer(m.deliveryDuration.WithLabelValues(dispatcher))
}

func (m *mailboxMetrics) MessageDelivered(dispatcher string, success bool) {
	m.deliveredTotal.WithLabelValues(dispatcher, boolToStr(success)).Inc()
}

func (m *mailboxMetrics) MailboxDepth(dispatcher string, depth int) {
	m.depth.WithLabelValues(dispatcher).Set(float64(depth))
}

var _ mailbox.Metrics = (*mailboxMetrics)(nil)
