package mailbox

import "github.com/codewandler/dispatch-go/core/metrics"

// Metrics defines the metrics interface for mailboxes and dispatchers.
// All methods are thread-safe.
type Metrics interface {
	// Mailbox
	MessageSent(kind string)
	MessageDropped(kind string)
	MailboxFull(kind string)
	MailboxOverflow(kind string)

	// Dispatcher
	DeliveryDuration(dispatcher string) metrics.Timer
	MessageDelivered(dispatcher string, success bool)
	MailboxDepth(dispatcher string, depth int)
}

type nopMetrics struct{}

func (nopMetrics) MessageSent(string)     {}
func (nopMetrics) MessageDropped(string)  {}
func (nopMetrics) MailboxFull(string)     {}
func (nopMetrics) MailboxOverflow(string) {}

func (nopMetrics) DeliveryDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopMetrics) MessageDelivered(string, bool)         {}
func (nopMetrics) MailboxDepth(string, int)              {}

// NopMetrics returns a no-op Metrics implementation.
func NopMetrics() Metrics { return nopMetrics{} }
