package completes

// Metrics defines the metrics interface for the completes pool.
type Metrics interface {
	CompletesProvided(byAddress bool)
	OutcomeForwarded(agent int, inline bool)
}

type nopMetrics struct{}

func (nopMetrics) CompletesProvided(bool)     {}
func (nopMetrics) OutcomeForwarded(int, bool) {}

// NopMetrics returns a no-op Metrics implementation.
func NopMetrics() Metrics { return nopMetrics{} }
