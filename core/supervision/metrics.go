package supervision

// Metrics defines the metrics interface for supervisors.
type Metrics interface {
	FailureInformed(supervisor string)
	DirectiveApplied(supervisor string, directive Directive)
}

type nopMetrics struct{}

func (nopMetrics) FailureInformed(string)             {}
func (nopMetrics) DirectiveApplied(string, Directive) {}

// NopMetrics returns a no-op Metrics implementation.
func NopMetrics() Metrics { return nopMetrics{} }
