// Package metrics provides the instrument interfaces used by the mailbox,
// completes and supervision packages. Backends (Prometheus) live under
// adapters/ and the core never imports them.
package metrics

import "time"

// Timer measures the duration of an operation. Call ObserveDuration when
// the operation completes to record the elapsed time:
//
//	defer m.DeliveryDuration("queue-0").ObserveDuration()
type Timer interface {
	// ObserveDuration records the elapsed time since the timer was created.
	ObserveDuration()
}

// ObserverFunc receives an elapsed duration.
type ObserverFunc func(elapsed time.Duration)

type funcTimer struct {
	start time.Time
	fn    ObserverFunc
}

func (t *funcTimer) ObserveDuration() { t.fn(time.Since(t.start)) }

// NewTimer starts a Timer that reports the elapsed time to fn.
func NewTimer(fn ObserverFunc) Timer {
	if fn == nil {
		return NopTimer()
	}
	return &funcTimer{start: time.Now(), fn: fn}
}

type nopTimer struct{}

func (nopTimer) ObserveDuration() {}

// NopTimer returns a no-op Timer.
func NopTimer() Timer { return nopTimer{} }
