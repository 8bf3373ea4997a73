package supervision

import (
	"fmt"
	"math"
	"time"
)

// Scope selects which units a restart or stop applies to.
type Scope int

const (
	// ScopeOne applies to the failed unit only.
	ScopeOne Scope = iota
	// ScopeAll applies to the failed unit and all of its siblings.
	ScopeAll
)

func (s Scope) String() string {
	switch s {
	case ScopeOne:
		return "one"
	case ScopeAll:
		return "all"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

const (
	// ForeverIntensity tolerates any number of failures.
	ForeverIntensity = -1
	// ForeverPeriod never lets failures age out.
	ForeverPeriod = time.Duration(math.MaxInt64)

	DefaultIntensity = 1
	DefaultPeriod    = 5 * time.Second
)

// Strategy allows Intensity failures within Period before escalating.
type Strategy struct {
	intensity int
	period    time.Duration
	scope     Scope
}

func NewStrategy(intensity int, period time.Duration, scope Scope) Strategy {
	return Strategy{intensity: intensity, period: period, scope: scope}
}

func DefaultStrategy() Strategy {
	return NewStrategy(DefaultIntensity, DefaultPeriod, ScopeOne)
}

// ForeverStrategy never escalates.
func ForeverStrategy() Strategy {
	return NewStrategy(ForeverIntensity, ForeverPeriod, ScopeOne)
}

func (s Strategy) Intensity() int        { return s.intensity }
func (s Strategy) Period() time.Duration { return s.period }
func (s Strategy) Scope() Scope          { return s.scope }

func (s Strategy) IsForeverIntensity() bool { return s.intensity == ForeverIntensity }
func (s Strategy) IsForeverPeriod() bool    { return s.period == ForeverPeriod }

func (s Strategy) String() string {
	intensity, period := fmt.Sprint(s.intensity), s.period.String()
	if s.IsForeverIntensity() {
		intensity = "forever"
	}
	if s.IsForeverPeriod() {
		period = "forever"
	}
	return fmt.Sprintf("intensity=%s period=%s scope=%s", intensity, period, s.scope)
}

// failureWindow counts failures of one unit (or sibling group) within a period.
type failureWindow struct {
	count int
	start time.Time
}

// record adds a failure at now and reports whether s is exceeded.
func (w *failureWindow) record(now time.Time, s Strategy) bool {
	if s.IsForeverIntensity() {
		return false
	}
	if s.intensity == 0 {
		return true
	}
	if w.count == 0 || (!s.IsForeverPeriod() && now.Sub(w.start) > s.period) {
		w.count = 0
		w.start = now
	}
	w.count++
	return w.count > s.intensity
}
