package supervision

import (
	"time"

	"github.com/codewandler/dispatch-go/internal/reflector"
)

// Supervised is a unit that can be acted upon by a Supervisor.
type Supervised interface {
	Address() string
	// Protocol names the unit's behavior and selects common supervisors.
	Protocol() string
	// ParentAddress is empty for units without a parent.
	ParentAddress() string
	// Supervisor returns the explicitly assigned supervisor, or nil.
	Supervisor() Supervisor

	Suspend()
	Resume()
	Restart(scope Scope, cause error)
	Stop(scope Scope)
}

type Supervisor interface {
	Name() string
	Strategy() Strategy
	Inform(err error, unit Supervised)
}

// Event describes one supervision decision.
type Event struct {
	Supervisor string
	Unit       string
	Protocol   string
	Directive  Directive
	Err        error
	At         time.Time
}

type Observer interface {
	Observe(ev Event)
}

type ObserverFunc func(ev Event)

func (f ObserverFunc) Observe(ev Event) { f(ev) }

type nopObserver struct{}

func (nopObserver) Observe(Event) {}

// ProtocolFor returns the protocol name of T, suitable for
// Registry.RegisterCommon.
func ProtocolFor[T any]() string { return reflector.NameFor[T]() }
