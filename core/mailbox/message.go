package mailbox

import (
	"runtime/debug"
	"strings"
)

const lifecyclePrefix = "__"

// Target is the receiver of a Message, usually an actor.
type Target interface {
	Address() string
}

// Message is one queued invocation of a target's behavior.
type Message interface {
	Target() Target
	// Deliver runs the behavior. Panics are recovered and returned as *PanicError.
	Deliver() error
	// Representation is a human readable form of the invocation, e.g. "deposit(10)".
	Representation() string
}

type envelope struct {
	target   Target
	repr     string
	behavior func() error
}

// NewMessage wraps behavior for delivery to target.
func NewMessage(target Target, repr string, behavior func() error) Message {
	return &envelope{target: target, repr: repr, behavior: behavior}
}

func (e *envelope) Target() Target         { return e.target }
func (e *envelope) Representation() string { return e.repr }
func (e *envelope) String() string         { return e.repr }

func (e *envelope) Deliver() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Recovered: r, Stack: debug.Stack()}
		}
	}()
	if e.behavior == nil {
		return nil
	}
	return e.behavior()
}

// IsLifecycle reports whether repr names a runtime lifecycle message.
// Lifecycle messages are delivered even to stopped targets.
func IsLifecycle(repr string) bool {
	return strings.HasPrefix(repr, lifecyclePrefix)
}

// LifecycleRepresentation builds the representation of a lifecycle message.
func LifecycleRepresentation(name string) string {
	return lifecyclePrefix + name
}
