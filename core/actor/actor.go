package actor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/codewandler/dispatch-go/core/completes"
	"github.com/codewandler/dispatch-go/core/mailbox"
	"github.com/codewandler/dispatch-go/core/supervision"
)

var ErrActorStopped = errors.New("actor stopped")

type State int32

const (
	StateRunning State = iota
	StateSuspended
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Hooks run on the actor's own worker, except when a directive is applied
// directly to an actor from outside its worker.
type Hooks struct {
	BeforeRestart func(cause error)
	AfterRestart  func(cause error)
	AfterStop     func()
}

var stopRepr = mailbox.LifecycleRepresentation("stop()")

type Actor struct {
	stage    *Stage
	address  string
	protocol string
	hash     int
	log      *slog.Logger

	mailbox  mailbox.Mailbox
	provider mailbox.Provider

	parent          *Actor
	supervisor      supervision.Supervisor
	childSupervisor supervision.Supervisor
	hooks           Hooks

	state    atomic.Int32
	restarts atomic.Int64

	mu       sync.Mutex
	children []*Actor
	stashed  []mailbox.Message
	draining bool
}

func (a *Actor) Address() string  { return a.address }
func (a *Actor) Protocol() string { return a.protocol }
func (a *Actor) HashCode() int    { return a.hash }
func (a *Actor) State() State     { return State(a.state.Load()) }
func (a *Actor) IsStopped() bool  { return a.State() == StateStopped }
func (a *Actor) Parent() *Actor   { return a.parent }
func (a *Actor) Restarts() int64  { return a.restarts.Load() }

func (a *Actor) ParentAddress() string {
	if a.parent == nil {
		return ""
	}
	return a.parent.address
}

// Supervisor returns the explicit supervisor, else the nearest ancestor's
// child supervisor, else nil.
func (a *Actor) Supervisor() supervision.Supervisor {
	if a.supervisor != nil {
		return a.supervisor
	}
	for p := a.parent; p != nil; p = p.parent {
		if p.childSupervisor != nil {
			return p.childSupervisor
		}
	}
	return nil
}

func (a *Actor) Children() []*Actor {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Actor, len(a.children))
	copy(out, a.children)
	return out
}

func (a *Actor) addChild(c *Actor) {
	a.mu.Lock()
	a.children = append(a.children, c)
	a.mu.Unlock()
}

func (a *Actor) removeChild(c *Actor) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, child := range a.children {
		if child == c {
			a.children = append(a.children[:i], a.children[i+1:]...)
			return
		}
	}
}

// Tell enqueues behavior. Messages to a stopped actor become dead letters
// and Tell returns nil; the only error is a full bounded mailbox.
func (a *Actor) Tell(repr string, behavior func() error) error {
	if a.IsStopped() && !mailbox.IsLifecycle(repr) {
		a.stage.deadLetter(a.address, repr, ReasonStopped)
		return nil
	}

	var msg mailbox.Message
	msg = mailbox.NewMessage(a, repr, func() error {
		if !mailbox.IsLifecycle(repr) {
			switch a.State() {
			case StateStopped:
				a.stage.deadLetter(a.address, repr, ReasonStopped)
				return nil
			case StateSuspended:
				a.stash(msg)
				return nil
			}
		}
		return behavior()
	})
	return a.mailbox.Send(msg)
}

// Ask enqueues fn and completes the returned future with its result. When
// fn fails the error goes to the supervisor and the future stays pending,
// so callers should await with a deadline.
func (a *Actor) Ask(repr string, fn func() (any, error)) *completes.Future {
	future := completes.NewFuture()
	if a.IsStopped() {
		future.With(fmt.Errorf("%w: %s", ErrActorStopped, a.address))
		return future
	}
	pc, err := a.stage.CompletesFor(future)
	if err != nil {
		future.With(err)
		return future
	}
	err = a.Tell(repr, func() error {
		out, err := fn()
		if err != nil {
			return err
		}
		pc.With(out)
		return nil
	})
	if err != nil {
		future.With(err)
	}
	return future
}

// Ask is the typed form of Actor.Ask that also awaits the result.
func Ask[T any](ctx context.Context, a *Actor, repr string, fn func() (T, error)) (T, error) {
	f := a.Ask(repr, func() (any, error) { return fn() })
	return completes.AwaitAs[T](ctx, f)
}

// RequestStop stops the actor after the messages already queued.
func (a *Actor) RequestStop() error {
	return a.Tell(stopRepr, func() error {
		a.stop()
		return nil
	})
}

func (a *Actor) stash(msg mailbox.Message) {
	a.mu.Lock()
	a.stashed = append(a.stashed, msg)
	a.mu.Unlock()
}

// drainStash delivers stashed messages in arrival order on the calling
// worker. It stops early when a delivery suspends or stops the actor, leaving
// the rest stashed.
func (a *Actor) drainStash() {
	a.mu.Lock()
	if a.draining {
		a.mu.Unlock()
		return
	}
	a.draining = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.draining = false
		a.mu.Unlock()
	}()

	for {
		a.mu.Lock()
		if len(a.stashed) == 0 || a.State() != StateRunning {
			a.mu.Unlock()
			return
		}
		msg := a.stashed[0]
		a.stashed = a.stashed[1:]
		a.mu.Unlock()

		if err := msg.Deliver(); err != nil {
			a.stage.handleFailure(msg, &mailbox.DeliveryError{Message: msg, Err: err})
		}
	}
}

// onOwnWorker runs fn as a lifecycle message so it is serialized with the
// actor's behaviors. If the mailbox refuses it, fn runs on the caller.
func (a *Actor) onOwnWorker(name string, fn func()) {
	err := a.Tell(mailbox.LifecycleRepresentation(name), func() error {
		fn()
		return nil
	})
	if err != nil {
		a.log.Warn("lifecycle message refused, applying inline", slog.String("lifecycle", name), slog.Any("error", err))
		fn()
	}
}

// ---- supervision.Supervised ----

func (a *Actor) Suspend() {
	a.state.CompareAndSwap(int32(StateRunning), int32(StateSuspended))
}

// Resume takes effect on the actor's worker: messages delivered before it are
// stashed and replayed ahead of anything sent after it.
func (a *Actor) Resume() {
	if a.State() != StateSuspended {
		return
	}
	a.onOwnWorker("resume()", func() {
		if a.state.CompareAndSwap(int32(StateSuspended), int32(StateRunning)) {
			a.drainStash()
		}
	})
}

// Restart applies to a inline. Under ScopeAll the siblings restart on their
// own workers.
func (a *Actor) Restart(scope supervision.Scope, cause error) {
	for _, t := range a.inScope(scope) {
		if t == a {
			t.restart(cause)
			continue
		}
		t.onOwnWorker("restart()", func() { t.restart(cause) })
	}
}

func (a *Actor) Stop(scope supervision.Scope) {
	for _, t := range a.inScope(scope) {
		if t == a {
			t.stop()
			continue
		}
		t.stopRemote()
	}
}

func (a *Actor) inScope(scope supervision.Scope) []*Actor {
	if scope == supervision.ScopeAll && a.parent != nil {
		return a.parent.Children()
	}
	return []*Actor{a}
}

func (a *Actor) restart(cause error) {
	if a.IsStopped() {
		return
	}
	a.runHook("before-restart", func() {
		if a.hooks.BeforeRestart != nil {
			a.hooks.BeforeRestart(cause)
		}
	})
	a.restarts.Add(1)
	a.runHook("after-restart", func() {
		if a.hooks.AfterRestart != nil {
			a.hooks.AfterRestart(cause)
		}
	})
	a.state.Store(int32(StateRunning))
	a.log.Debug("actor restarted", slog.Int64("restarts", a.restarts.Load()))
	a.drainStash()
}

func (a *Actor) stop() {
	if a.markStopped() {
		a.finishStop()
	}
}

// stopRemote stops an actor whose worker is not the caller: it is marked
// stopped at once and the rest runs on its own worker.
func (a *Actor) stopRemote() {
	if a.markStopped() {
		a.onOwnWorker("finish-stop()", a.finishStop)
	}
}

// markStopped detaches a and its descendants from the stage.
func (a *Actor) markStopped() bool {
	if State(a.state.Swap(int32(StateStopped))) == StateStopped {
		return false
	}
	for _, c := range a.Children() {
		c.stopRemote()
	}
	if a.parent != nil {
		a.parent.removeChild(a)
	}
	a.stage.remove(a)
	return true
}

func (a *Actor) finishStop() {
	a.mu.Lock()
	stashed := a.stashed
	a.stashed = nil
	a.mu.Unlock()
	for _, msg := range stashed {
		a.stage.deadLetter(a.address, msg.Representation(), ReasonStopped)
	}

	if r, ok := a.provider.(mailbox.Releaser); ok {
		r.Release(a.mailbox)
	}
	a.runHook("after-stop", func() {
		if a.hooks.AfterStop != nil {
			a.hooks.AfterStop()
		}
	})
	a.log.Debug("actor stopped")
}

func (a *Actor) runHook(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("actor hook panicked", slog.String("hook", name), slog.Any("recovered", r))
		}
	}()
	fn()
}

func (a *Actor) String() string {
	return fmt.Sprintf("Actor(%s, %s, %s)", a.protocol, a.address, a.State())
}

var (
	_ mailbox.Target         = (*Actor)(nil)
	_ supervision.Supervised = (*Actor)(nil)
)
