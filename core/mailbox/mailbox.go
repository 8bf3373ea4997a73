package mailbox

import (
	"log/slog"
	"sync/atomic"
)

const (
	KindArrayQueue      = "array"
	KindRingBuffer      = "ring"
	KindConcurrentQueue = "concurrent"
)

// Mailbox is a queue of messages awaiting delivery.
//
// Send on a closed mailbox is silently dropped and returns nil; the drop is
// reported through Options.OnDropped.
type Mailbox interface {
	Send(msg Message) error
	// Receive takes the next message. Blocking variants wait for one; others
	// return ErrMailboxEmpty or ErrUnsupportedOperation.
	Receive() (Message, error)
	Close()
	IsClosed() bool
	PendingMessages() int
}

// Provider hands out mailboxes for targets identified by hash code.
type Provider interface {
	ProvideMailboxFor(hashCode int) Mailbox
	Close()
}

// Releaser is implemented by providers that dedicate resources per mailbox.
type Releaser interface {
	Release(mb Mailbox)
}

type Options struct {
	Name    string
	Log     *slog.Logger
	Metrics Metrics
	// OnDropped is called for every message discarded because the mailbox was closed.
	OnDropped func(msg Message)
}

// pollers expose a non-blocking pull to the owning dispatcher.
type poller interface {
	poll() (Message, bool)
}

type blockingPoller interface {
	poller
	take() (Message, bool)
}

type notifier interface {
	setNotify(fn func())
}

// droppers hand messages still queued at close to OnDropped. Only the
// consumer may call dropPending.
type dropper interface {
	dropPending()
}

type base struct {
	kind      string
	name      string
	log       *slog.Logger
	metrics   Metrics
	onDropped func(Message)
	closed    atomic.Bool
	notify    atomic.Pointer[func()]
}

func newBase(kind string, opts Options) base {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = NopMetrics()
	}
	if opts.Name == "" {
		opts.Name = kind
	}
	return base{
		kind:      kind,
		name:      opts.Name,
		log:       opts.Log.With(slog.String("mailbox", opts.Name)),
		metrics:   opts.Metrics,
		onDropped: opts.OnDropped,
	}
}

func (b *base) IsClosed() bool { return b.closed.Load() }

func (b *base) drop(msg Message) {
	b.metrics.MessageDropped(b.kind)
	if b.onDropped != nil {
		b.onDropped(msg)
		return
	}
	b.log.Debug("message dropped on closed mailbox", slog.String("msg", msg.Representation()))
}

func (b *base) setNotify(fn func()) { b.notify.Store(&fn) }

func (b *base) signal() {
	if fn := b.notify.Load(); fn != nil {
		(*fn)()
	}
}
