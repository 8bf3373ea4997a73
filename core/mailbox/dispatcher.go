package mailbox

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// WakeMode selects how an idle dispatcher waits for work.
type WakeMode int

const (
	// WakeNotifyOnSend parks the worker until a producer signals a send.
	WakeNotifyOnSend WakeMode = iota
	// WakeBackoffPoll sleeps for the backoff duration and polls again.
	WakeBackoffPoll
)

func (m WakeMode) String() string {
	switch m {
	case WakeNotifyOnSend:
		return "notify-on-send"
	case WakeBackoffPoll:
		return "backoff-poll"
	default:
		return "unknown"
	}
}

// FailureHandler receives every failed delivery. err is a *DeliveryError.
type FailureHandler func(msg Message, err error)

type DispatcherOptions struct {
	Name    string
	Log     *slog.Logger
	Metrics Metrics
	// ThrottlingCount caps deliveries per worker iteration. Defaults to 1.
	ThrottlingCount int
	// FixedBackoff replaces the adaptive backoff when > 0.
	FixedBackoff time.Duration
	Wake         WakeMode
	OnFailure    FailureHandler
}

// Dispatcher drives one mailbox from one worker goroutine.
type Dispatcher struct {
	name    string
	log     *slog.Logger
	metrics Metrics

	mailbox    Mailbox
	take       func() (Message, bool)
	poll       func() (Message, bool)
	throttling int
	backoff    *Backoff
	notify     bool
	parker     *parker
	onFailure  FailureHandler

	started   atomic.Bool
	closed    atomic.Bool
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewDispatcher creates a dispatcher owning mb. Call Start to run it.
func NewDispatcher(mb Mailbox, opts DispatcherOptions) *Dispatcher {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = NopMetrics()
	}
	if opts.ThrottlingCount <= 0 {
		opts.ThrottlingCount = 1
	}
	if opts.Name == "" {
		opts.Name = "dispatcher"
	}

	log := opts.Log.With(slog.String("dispatcher", opts.Name))
	if opts.OnFailure == nil {
		opts.OnFailure = func(msg Message, err error) {
			log.Error("delivery failed", slog.String("msg", msg.Representation()), slog.Any("error", err))
		}
	}

	backoff := NewBackoff()
	if opts.FixedBackoff > 0 {
		backoff = NewFixedBackoff(opts.FixedBackoff)
	}

	d := &Dispatcher{
		name:       opts.Name,
		log:        log,
		metrics:    opts.Metrics,
		mailbox:    mb,
		throttling: opts.ThrottlingCount,
		backoff:    backoff,
		notify:     opts.Wake == WakeNotifyOnSend,
		parker:     newParker(),
		onFailure:  opts.OnFailure,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}

	switch src := mb.(type) {
	case blockingPoller:
		d.take, d.poll = src.take, src.poll
	case poller:
		d.take, d.poll = src.poll, src.poll
	default:
		d.take = func() (Message, bool) {
			msg, err := mb.Receive()
			return msg, err == nil
		}
		d.poll = d.take
	}

	if n, ok := mb.(notifier); ok && d.RequiresExecutionNotification() {
		n.setNotify(d.Execute)
	}
	return d
}

func (d *Dispatcher) Name() string { return d.name }

func (d *Dispatcher) Mailbox() Mailbox { return d.mailbox }

// RequiresExecutionNotification reports whether producers must call Execute
// after sending. True for notify-on-send without a fixed backoff.
func (d *Dispatcher) RequiresExecutionNotification() bool {
	return d.notify && !d.backoff.IsFixed()
}

// Execute wakes a parked worker. Extra calls coalesce.
func (d *Dispatcher) Execute() { d.parker.unpark() }

// Start launches the worker. It is a no-op when already started or closed.
func (d *Dispatcher) Start() {
	if d.closed.Load() {
		return
	}
	if d.started.CompareAndSwap(false, true) {
		go d.run()
	}
}

// Close stops the worker after its current delivery and closes the mailbox.
// Messages still queued are handed to the mailbox's OnDropped. It does not
// wait; use Done for that.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		d.mailbox.Close()
		if d.started.CompareAndSwap(false, true) {
			close(d.done)
			d.dropPending()
		}
	})
}

func (d *Dispatcher) IsClosed() bool { return d.closed.Load() }

// Done is closed once the worker has exited.
func (d *Dispatcher) Done() <-chan struct{} { return d.done }

func (d *Dispatcher) stopping() bool {
	return d.closed.Load() || d.mailbox.IsClosed()
}

func (d *Dispatcher) run() {
	defer close(d.done)
	d.log.Debug("dispatcher started",
		slog.Int("throttling", d.throttling),
		slog.Bool("notify", d.RequiresExecutionNotification()),
	)
	for !d.stopping() {
		if d.deliverBatch() > 0 {
			d.backoff.Reset()
			continue
		}
		d.idle()
	}
	d.dropPending()
	d.log.Debug("dispatcher stopped")
}

// dropPending runs on the worker, or in Close when no worker was started.
func (d *Dispatcher) dropPending() {
	if dr, ok := d.mailbox.(dropper); ok {
		dr.dropPending()
	}
}

func (d *Dispatcher) deliverBatch() int {
	delivered := 0
	for delivered < d.throttling && !d.stopping() {
		pull := d.poll
		if delivered == 0 {
			pull = d.take
		}
		msg, ok := pull()
		if !ok {
			break
		}
		d.deliver(msg)
		delivered++
	}
	if delivered > 0 {
		d.metrics.MailboxDepth(d.name, d.mailbox.PendingMessages())
	}
	return delivered
}

func (d *Dispatcher) idle() {
	wait := d.backoff.Next()
	if d.RequiresExecutionNotification() {
		d.parker.park(wait, d.stop)
		return
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
	case <-d.stop:
	}
}

func (d *Dispatcher) deliver(msg Message) {
	defer d.metrics.DeliveryDuration(d.name).ObserveDuration()

	err := msg.Deliver()
	d.metrics.MessageDelivered(d.name, err == nil)
	if err != nil {
		d.fail(msg, err)
	}
}

func (d *Dispatcher) fail(msg Message, err error) {
	var pe *PanicError
	if errors.As(err, &pe) {
		d.log.Warn("behavior panicked",
			slog.String("msg", msg.Representation()),
			slog.Any("recovered", pe.Recovered),
			slog.String("stack", string(pe.Stack)),
		)
	}

	defer func() {
		if r := recover(); r != nil {
			d.log.Error("failure handler panicked", slog.Any("recovered", r), slog.String("msg", msg.Representation()))
		}
	}()
	d.onFailure(msg, &DeliveryError{Message: msg, Err: err})
}
