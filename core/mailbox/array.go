package mailbox

import (
	"fmt"
	"runtime"
	"sync"
)

const (
	DefaultCapacity    = 1024
	DefaultSendRetries = 10
)

type ArrayQueueOptions struct {
	Options
	Capacity    int
	SendRetries int
}

// ArrayQueue is a bounded blocking mailbox owned by a single target.
type ArrayQueue struct {
	base
	queue     chan Message
	retries   int
	done      chan struct{}
	closeOnce sync.Once
}

func NewArrayQueue(opts ArrayQueueOptions) *ArrayQueue {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.SendRetries <= 0 {
		opts.SendRetries = DefaultSendRetries
	}
	return &ArrayQueue{
		base:    newBase(KindArrayQueue, opts.Options),
		queue:   make(chan Message, opts.Capacity),
		retries: opts.SendRetries,
		done:    make(chan struct{}),
	}
}

// Send enqueues msg, yielding between attempts while the queue is full.
// After SendRetries attempts it fails with ErrMailboxFull.
func (q *ArrayQueue) Send(msg Message) error {
	if q.IsClosed() {
		q.drop(msg)
		return nil
	}
	for attempt := 0; attempt < q.retries; attempt++ {
		select {
		case q.queue <- msg:
			q.metrics.MessageSent(q.kind)
			q.signal()
			return nil
		default:
		}
		runtime.Gosched()
	}
	q.metrics.MailboxFull(q.kind)
	return fmt.Errorf("%w: %s after %d attempts (capacity %d)", ErrMailboxFull, msg.Representation(), q.retries, cap(q.queue))
}

// Receive blocks until a message is available or the mailbox is closed.
func (q *ArrayQueue) Receive() (Message, error) {
	if q.IsClosed() {
		return nil, ErrMailboxClosed
	}
	select {
	case <-q.done:
		return nil, ErrMailboxClosed
	case msg := <-q.queue:
		if q.IsClosed() {
			q.drop(msg)
			return nil, ErrMailboxClosed
		}
		return msg, nil
	}
}

func (q *ArrayQueue) take() (Message, bool) {
	msg, err := q.Receive()
	return msg, err == nil
}

func (q *ArrayQueue) poll() (Message, bool) {
	if q.IsClosed() {
		return nil, false
	}
	select {
	case msg := <-q.queue:
		return msg, true
	default:
		return nil, false
	}
}

func (q *ArrayQueue) dropPending() {
	for {
		select {
		case msg := <-q.queue:
			q.drop(msg)
		default:
			return
		}
	}
}

func (q *ArrayQueue) Close() {
	q.closeOnce.Do(func() {
		q.closed.Store(true)
		close(q.done)
	})
}

func (q *ArrayQueue) PendingMessages() int { return len(q.queue) }

// Capacity returns the fixed queue size.
func (q *ArrayQueue) Capacity() int { return cap(q.queue) }

var (
	_ Mailbox = (*ArrayQueue)(nil)
	_ dropper = (*ArrayQueue)(nil)
)
