package mailbox

import (
	"sync"
	"sync/atomic"
)

type queueNode struct {
	next atomic.Pointer[queueNode]
	msg  Message
}

var nodePool = sync.Pool{New: func() any { return new(queueNode) }}

// ConcurrentQueue is an unbounded lock-free multi-producer, single-consumer
// mailbox.
type ConcurrentQueue struct {
	base
	head   atomic.Pointer[queueNode]
	_      [56]byte
	tail   atomic.Pointer[queueNode]
	_      [56]byte
	length atomic.Int64
}

func NewConcurrentQueue(opts Options) *ConcurrentQueue {
	q := &ConcurrentQueue{base: newBase(KindConcurrentQueue, opts)}
	stub := new(queueNode)
	q.head.Store(stub)
	q.tail.Store(stub)
	return q
}

func (q *ConcurrentQueue) Send(msg Message) error {
	if q.IsClosed() {
		q.drop(msg)
		return nil
	}
	n := nodePool.Get().(*queueNode)
	n.msg = msg
	n.next.Store(nil)

	prev := q.tail.Swap(n)
	prev.next.Store(n)
	q.length.Add(1)

	q.metrics.MessageSent(q.kind)
	q.signal()
	return nil
}

// Receive returns the next message or ErrMailboxEmpty. It must only be
// called from a single consumer.
func (q *ConcurrentQueue) Receive() (Message, error) {
	if q.IsClosed() {
		return nil, ErrMailboxClosed
	}
	msg, ok := q.poll()
	if !ok {
		return nil, ErrMailboxEmpty
	}
	return msg, nil
}

func (q *ConcurrentQueue) poll() (Message, bool) {
	if q.IsClosed() {
		return nil, false
	}
	return q.next()
}

func (q *ConcurrentQueue) next() (Message, bool) {
	head := q.head.Load()
	next := head.next.Load()
	if next == nil {
		return nil, false
	}
	q.head.Store(next)
	msg := next.msg
	next.msg = nil
	q.length.Add(-1)

	head.next.Store(nil)
	nodePool.Put(head)
	return msg, true
}

func (q *ConcurrentQueue) dropPending() {
	for msg, ok := q.next(); ok; msg, ok = q.next() {
		q.drop(msg)
	}
}

func (q *ConcurrentQueue) Close() { q.closed.Store(true) }

func (q *ConcurrentQueue) PendingMessages() int { return int(q.length.Load()) }

var (
	_ Mailbox = (*ConcurrentQueue)(nil)
	_ dropper = (*ConcurrentQueue)(nil)
)
