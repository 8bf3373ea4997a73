package mailbox

import (
	"sync"
	"sync/atomic"
)

const DefaultRingSize = 65535

type RingBufferOptions struct {
	Options
	Size int
}

type ringSlot struct {
	seq atomic.Uint64
	msg Message
}

// RingBuffer is a preallocated multi-producer, single-consumer mailbox.
//
// Producers never block: when the ring is full a message goes to an overflow
// buffer, and while the overflow is non-empty every later message goes there
// too. The consumer drains the ring before the overflow, so a producer's
// messages keep their order.
type RingBuffer struct {
	base
	slots []ringSlot
	size  uint64

	head atomic.Uint64
	tail atomic.Uint64

	mu         sync.Mutex
	overflow   []Message
	overflowed atomic.Int64
}

func NewRingBuffer(opts RingBufferOptions) *RingBuffer {
	if opts.Size <= 0 {
		opts.Size = DefaultRingSize
	}
	r := &RingBuffer{
		base:  newBase(KindRingBuffer, opts.Options),
		slots: make([]ringSlot, opts.Size),
		size:  uint64(opts.Size),
	}
	for i := range r.slots {
		r.slots[i].seq.Store(uint64(i))
	}
	return r
}

func (r *RingBuffer) Send(msg Message) error {
	if r.IsClosed() {
		r.drop(msg)
		return nil
	}
	if r.overflowed.Load() > 0 || !r.offer(msg) {
		r.mu.Lock()
		r.overflow = append(r.overflow, msg)
		r.overflowed.Add(1)
		r.mu.Unlock()
		r.metrics.MailboxOverflow(r.kind)
	}
	r.metrics.MessageSent(r.kind)
	r.signal()
	return nil
}

func (r *RingBuffer) offer(msg Message) bool {
	for {
		pos := r.tail.Load()
		s := &r.slots[pos%r.size]
		diff := int64(s.seq.Load()) - int64(pos)
		switch {
		case diff == 0:
			if r.tail.CompareAndSwap(pos, pos+1) {
				s.msg = msg
				s.seq.Store(pos + 1)
				return true
			}
		case diff < 0:
			return false
		}
	}
}

// Receive is not supported; the ring is drained only by its dispatcher.
func (r *RingBuffer) Receive() (Message, error) {
	return nil, ErrUnsupportedOperation
}

func (r *RingBuffer) poll() (Message, bool) {
	if r.IsClosed() {
		return nil, false
	}
	return r.next()
}

func (r *RingBuffer) next() (Message, bool) {
	pos := r.head.Load()
	s := &r.slots[pos%r.size]
	if s.seq.Load() == pos+1 {
		msg := s.msg
		s.msg = nil
		s.seq.Store(pos + r.size)
		r.head.Store(pos + 1)
		return msg, true
	}
	if r.overflowed.Load() == 0 {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.overflow) == 0 {
		return nil, false
	}
	msg := r.overflow[0]
	r.overflow[0] = nil
	r.overflow = r.overflow[1:]
	r.overflowed.Add(-1)
	return msg, true
}

func (r *RingBuffer) dropPending() {
	for msg, ok := r.next(); ok; msg, ok = r.next() {
		r.drop(msg)
	}
}

func (r *RingBuffer) Close() { r.closed.Store(true) }

func (r *RingBuffer) PendingMessages() int {
	inRing := int(r.tail.Load() - r.head.Load())
	return inRing + int(r.overflowed.Load())
}

// Size returns the number of preallocated slots.
func (r *RingBuffer) Size() int { return int(r.size) }

var (
	_ Mailbox = (*RingBuffer)(nil)
	_ dropper = (*RingBuffer)(nil)
)
