package mailbox

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testTarget string

func (t testTarget) Address() string { return string(t) }

// recorder collects delivered values in delivery order.
type recorder struct {
	mu   sync.Mutex
	seen []int
}

func (r *recorder) message(target Target, v int) Message {
	return NewMessage(target, "record", func() error {
		r.mu.Lock()
		r.seen = append(r.seen, v)
		r.mu.Unlock()
		return nil
	})
}

func (r *recorder) values() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.seen))
	copy(out, r.seen)
	return out
}

func sequence(from, to int) []int {
	out := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func TestMessage_Deliver(t *testing.T) {
	called := false
	msg := NewMessage(testTarget("a"), "ping()", func() error {
		called = true
		return nil
	})
	require.NoError(t, msg.Deliver())
	require.True(t, called)
	require.Equal(t, "ping()", msg.Representation())
	require.Equal(t, "a", msg.Target().Address())

	boom := errors.New("boom")
	require.ErrorIs(t, NewMessage(testTarget("a"), "fail()", func() error { return boom }).Deliver(), boom)
	require.NoError(t, NewMessage(testTarget("a"), "noop()", nil).Deliver())
}

func TestMessage_Deliver_panic(t *testing.T) {
	err := NewMessage(testTarget("a"), "explode()", func() error { panic("kaboom") }).Deliver()

	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "kaboom", pe.Recovered)
	require.NotEmpty(t, pe.Stack)
}

func TestIsLifecycle(t *testing.T) {
	require.True(t, IsLifecycle(LifecycleRepresentation("stop()")))
	require.False(t, IsLifecycle("stop()"))
}

func TestArrayQueue_FIFO(t *testing.T) {
	q := NewArrayQueue(ArrayQueueOptions{Capacity: 16})
	rec := &recorder{}
	for i := 1; i <= 10; i++ {
		require.NoError(t, q.Send(rec.message(testTarget("a"), i)))
	}
	require.Equal(t, 10, q.PendingMessages())

	for i := 1; i <= 10; i++ {
		msg, err := q.Receive()
		require.NoError(t, err)
		require.NoError(t, msg.Deliver())
	}
	require.Equal(t, sequence(1, 10), rec.values())
	require.Equal(t, 0, q.PendingMessages())
}

func TestArrayQueue_full(t *testing.T) {
	q := NewArrayQueue(ArrayQueueOptions{Capacity: 2, SendRetries: 3})
	target := testTarget("a")
	require.NoError(t, q.Send(NewMessage(target, "1", nil)))
	require.NoError(t, q.Send(NewMessage(target, "2", nil)))

	err := q.Send(NewMessage(target, "3", nil))
	require.ErrorIs(t, err, ErrMailboxFull)
	require.Equal(t, 2, q.PendingMessages())
}

func TestArrayQueue_close(t *testing.T) {
	var dropped atomic.Int32
	q := NewArrayQueue(ArrayQueueOptions{Options: Options{OnDropped: func(Message) { dropped.Add(1) }}})

	received := make(chan error, 1)
	go func() {
		_, err := q.Receive()
		received <- err
	}()

	q.Close()
	q.Close()
	require.True(t, q.IsClosed())

	select {
	case err := <-received:
		require.ErrorIs(t, err, ErrMailboxClosed)
	case <-time.After(time.Second):
		t.Fatal("Receive did not return after Close")
	}

	require.NoError(t, q.Send(NewMessage(testTarget("a"), "late()", nil)))
	require.Equal(t, int32(1), dropped.Load())
	require.Equal(t, 0, q.PendingMessages())
}

func TestMailbox_closeStopsDeliveries(t *testing.T) {
	cases := []struct {
		name string
		new  func(opts Options) Mailbox
	}{
		{"array", func(opts Options) Mailbox {
			return NewArrayQueue(ArrayQueueOptions{Options: opts, Capacity: 256})
		}},
		{"ring", func(opts Options) Mailbox {
			return NewRingBuffer(RingBufferOptions{Options: opts, Size: 256})
		}},
		{"concurrent", func(opts Options) Mailbox {
			return NewConcurrentQueue(opts)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var highest atomic.Int64
			var dropped atomic.Int32
			target := testTarget("counter")
			send := func(mb Mailbox, v int64) {
				require.NoError(t, mb.Send(NewMessage(target, "count()", func() error {
					highest.Store(v)
					return nil
				})))
			}

			mb := tc.new(Options{OnDropped: func(Message) { dropped.Add(1) }})
			d := NewDispatcher(mb, DispatcherOptions{})
			d.Start()
			t.Cleanup(d.Close)

			for i := int64(1); i <= 64; i++ {
				send(mb, i)
			}
			require.Eventually(t, func() bool { return highest.Load() == 64 }, 2*time.Second, time.Millisecond)

			mb.Close()
			require.True(t, mb.IsClosed())
			select {
			case <-d.Done():
			case <-time.After(2 * time.Second):
				t.Fatal("dispatcher kept running after its mailbox closed")
			}

			for i := int64(65); i <= 128; i++ {
				send(mb, i)
			}
			time.Sleep(20 * time.Millisecond)
			require.Equal(t, int64(64), highest.Load())
			require.Equal(t, int32(64), dropped.Load())
		})
	}
}

func TestMailbox_closeDropsQueued(t *testing.T) {
	cases := []struct {
		name string
		new  func(opts Options) Mailbox
	}{
		{"array", func(opts Options) Mailbox { return NewArrayQueue(ArrayQueueOptions{Options: opts, Capacity: 16}) }},
		{"ring", func(opts Options) Mailbox { return NewRingBuffer(RingBufferOptions{Options: opts, Size: 4}) }},
		{"concurrent", func(opts Options) Mailbox { return NewConcurrentQueue(opts) }},
	}
	for _, tc := range cases {
		t.Run(tc.name+"/never started", func(t *testing.T) {
			var dropped []string
			var mu sync.Mutex
			mb := tc.new(Options{OnDropped: func(msg Message) {
				mu.Lock()
				dropped = append(dropped, msg.Representation())
				mu.Unlock()
			}})
			for _, repr := range []string{"a()", "b()", "c()", "d()", "e()", "f()"} {
				require.NoError(t, mb.Send(NewMessage(testTarget("a"), repr, nil)))
			}

			d := NewDispatcher(mb, DispatcherOptions{})
			d.Close()
			<-d.Done()

			mu.Lock()
			defer mu.Unlock()
			require.Equal(t, []string{"a()", "b()", "c()", "d()", "e()", "f()"}, dropped)
			require.Zero(t, mb.PendingMessages())
		})

		t.Run(tc.name+"/while delivering", func(t *testing.T) {
			var dropped, delivered atomic.Int32
			mb := tc.new(Options{OnDropped: func(Message) { dropped.Add(1) }})
			d := NewDispatcher(mb, DispatcherOptions{})
			d.Start()

			entered := make(chan struct{})
			release := make(chan struct{})
			require.NoError(t, mb.Send(NewMessage(testTarget("a"), "block()", func() error {
				close(entered)
				<-release
				delivered.Add(1)
				return nil
			})))
			<-entered
			for i := 0; i < 5; i++ {
				require.NoError(t, mb.Send(NewMessage(testTarget("a"), "queued()", func() error {
					delivered.Add(1)
					return nil
				})))
			}

			d.Close()
			close(release)
			<-d.Done()

			require.Equal(t, int32(1), delivered.Load())
			require.Equal(t, int32(5), dropped.Load())
		})
	}
}

func TestRingBuffer_overflowBeforeStart(t *testing.T) {
	const size = 8
	r := NewRingBuffer(RingBufferOptions{Size: size})
	rec := &recorder{}
	for i := 1; i <= 2*size; i++ {
		require.NoError(t, r.Send(rec.message(testTarget("a"), i)))
	}
	require.Equal(t, 2*size, r.PendingMessages())

	d := NewDispatcher(r, DispatcherOptions{ThrottlingCount: 4})
	d.Start()
	t.Cleanup(d.Close)

	require.Eventually(t, func() bool { return len(rec.values()) == 2*size }, 2*time.Second, time.Millisecond)
	require.Equal(t, sequence(1, 2*size), rec.values())
	require.Equal(t, 0, r.PendingMessages())
}

func TestRingBuffer_wrapsAround(t *testing.T) {
	r := NewRingBuffer(RingBufferOptions{Size: 4})
	rec := &recorder{}
	d := NewDispatcher(r, DispatcherOptions{})
	d.Start()
	t.Cleanup(d.Close)

	for i := 1; i <= 1000; i++ {
		require.NoError(t, r.Send(rec.message(testTarget("a"), i)))
	}
	require.Eventually(t, func() bool { return len(rec.values()) == 1000 }, 5*time.Second, time.Millisecond)
	require.Equal(t, sequence(1, 1000), rec.values())
}

func TestRingBuffer_receiveUnsupported(t *testing.T) {
	r := NewRingBuffer(RingBufferOptions{Size: 2})
	_, err := r.Receive()
	require.ErrorIs(t, err, ErrUnsupportedOperation)
	require.Equal(t, 2, r.Size())
}

func TestRingBuffer_closeDrops(t *testing.T) {
	var dropped atomic.Int32
	r := NewRingBuffer(RingBufferOptions{Size: 2, Options: Options{OnDropped: func(Message) { dropped.Add(1) }}})
	r.Close()
	require.NoError(t, r.Send(NewMessage(testTarget("a"), "x()", nil)))
	require.Equal(t, int32(1), dropped.Load())
	_, ok := r.poll()
	require.False(t, ok)
}

func TestConcurrentQueue_FIFO(t *testing.T) {
	q := NewConcurrentQueue(Options{})
	_, err := q.Receive()
	require.ErrorIs(t, err, ErrMailboxEmpty)

	rec := &recorder{}
	for i := 1; i <= 100; i++ {
		require.NoError(t, q.Send(rec.message(testTarget("a"), i)))
	}
	require.Equal(t, 100, q.PendingMessages())
	for {
		msg, err := q.Receive()
		if errors.Is(err, ErrMailboxEmpty) {
			break
		}
		require.NoError(t, err)
		require.NoError(t, msg.Deliver())
	}
	require.Equal(t, sequence(1, 100), rec.values())

	q.Close()
	_, err = q.Receive()
	require.ErrorIs(t, err, ErrMailboxClosed)
}

func TestConcurrentQueue_producersKeepOrder(t *testing.T) {
	const (
		producers = 8
		perSender = 1000
	)
	q := NewConcurrentQueue(Options{})
	d := NewDispatcher(q, DispatcherOptions{ThrottlingCount: 16})
	d.Start()
	t.Cleanup(d.Close)

	last := make([]int, producers)
	var outOfOrder, delivered atomic.Int64

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 1; i <= perSender; i++ {
				_ = q.Send(NewMessage(testTarget("a"), "seq()", func() error {
					if last[p] != i-1 {
						outOfOrder.Add(1)
					}
					last[p] = i
					delivered.Add(1)
					return nil
				}))
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return delivered.Load() == producers*perSender }, 5*time.Second, time.Millisecond)
	require.Zero(t, outOfOrder.Load())
}
