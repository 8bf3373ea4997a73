// Package mailbox implements the message queues and dispatchers that drive
// actor execution.
//
// A Mailbox holds Messages for one or more targets. Three variants exist:
//
//   - ArrayQueue: a bounded, blocking queue owned by exactly one target and
//     drained by a dedicated Dispatcher. Sends retry a configured number of
//     times and then fail with ErrMailboxFull.
//   - RingBuffer: a preallocated ring shared by many targets. When the ring is
//     full, sends spill into an overflow buffer so nothing is lost and FIFO
//     order per producer is kept.
//   - ConcurrentQueue: an unbounded lock-free queue shared by many targets.
//
// A Dispatcher owns one worker goroutine that pulls up to ThrottlingCount
// messages per iteration and delivers them. Between empty iterations it backs
// off, either sleeping with exponential or fixed backoff, or parking until a
// producer calls Execute (notify-on-send).
//
// A Pool sizes itself as floor(parallelism × factor) dispatchers and assigns
// targets to them by |hashCode| mod size, so one target always lands on the
// same worker and its messages are never processed concurrently.
package mailbox
