package mailbox

import "time"

const (
	backoffStart   = time.Millisecond
	backoffCeiling = time.Second
)

// Backoff computes idle waits for a dispatcher worker. It is not safe for
// concurrent use.
//
// The adaptive form doubles from 1ms up to 1s and then starts over at 1ms.
// A fixed backoff always returns the same duration.
type Backoff struct {
	fixed   time.Duration
	current time.Duration
}

func NewBackoff() *Backoff { return &Backoff{} }

func NewFixedBackoff(d time.Duration) *Backoff { return &Backoff{fixed: d} }

func (b *Backoff) IsFixed() bool { return b.fixed > 0 }

func (b *Backoff) Next() time.Duration {
	if b.fixed > 0 {
		return b.fixed
	}
	switch {
	case b.current == 0, b.current >= backoffCeiling:
		b.current = backoffStart
	default:
		b.current = min(b.current*2, backoffCeiling)
	}
	return b.current
}

// Reset is called after a successful delivery.
func (b *Backoff) Reset() { b.current = 0 }
