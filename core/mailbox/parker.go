package mailbox

import "time"

// parker is a single-slot wake-up signal for an idle worker.
type parker struct {
	ch chan struct{}
}

func newParker() *parker {
	return &parker{ch: make(chan struct{}, 1)}
}

func (p *parker) unpark() {
	select {
	case p.ch <- struct{}{}:
	default:
	}
}

// park waits until unparked, the timeout elapses or stop is closed.
func (p *parker) park(timeout time.Duration, stop <-chan struct{}) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-p.ch:
	case <-t.C:
	case <-stop:
	}
}
