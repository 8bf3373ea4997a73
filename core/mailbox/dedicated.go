package mailbox

import (
	"fmt"
	"sync"
)

// DedicatedProvider gives every target its own mailbox and dispatcher.
type DedicatedProvider struct {
	newMailbox func() Mailbox
	opts       DispatcherOptions

	mu          sync.Mutex
	seq         int
	closed      bool
	dispatchers map[Mailbox]*Dispatcher
}

func NewDedicatedProvider(newMailbox func() Mailbox, opts DispatcherOptions) *DedicatedProvider {
	if opts.Name == "" {
		opts.Name = "dedicated"
	}
	return &DedicatedProvider{
		newMailbox:  newMailbox,
		opts:        opts,
		dispatchers: make(map[Mailbox]*Dispatcher),
	}
}

// ProvideMailboxFor starts a new dispatcher and returns its mailbox. After
// Close the returned mailbox is already closed.
func (p *DedicatedProvider) ProvideMailboxFor(hashCode int) Mailbox {
	mb := p.newMailbox()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		mb.Close()
		return mb
	}

	p.seq++
	opts := p.opts
	opts.Name = fmt.Sprintf("%s-%d", p.opts.Name, p.seq)
	d := NewDispatcher(mb, opts)
	p.dispatchers[mb] = d
	d.Start()
	return mb
}

// Release closes the dispatcher owning mb.
func (p *DedicatedProvider) Release(mb Mailbox) {
	p.mu.Lock()
	d, ok := p.dispatchers[mb]
	delete(p.dispatchers, mb)
	p.mu.Unlock()
	if ok {
		d.Close()
	}
}

// Len returns the number of live dispatchers.
func (p *DedicatedProvider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.dispatchers)
}

func (p *DedicatedProvider) Close() {
	p.mu.Lock()
	p.closed = true
	ds := p.dispatchers
	p.dispatchers = make(map[Mailbox]*Dispatcher)
	p.mu.Unlock()

	for _, d := range ds {
		d.Close()
	}
}

var (
	_ Provider = (*DedicatedProvider)(nil)
	_ Releaser = (*DedicatedProvider)(nil)
)
