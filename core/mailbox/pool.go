package mailbox

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"

	"github.com/codewandler/dispatch-go/internal/shard"
)

const DefaultDispatchersFactor = 1.5

type PoolOptions struct {
	// Parallelism defaults to runtime.NumCPU().
	Parallelism int
	// Factor scales Parallelism to the pool size. Defaults to DefaultDispatchersFactor.
	Factor float64
	// NewMailbox creates the mailbox of the i-th dispatcher. Defaults to a ConcurrentQueue.
	NewMailbox func(i int) Mailbox
	// Dispatcher is applied to every dispatcher; Name is used as a prefix.
	Dispatcher DispatcherOptions
}

// Pool is a fixed set of started dispatchers shared by many targets.
type Pool struct {
	name        string
	dispatchers []*Dispatcher
	sharder     shard.Sharder
	closeOnce   sync.Once
}

// PoolSize returns max(1, floor(parallelism × factor)).
func PoolSize(parallelism int, factor float64) int {
	return max(1, int(math.Floor(float64(parallelism)*factor)))
}

func NewPool(opts PoolOptions) *Pool {
	if opts.Parallelism <= 0 {
		opts.Parallelism = runtime.NumCPU()
	}
	if opts.Factor <= 0 {
		opts.Factor = DefaultDispatchersFactor
	}
	if opts.Dispatcher.Name == "" {
		opts.Dispatcher.Name = "pool"
	}
	if opts.NewMailbox == nil {
		mbOpts := Options{
			Log:     opts.Dispatcher.Log,
			Metrics: opts.Dispatcher.Metrics,
		}
		opts.NewMailbox = func(int) Mailbox { return NewConcurrentQueue(mbOpts) }
	}

	size := PoolSize(opts.Parallelism, opts.Factor)
	p := &Pool{
		name:        opts.Dispatcher.Name,
		dispatchers: make([]*Dispatcher, size),
		sharder:     shard.Modulo(size),
	}
	for i := range p.dispatchers {
		dopts := opts.Dispatcher
		dopts.Name = fmt.Sprintf("%s-%d", opts.Dispatcher.Name, i)
		d := NewDispatcher(opts.NewMailbox(i), dopts)
		d.Start()
		p.dispatchers[i] = d
	}
	if opts.Dispatcher.Log != nil {
		opts.Dispatcher.Log.Debug("dispatcher pool started", slog.String("pool", p.name), slog.Int("size", size))
	}
	return p
}

func (p *Pool) Size() int { return len(p.dispatchers) }

// AssignFor returns the dispatcher responsible for hashCode.
func (p *Pool) AssignFor(hashCode int) *Dispatcher {
	return p.dispatchers[p.sharder.ShardFor(hashCode)]
}

func (p *Pool) ProvideMailboxFor(hashCode int) Mailbox {
	return p.AssignFor(hashCode).Mailbox()
}

func (p *Pool) Dispatchers() []*Dispatcher {
	out := make([]*Dispatcher, len(p.dispatchers))
	copy(out, p.dispatchers)
	return out
}

// Close stops every dispatcher without waiting.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		for _, d := range p.dispatchers {
			d.Close()
		}
	})
}

// Wait blocks until every worker has exited or ctx is done.
func (p *Pool) Wait(ctx context.Context) error {
	for _, d := range p.dispatchers {
		select {
		case <-d.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

var _ Provider = (*Pool)(nil)
