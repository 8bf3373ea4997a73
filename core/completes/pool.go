package completes

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/codewandler/dispatch-go/core/mailbox"
)

const DefaultPoolSize = 10

// Provider hands out PooledCompletes.
type Provider interface {
	ProvideCompletesFor(client Completes) *PooledCompletes
	ProvideCompletesForAddress(address string, client Completes) *PooledCompletes
	Close()
}

type Options struct {
	// Size is the number of agents. Defaults to DefaultPoolSize.
	Size int
	// Mailboxes provides the agents' mailboxes. When nil the pool creates
	// and owns a single-dispatcher queue pool.
	Mailboxes mailbox.Provider
	Log       *slog.Logger
	Metrics   Metrics
}

// Pool is a fixed set of agents handed out round-robin.
type Pool struct {
	agents  []*Agent
	byAddr  map[string]*Agent
	counter atomic.Int64
	ids     atomic.Int64
	owned   mailbox.Provider
	log     *slog.Logger
	metrics Metrics
	once    sync.Once
}

func NewPool(opts Options) *Pool {
	if opts.Size <= 0 {
		opts.Size = DefaultPoolSize
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = NopMetrics()
	}

	p := &Pool{
		agents:  make([]*Agent, opts.Size),
		byAddr:  make(map[string]*Agent, opts.Size),
		log:     opts.Log.With(slog.String("component", "completes")),
		metrics: opts.Metrics,
	}

	provider := opts.Mailboxes
	if provider == nil {
		provider = mailbox.NewPool(mailbox.PoolOptions{
			Parallelism: 1,
			Factor:      1,
			Dispatcher:  mailbox.DispatcherOptions{Name: "completes", Log: opts.Log},
		})
		p.owned = provider
	}

	for i := range p.agents {
		a := newAgent(i, provider, p.log, p.metrics)
		p.agents[i] = a
		p.byAddr[a.address] = a
	}
	p.log.Debug("completes pool started", slog.Int("agents", opts.Size))
	return p
}

func (p *Pool) Size() int { return len(p.agents) }

// ProvideCompletesFor binds client to the next agent in round-robin order.
func (p *Pool) ProvideCompletesFor(client Completes) *PooledCompletes {
	p.metrics.CompletesProvided(false)
	return p.pooled(p.next(), client)
}

// ProvideCompletesForAddress binds client to the agent with address, or to
// the next round-robin agent when no agent has it.
func (p *Pool) ProvideCompletesForAddress(address string, client Completes) *PooledCompletes {
	if a, ok := p.byAddr[address]; ok {
		p.metrics.CompletesProvided(true)
		return p.pooled(a, client)
	}
	return p.ProvideCompletesFor(client)
}

func (p *Pool) next() *Agent {
	i := p.counter.Add(1) % int64(len(p.agents))
	return p.agents[i]
}

func (p *Pool) pooled(a *Agent, client Completes) *PooledCompletes {
	return &PooledCompletes{
		ID:     p.ids.Add(1),
		Client: client,
		Agent:  a,
	}
}

// Close stops all agents. Outcomes arriving afterwards are forwarded inline.
func (p *Pool) Close() {
	p.once.Do(func() {
		for _, a := range p.agents {
			a.stop()
		}
		if p.owned != nil {
			p.owned.Close()
		}
	})
}

var _ Provider = (*Pool)(nil)
