package completes

import "sync/atomic"

// PooledCompletes is the handle an actor answers through. It carries the
// pool-unique ID, the waiting client and the agent that forwards the outcome.
type PooledCompletes struct {
	ID     int64
	Client Completes
	Agent  *Agent

	outcome atomic.Pointer[any]
}

// Address returns the forwarding agent's address, for correlating later
// replies to the same agent.
func (p *PooledCompletes) Address() string { return p.Agent.Address() }

func (p *PooledCompletes) With(outcome any) {
	p.outcome.Store(&outcome)
	p.Agent.With(p)
}

// Outcome returns the last outcome passed to With, or nil.
func (p *PooledCompletes) Outcome() any {
	if o := p.outcome.Load(); o != nil {
		return *o
	}
	return nil
}

var _ Completes = (*PooledCompletes)(nil)
