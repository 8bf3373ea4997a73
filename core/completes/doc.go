// Package completes delivers eventual outcomes back to their callers.
//
// A caller asking an actor for a result holds a Future. The actor answers
// through a PooledCompletes handle, which routes the outcome to one of a
// fixed set of agents. Each agent owns a mailbox, so outcome forwarding runs
// on dispatcher workers and never on the answering actor's goroutine.
//
// Agents are picked round-robin. A caller that already knows the agent it
// wants (for example to keep replies to one conversation in order) can ask
// for it by address; unknown addresses fall back to round-robin.
package completes
