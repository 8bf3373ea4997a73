package completes

import (
	"log/slog"
	"sync/atomic"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/codewandler/dispatch-go/core/mailbox"
	"github.com/codewandler/dispatch-go/internal/shard"
)

const forwardRepr = "with(outcome)"

// Agent forwards outcomes of PooledCompletes to their clients.
type Agent struct {
	address string
	index   int
	mailbox mailbox.Mailbox
	log     *slog.Logger
	metrics Metrics

	stopped   atomic.Bool
	forwarded atomic.Int64
}

func newAgent(index int, provider mailbox.Provider, log *slog.Logger, metrics Metrics) *Agent {
	address := "completes-" + gonanoid.Must(12)
	return &Agent{
		address: address,
		index:   index,
		mailbox: provider.ProvideMailboxFor(shard.HashCode(address)),
		log:     log.With(slog.String("agent", address)),
		metrics: metrics,
	}
}

func (a *Agent) Address() string { return a.address }

// Index is the agent's position in its pool.
func (a *Agent) Index() int { return a.index }

// Forwarded returns how many outcomes the agent delivered.
func (a *Agent) Forwarded() int64 { return a.forwarded.Load() }

// With forwards pc's current outcome to its client through the agent's
// mailbox. A stopped agent, or one whose mailbox refuses the message,
// forwards on the calling goroutine so the client is never left waiting.
func (a *Agent) With(pc *PooledCompletes) {
	outcome := pc.Outcome()
	forward := func(inline bool) {
		pc.Client.With(outcome)
		a.forwarded.Add(1)
		a.metrics.OutcomeForwarded(a.index, inline)
	}

	if a.stopped.Load() || a.mailbox.IsClosed() {
		forward(true)
		return
	}
	err := a.mailbox.Send(mailbox.NewMessage(a, forwardRepr, func() error {
		forward(false)
		return nil
	}))
	if err != nil {
		a.log.Warn("forwarding outcome inline", slog.Int64("completes_id", pc.ID), slog.Any("error", err))
		forward(true)
	}
}

func (a *Agent) stop() { a.stopped.Store(true) }

var _ mailbox.Target = (*Agent)(nil)
