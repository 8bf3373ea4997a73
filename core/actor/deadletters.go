package actor

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DeadLetter is a message that could not be delivered to its actor.
type DeadLetter struct {
	Address        string    `json:"address"`
	Representation string    `json:"representation"`
	Reason         string    `json:"reason"`
	At             time.Time `json:"at"`
}

type DeadLettersListener interface {
	Handle(dl DeadLetter)
}

type DeadLettersListenerFunc func(dl DeadLetter)

func (f DeadLettersListenerFunc) Handle(dl DeadLetter) { f(dl) }

const (
	ReasonStopped       = "actor stopped"
	ReasonMailboxClosed = "mailbox closed"
)

// DeadLetters fans undeliverable messages out to listeners.
type DeadLetters struct {
	log       *slog.Logger
	mu        sync.RWMutex
	listeners []DeadLettersListener
	count     atomic.Int64
}

func newDeadLetters(log *slog.Logger) *DeadLetters {
	return &DeadLetters{log: log.With(slog.String("component", "dead-letters"))}
}

func (d *DeadLetters) Subscribe(l DeadLettersListener) {
	d.mu.Lock()
	d.listeners = append(d.listeners, l)
	d.mu.Unlock()
}

// Count returns the number of dead letters seen.
func (d *DeadLetters) Count() int64 { return d.count.Load() }

func (d *DeadLetters) publish(dl DeadLetter) {
	d.count.Add(1)
	d.log.Debug("dead letter",
		slog.String("address", dl.Address),
		slog.String("msg", dl.Representation),
		slog.String("reason", dl.Reason),
	)

	d.mu.RLock()
	listeners := d.listeners
	d.mu.RUnlock()
	for _, l := range listeners {
		d.notify(l, dl)
	}
}

func (d *DeadLetters) notify(l DeadLettersListener, dl DeadLetter) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("dead letters listener panicked", slog.Any("recovered", r))
		}
	}()
	l.Handle(dl)
}
