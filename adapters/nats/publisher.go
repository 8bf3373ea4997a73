package nats

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/codewandler/dispatch-go/core/actor"
	"github.com/codewandler/dispatch-go/core/supervision"
	"github.com/codewandler/dispatch-go/internal/codec"
)

const (
	DefaultSubjectPrefix = "dispatch"
	contentTypeHeader    = "Content-Type"
)

type PublisherOptions struct {
	Connect Connector
	// SubjectPrefix defaults to DefaultSubjectPrefix.
	SubjectPrefix string
	Codec         codec.Codec
	Log           *slog.Logger
}

// DirectiveEvent is the wire form of a supervision.Event.
type DirectiveEvent struct {
	Supervisor string    `json:"supervisor"`
	Unit       string    `json:"unit"`
	Protocol   string    `json:"protocol"`
	Directive  string    `json:"directive"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// EventPublisher forwards dead letters and supervision decisions to NATS.
// It is an actor.DeadLettersListener and a supervision.Observer.
type EventPublisher struct {
	nc     *natsgo.Conn
	close  CloseFunc
	prefix string
	codec  codec.Codec
	log    *slog.Logger

	published atomic.Int64
	failed    atomic.Int64
}

func NewEventPublisher(opts PublisherOptions) (*EventPublisher, error) {
	if opts.Connect == nil {
		return nil, errors.New("nats: connector is required")
	}
	if opts.SubjectPrefix == "" {
		opts.SubjectPrefix = DefaultSubjectPrefix
	}
	if opts.Codec == nil {
		opts.Codec = codec.JSONCodec{}
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	nc, closeConn, err := opts.Connect()
	if err != nil {
		return nil, err
	}
	return &EventPublisher{
		nc:     nc,
		close:  closeConn,
		prefix: opts.SubjectPrefix,
		codec:  opts.Codec,
		log:    opts.Log.With(slog.String("component", "nats-events")),
	}, nil
}

func (p *EventPublisher) DeadLettersSubject() string {
	return p.prefix + ".deadletters"
}

func (p *EventPublisher) SupervisionSubject(d supervision.Directive) string {
	return p.prefix + ".supervision." + d.String()
}

func (p *EventPublisher) Handle(dl actor.DeadLetter) {
	p.publish(p.DeadLettersSubject(), dl)
}

func (p *EventPublisher) Observe(ev supervision.Event) {
	out := DirectiveEvent{
		Supervisor: ev.Supervisor,
		Unit:       ev.Unit,
		Protocol:   ev.Protocol,
		Directive:  ev.Directive.String(),
		At:         ev.At,
	}
	if ev.Err != nil {
		out.Error = ev.Err.Error()
	}
	p.publish(p.SupervisionSubject(ev.Directive), out)
}

func (p *EventPublisher) publish(subject string, v any) {
	data, err := p.codec.Marshal(v)
	if err == nil {
		msg := natsgo.NewMsg(subject)
		msg.Data = data
		msg.Header.Set(contentTypeHeader, p.codec.ContentType())
		err = p.nc.PublishMsg(msg)
	}
	if err != nil {
		p.failed.Add(1)
		p.log.Warn("publish failed", slog.String("subject", subject), slog.Any("error", err))
		return
	}
	p.published.Add(1)
}

// Published returns the number of events published successfully.
func (p *EventPublisher) Published() int64 { return p.published.Load() }

func (p *EventPublisher) Failed() int64 { return p.failed.Load() }

func (p *EventPublisher) Flush() error { return p.nc.Flush() }

func (p *EventPublisher) Close() {
	if err := p.nc.Flush(); err != nil {
		p.log.Debug("flush on close failed", slog.Any("error", err))
	}
	p.close()
}

var (
	_ actor.DeadLettersListener = (*EventPublisher)(nil)
	_ supervision.Observer      = (*EventPublisher)(nil)
)
