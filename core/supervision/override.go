package supervision

import (
	"log/slog"
	"sync/atomic"
	"time"
)

const DefaultOverrideName = "default-supervisor-override"

type OverrideOptions struct {
	Name     string
	Log      *slog.Logger
	Metrics  Metrics
	Observer Observer
}

// DefaultSupervisorOverride logs every failure and resumes the unit. Its
// strategy is forever/forever, so it never escalates or stops.
type DefaultSupervisorOverride struct {
	name     string
	log      *slog.Logger
	metrics  Metrics
	observer Observer
	resumed  atomic.Int64
}

func NewDefaultSupervisorOverride(opts OverrideOptions) *DefaultSupervisorOverride {
	if opts.Name == "" {
		opts.Name = DefaultOverrideName
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = NopMetrics()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &DefaultSupervisorOverride{
		name:     opts.Name,
		log:      opts.Log.With(slog.String("supervisor", opts.Name)),
		metrics:  opts.Metrics,
		observer: opts.Observer,
	}
}

func (o *DefaultSupervisorOverride) Name() string       { return o.name }
func (o *DefaultSupervisorOverride) Strategy() Strategy { return ForeverStrategy() }

// Resumed returns how many failures were resumed.
func (o *DefaultSupervisorOverride) Resumed() int64 { return o.resumed.Load() }

func (o *DefaultSupervisorOverride) Inform(err error, unit Supervised) {
	o.metrics.FailureInformed(o.name)
	o.log.Error("failure resumed by default supervisor",
		slog.String("unit", unit.Address()),
		slog.String("protocol", unit.Protocol()),
		slog.Any("error", err),
	)
	unit.Resume()
	o.resumed.Add(1)
	o.metrics.DirectiveApplied(o.name, DirectiveResume)
	o.observer.Observe(Event{
		Supervisor: o.name,
		Unit:       unit.Address(),
		Protocol:   unit.Protocol(),
		Directive:  DirectiveResume,
		Err:        err,
		At:         time.Now(),
	})
}

var _ Supervisor = (*DefaultSupervisorOverride)(nil)
