package supervision

import (
	"log/slog"
	"sync"
	"time"
)

type Options struct {
	Name string
	// Strategy defaults to DefaultStrategy when zero.
	Strategy Strategy
	// Decider defaults to AlwaysRestart.
	Decider Decider
	// Parent receives escalations. Without a parent, escalated units are stopped.
	Parent   Supervisor
	Log      *slog.Logger
	Metrics  Metrics
	Observer Observer
	Clock    func() time.Time
}

// StrategySupervisor applies a Strategy and a Decider to reported failures.
type StrategySupervisor struct {
	name     string
	strategy Strategy
	decider  Decider
	parent   Supervisor
	log      *slog.Logger
	metrics  Metrics
	observer Observer
	now      func() time.Time

	mu      sync.Mutex
	windows map[string]*failureWindow
}

func New(opts Options) *StrategySupervisor {
	if opts.Name == "" {
		opts.Name = "supervisor"
	}
	if opts.Strategy == (Strategy{}) {
		opts.Strategy = DefaultStrategy()
	}
	if opts.Decider == nil {
		opts.Decider = AlwaysRestart
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
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &StrategySupervisor{
		name:     opts.Name,
		strategy: opts.Strategy,
		decider:  opts.Decider,
		parent:   opts.Parent,
		log:      opts.Log.With(slog.String("supervisor", opts.Name)),
		metrics:  opts.Metrics,
		observer: opts.Observer,
		now:      opts.Clock,
		windows:  make(map[string]*failureWindow),
	}
}

func (s *StrategySupervisor) Name() string       { return s.name }
func (s *StrategySupervisor) Strategy() Strategy { return s.strategy }
func (s *StrategySupervisor) Parent() Supervisor { return s.parent }

func (s *StrategySupervisor) Inform(err error, unit Supervised) {
	s.metrics.FailureInformed(s.name)
	unit.Suspend()

	if s.exceeded(unit) {
		s.log.Warn("failure intensity exceeded",
			slog.String("unit", unit.Address()),
			slog.String("strategy", s.strategy.String()),
			slog.Any("error", err),
		)
		s.escalate(err, unit)
		return
	}

	switch d := s.decider(err); d {
	case DirectiveResume:
		s.applied(d, err, unit)
		unit.Resume()
	case DirectiveRestart:
		s.applied(d, err, unit)
		unit.Restart(s.strategy.Scope(), err)
	case DirectiveStop:
		s.stop(err, unit)
	default:
		s.escalate(err, unit)
	}
}

func (s *StrategySupervisor) windowKey(unit Supervised) string {
	if s.strategy.Scope() == ScopeAll && unit.ParentAddress() != "" {
		return "children-of:" + unit.ParentAddress()
	}
	return unit.Address()
}

func (s *StrategySupervisor) exceeded(unit Supervised) bool {
	key := s.windowKey(unit)

	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[key]
	if !ok {
		w = &failureWindow{}
		s.windows[key] = w
	}
	return w.record(s.now(), s.strategy)
}

func (s *StrategySupervisor) forget(unit Supervised) {
	s.mu.Lock()
	delete(s.windows, s.windowKey(unit))
	s.mu.Unlock()
}

func (s *StrategySupervisor) stop(err error, unit Supervised) {
	s.applied(DirectiveStop, err, unit)
	s.forget(unit)
	unit.Stop(s.strategy.Scope())
}

func (s *StrategySupervisor) escalate(err error, unit Supervised) {
	if s.parent == nil {
		s.log.Warn("no parent supervisor, stopping unit", slog.String("unit", unit.Address()))
		s.stop(err, unit)
		return
	}
	s.applied(DirectiveEscalate, err, unit)
	s.forget(unit)
	s.parent.Inform(&EscalationError{Supervisor: s.name, Unit: unit.Address(), Err: err}, unit)
}

func (s *StrategySupervisor) applied(d Directive, err error, unit Supervised) {
	s.log.Debug("supervision directive",
		slog.String("unit", unit.Address()),
		slog.String("directive", d.String()),
		slog.Any("error", err),
	)
	s.metrics.DirectiveApplied(s.name, d)
	s.observer.Observe(Event{
		Supervisor: s.name,
		Unit:       unit.Address(),
		Protocol:   unit.Protocol(),
		Directive:  d,
		Err:        err,
		At:         s.now(),
	})
}

var _ Supervisor = (*StrategySupervisor)(nil)
