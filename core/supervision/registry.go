package supervision

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Factory builds a supervisor. parent is where it should escalate to.
type Factory func(parent Supervisor) Supervisor

type commonEntry struct {
	name    string
	factory Factory
}

// Registry resolves the supervisor responsible for a unit. Registered
// supervisors are built lazily on first use.
type Registry struct {
	override Supervisor
	log      *slog.Logger

	mu             sync.RWMutex
	common         map[string]commonEntry // protocol -> entry
	defaultName    string
	defaultFactory Factory
	instances      map[string]Supervisor

	group singleflight.Group
}

func NewRegistry(override Supervisor, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	if override == nil {
		override = NewDefaultSupervisorOverride(OverrideOptions{Log: log})
	}
	return &Registry{
		override:  override,
		log:       log,
		common:    make(map[string]commonEntry),
		instances: make(map[string]Supervisor),
	}
}

// RegisterCommon makes the supervisor built by f responsible for every unit
// of protocol without an explicit supervisor.
func (r *Registry) RegisterCommon(name, protocol string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.common[protocol]; ok {
		return fmt.Errorf("common supervisor for %s already registered as %s", protocol, existing.name)
	}
	r.common[protocol] = commonEntry{name: name, factory: f}
	r.log.Debug("common supervisor registered", slog.String("name", name), slog.String("protocol", protocol))
	return nil
}

// RegisterDefault replaces the default supervisor. Instances already built
// from an earlier registration are kept.
func (r *Registry) RegisterDefault(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultName = name
	r.defaultFactory = f
	r.log.Debug("default supervisor registered", slog.String("name", name))
}

// Override returns the last-resort supervisor.
func (r *Registry) Override() Supervisor { return r.override }

// Default returns the registered default supervisor, or the override.
func (r *Registry) Default() Supervisor {
	r.mu.RLock()
	name, f := r.defaultName, r.defaultFactory
	r.mu.RUnlock()
	if f == nil {
		return r.override
	}
	return r.instance("default:"+name, func() Supervisor { return f(r.override) })
}

// CommonFor returns the common supervisor for protocol, if any.
func (r *Registry) CommonFor(protocol string) (Supervisor, bool) {
	r.mu.RLock()
	e, ok := r.common[protocol]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return r.instance("common:"+protocol, func() Supervisor { return e.factory(r.Default()) }), true
}

// Resolve returns unit's explicit supervisor, else its protocol's common
// supervisor, else the default.
func (r *Registry) Resolve(unit Supervised) Supervisor {
	if s := unit.Supervisor(); s != nil {
		return s
	}
	if s, ok := r.CommonFor(unit.Protocol()); ok {
		return s
	}
	return r.Default()
}

func (r *Registry) instance(key string, build func() Supervisor) Supervisor {
	r.mu.RLock()
	s, ok := r.instances[key]
	r.mu.RUnlock()
	if ok {
		return s
	}

	v, _, _ := r.group.Do(key, func() (any, error) {
		r.mu.RLock()
		s, ok := r.instances[key]
		r.mu.RUnlock()
		if ok {
			return s, nil
		}
		s = build()
		r.mu.Lock()
		r.instances[key] = s
		r.mu.Unlock()
		return s, nil
	})
	return v.(Supervisor)
}
