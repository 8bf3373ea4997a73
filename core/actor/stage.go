package actor

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/codewandler/dispatch-go/core/completes"
	"github.com/codewandler/dispatch-go/core/config"
	"github.com/codewandler/dispatch-go/core/mailbox"
	"github.com/codewandler/dispatch-go/core/plugin"
	"github.com/codewandler/dispatch-go/core/supervision"
	"github.com/codewandler/dispatch-go/internal/shard"
)

var (
	ErrStageClosed      = errors.New("stage closed")
	ErrDuplicateAddress = errors.New("address already in use")
)

const (
	DefaultStageName = "default"
	defaultProtocol  = "actor"
)

type Options struct {
	Name    string
	Log     *slog.Logger
	Metrics plugin.Metrics
	// Plugins to start. When empty they are built from Properties, and when
	// that yields none the plugin.Defaults are used.
	Plugins    []plugin.Plugin
	Properties *config.Properties
	// Observers are told about every supervision decision.
	Observers []supervision.Observer
	// DeadLetters listeners are subscribed before any plugin starts.
	DeadLetters []DeadLettersListener
}

// Stage hosts actors and is the Registrar for plugins.
type Stage struct {
	name     string
	log      *slog.Logger
	metrics  plugin.Metrics
	observer supervision.Observer

	mailboxes   *plugin.MailboxProviderKeeper
	completes   *plugin.CompletesProviderKeeper
	supervisors *supervision.Registry
	deadLetters *DeadLetters
	loader      *plugin.Loader

	mu     sync.RWMutex
	actors map[string]*Actor
	closed atomic.Bool
}

func NewStage(opts Options) (*Stage, error) {
	if opts.Name == "" {
		opts.Name = DefaultStageName
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	opts.Metrics = opts.Metrics.WithDefaults()

	plugins := opts.Plugins
	if len(plugins) == 0 && opts.Properties != nil {
		var err error
		if plugins, err = plugin.FromProperties(opts.Properties); err != nil {
			return nil, err
		}
	}
	if len(plugins) == 0 {
		plugins = plugin.Defaults()
	}

	log := opts.Log.With(slog.String("stage", opts.Name))
	s := &Stage{
		name:        opts.Name,
		log:         log,
		metrics:     opts.Metrics,
		mailboxes:   plugin.NewMailboxProviderKeeper(),
		completes:   plugin.NewCompletesProviderKeeper(),
		deadLetters: newDeadLetters(log),
		loader:      plugin.NewLoader(plugins...),
		actors:      make(map[string]*Actor),
	}
	if len(opts.Observers) > 0 {
		s.observer = fanOut(opts.Observers)
	}
	s.supervisors = supervision.NewRegistry(supervision.NewDefaultSupervisorOverride(supervision.OverrideOptions{
		Log:      log,
		Metrics:  opts.Metrics.Supervision,
		Observer: s.observer,
	}), log)
	for _, l := range opts.DeadLetters {
		s.deadLetters.Subscribe(l)
	}

	if err := s.loader.Start(s); err != nil {
		return nil, err
	}
	if _, err := s.mailboxes.FindDefault(); err != nil {
		s.loader.Close()
		return nil, err
	}
	log.Info("stage started", slog.Int("plugins", len(plugins)), slog.String("default_mailbox", s.mailboxes.DefaultName()))
	return s, nil
}

func (s *Stage) Name() string                       { return s.name }
func (s *Stage) DeadLetters() *DeadLetters          { return s.deadLetters }
func (s *Stage) Supervisors() *supervision.Registry { return s.supervisors }

// ---- plugin.Registrar ----

func (s *Stage) StageName() string                         { return s.name }
func (s *Stage) Logger() *slog.Logger                      { return s.log }
func (s *Stage) Metrics() plugin.Metrics                   { return s.metrics }
func (s *Stage) FailureHandler() mailbox.FailureHandler    { return s.handleFailure }
func (s *Stage) SupervisionObserver() supervision.Observer { return s.observer }

func (s *Stage) DeadLetterHandler() func(msg mailbox.Message) {
	return func(msg mailbox.Message) {
		address := ""
		if t := msg.Target(); t != nil {
			address = t.Address()
		}
		s.deadLetter(address, msg.Representation(), ReasonMailboxClosed)
	}
}

func (s *Stage) RegisterMailboxProvider(name string, p mailbox.Provider, isDefault bool) error {
	return s.mailboxes.Keep(name, p, isDefault)
}

func (s *Stage) MailboxProvider(name string) (mailbox.Provider, error) {
	return s.mailboxes.Find(name)
}

func (s *Stage) RegisterCompletesProvider(p completes.Provider) error {
	return s.completes.Keep(p)
}

func (s *Stage) RegisterCommonSupervisor(stageName, name, protocol string, f supervision.Factory) error {
	if !s.owns(stageName) {
		s.log.Debug("common supervisor for another stage ignored", slog.String("target_stage", stageName), slog.String("name", name))
		return nil
	}
	return s.supervisors.RegisterCommon(name, protocol, f)
}

func (s *Stage) RegisterDefaultSupervisor(stageName, name string, f supervision.Factory) error {
	if !s.owns(stageName) {
		s.log.Debug("default supervisor for another stage ignored", slog.String("target_stage", stageName), slog.String("name", name))
		return nil
	}
	s.supervisors.RegisterDefault(name, f)
	return nil
}

func (s *Stage) owns(stageName string) bool {
	return stageName == "" || stageName == s.name
}

var _ plugin.Registrar = (*Stage)(nil)

// ---- actors ----

type SpawnOptions struct {
	// Protocol names the actor's behavior and selects common supervisors.
	Protocol string
	// Address defaults to a random id.
	Address string
	// Mailbox names the mailbox provider; empty means the default.
	Mailbox string
	Parent  *Actor
	// Supervisor handles this actor's failures.
	Supervisor supervision.Supervisor
	// ChildSupervisor handles failures of descendants without their own.
	ChildSupervisor supervision.Supervisor
	Hooks           Hooks
}

func (s *Stage) Spawn(opts SpawnOptions) (*Actor, error) {
	if s.closed.Load() {
		return nil, ErrStageClosed
	}
	if opts.Protocol == "" {
		opts.Protocol = defaultProtocol
	}
	if opts.Address == "" {
		opts.Address = gonanoid.Must(12)
	}
	if opts.Parent != nil && opts.Parent.IsStopped() {
		return nil, fmt.Errorf("%w: parent %s", ErrActorStopped, opts.Parent.address)
	}

	provider, err := s.mailboxes.Find(opts.Mailbox)
	if err != nil {
		return nil, err
	}

	a := &Actor{
		stage:           s,
		address:         opts.Address,
		protocol:        opts.Protocol,
		hash:            shard.HashCode(opts.Address),
		provider:        provider,
		parent:          opts.Parent,
		supervisor:      opts.Supervisor,
		childSupervisor: opts.ChildSupervisor,
		hooks:           opts.Hooks,
		log:             s.log.With(slog.String("actor", opts.Address), slog.String("protocol", opts.Protocol)),
	}

	// The mailbox is bound before the actor becomes visible through ActorOf.
	a.mailbox = provider.ProvideMailboxFor(a.hash)

	s.mu.Lock()
	if _, exists := s.actors[a.address]; exists {
		s.mu.Unlock()
		if r, ok := provider.(mailbox.Releaser); ok {
			r.Release(a.mailbox)
		}
		return nil, fmt.Errorf("%w: %s", ErrDuplicateAddress, a.address)
	}
	s.actors[a.address] = a
	s.mu.Unlock()

	if a.parent != nil {
		a.parent.addChild(a)
	}
	a.log.Debug("actor spawned")
	return a, nil
}

// ActorOf looks up a live actor.
func (s *Stage) ActorOf(address string) (*Actor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actors[address]
	return a, ok
}

func (s *Stage) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.actors)
}

func (s *Stage) remove(a *Actor) {
	s.mu.Lock()
	if s.actors[a.address] == a {
		delete(s.actors, a.address)
	}
	s.mu.Unlock()
}

// CompletesFor binds client to a pooled completes agent.
func (s *Stage) CompletesFor(client completes.Completes) (*completes.PooledCompletes, error) {
	p, err := s.completes.Find()
	if err != nil {
		return nil, err
	}
	return p.ProvideCompletesFor(client), nil
}

// CompletesForAddress binds client to the agent at address when it exists.
func (s *Stage) CompletesForAddress(address string, client completes.Completes) (*completes.PooledCompletes, error) {
	p, err := s.completes.Find()
	if err != nil {
		return nil, err
	}
	return p.ProvideCompletesForAddress(address, client), nil
}

func (s *Stage) handleFailure(msg mailbox.Message, err error) {
	unit, ok := msg.Target().(supervision.Supervised)
	if !ok {
		s.log.Error("delivery failed for unsupervised target",
			slog.String("msg", msg.Representation()),
			slog.Any("error", err),
		)
		return
	}
	sup := s.supervisors.Resolve(unit)
	s.log.Debug("informing supervisor",
		slog.String("actor", unit.Address()),
		slog.String("supervisor", sup.Name()),
		slog.Any("error", err),
	)
	sup.Inform(err, unit)
}

func (s *Stage) deadLetter(address, repr, reason string) {
	s.deadLetters.publish(DeadLetter{
		Address:        address,
		Representation: repr,
		Reason:         reason,
		At:             time.Now(),
	})
}

// Close closes all plugins in reverse start order. Messages sent afterwards
// become dead letters.
func (s *Stage) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.loader.Close()
	s.log.Info("stage closed", slog.Int64("dead_letters", s.deadLetters.Count()))
}

type fanOut []supervision.Observer

func (f fanOut) Observe(ev supervision.Event) {
	for _, o := range f {
		o.Observe(ev)
	}
}
