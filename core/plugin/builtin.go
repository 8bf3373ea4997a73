package plugin

import (
	"fmt"
	"log/slog"

	"github.com/codewandler/dispatch-go/core/completes"
	"github.com/codewandler/dispatch-go/core/config"
	"github.com/codewandler/dispatch-go/core/mailbox"
	"github.com/codewandler/dispatch-go/core/supervision"
)

const (
	NameArrayQueueMailbox         = "arrayQueueMailbox"
	NameRingBufferMailbox         = "ringBufferMailbox"
	NameQueueMailbox              = "queueMailbox"
	NamePooledCompletes           = "pooledCompletes"
	NameCommonSupervisors         = "commonSupervisors"
	NameDefaultSupervisorOverride = "defaultSupervisorOverride"
)

// Configuration keys, relative to "plugin.<name>".
const (
	KeyPool              = "pool"
	KeySize              = "size"
	KeyFixedBackoff      = "fixedBackoff"
	KeyNotifyOnSend      = "notifyOnSend"
	KeyThrottlingCount   = "dispatcherThrottlingCount"
	KeySendRetries       = "sendRetries"
	KeyDispatchersFactor = "numberOfDispatchersFactor"
	KeyDefaultMailbox    = "defaultMailbox"
	KeyMailbox           = "mailbox"
	KeyTypes             = "types"
	KeyStage             = "stage"
	KeyProtocol          = "protocol"
	KeyIntensity         = "intensity"
	KeyPeriod            = "period"
	KeyScope             = "scope"
)

const (
	DefaultSize            = 65535
	DefaultThrottlingCount = 1
	mailboxPass            = 1
	dependentPass          = 2
)

func dispatcherOptions(r Registrar, name string, cfg *config.Properties) mailbox.DispatcherOptions {
	wake := mailbox.WakeBackoffPoll
	if cfg.Bool(KeyNotifyOnSend, true) {
		wake = mailbox.WakeNotifyOnSend
	}
	return mailbox.DispatcherOptions{
		Name:            name,
		Log:             r.Logger(),
		Metrics:         r.Metrics().Mailbox,
		ThrottlingCount: cfg.Int(KeyThrottlingCount, DefaultThrottlingCount),
		FixedBackoff:    cfg.Millis(KeyFixedBackoff, 0),
		Wake:            wake,
		OnFailure:       r.FailureHandler(),
	}
}

func mailboxOptions(r Registrar, name string) mailbox.Options {
	return mailbox.Options{
		Name:      name,
		Log:       r.Logger(),
		Metrics:   r.Metrics().Mailbox,
		OnDropped: r.DeadLetterHandler(),
	}
}

// ---- arrayQueueMailbox ----

type arrayQueuePlugin struct {
	basePlugin
	provider *mailbox.DedicatedProvider
}

// NewArrayQueueMailbox gives each actor a bounded ArrayQueue and its own dispatcher.
func NewArrayQueueMailbox(cfg *config.Properties) Plugin {
	return &arrayQueuePlugin{basePlugin: basePlugin{name: NameArrayQueueMailbox, pass: mailboxPass, cfg: cfg}}
}

func (p *arrayQueuePlugin) Start(r Registrar) error {
	opts := mailbox.ArrayQueueOptions{
		Options:     mailboxOptions(r, p.name),
		Capacity:    p.cfg.Int(KeySize, DefaultSize),
		SendRetries: p.cfg.Int(KeySendRetries, mailbox.DefaultSendRetries),
	}
	p.provider = mailbox.NewDedicatedProvider(
		func() mailbox.Mailbox { return mailbox.NewArrayQueue(opts) },
		dispatcherOptions(r, p.name, p.cfg),
	)
	return r.RegisterMailboxProvider(p.name, p.provider, p.cfg.Bool(KeyDefaultMailbox, false))
}

func (p *arrayQueuePlugin) Close() {
	if p.provider != nil {
		p.provider.Close()
	}
}

// ---- ringBufferMailbox / queueMailbox ----

type sharedMailboxPlugin struct {
	basePlugin
	newMailbox func(r Registrar, cfg *config.Properties, i int) mailbox.Mailbox
	pool       *mailbox.Pool
}

// NewRingBufferMailbox shares a pool of dispatchers, each draining a preallocated ring.
func NewRingBufferMailbox(cfg *config.Properties) Plugin {
	return &sharedMailboxPlugin{
		basePlugin: basePlugin{name: NameRingBufferMailbox, pass: mailboxPass, cfg: cfg},
		newMailbox: func(r Registrar, cfg *config.Properties, i int) mailbox.Mailbox {
			return mailbox.NewRingBuffer(mailbox.RingBufferOptions{
				Options: mailboxOptions(r, fmt.Sprintf("%s-%d", NameRingBufferMailbox, i)),
				Size:    cfg.Int(KeySize, DefaultSize),
			})
		},
	}
}

// NewQueueMailbox shares a pool of dispatchers, each draining an unbounded queue.
func NewQueueMailbox(cfg *config.Properties) Plugin {
	return &sharedMailboxPlugin{
		basePlugin: basePlugin{name: NameQueueMailbox, pass: mailboxPass, cfg: cfg},
		newMailbox: func(r Registrar, _ *config.Properties, i int) mailbox.Mailbox {
			return mailbox.NewConcurrentQueue(mailboxOptions(r, fmt.Sprintf("%s-%d", NameQueueMailbox, i)))
		},
	}
}

func (p *sharedMailboxPlugin) Start(r Registrar) error {
	p.pool = mailbox.NewPool(mailbox.PoolOptions{
		Factor:     p.cfg.Float(KeyDispatchersFactor, mailbox.DefaultDispatchersFactor),
		NewMailbox: func(i int) mailbox.Mailbox { return p.newMailbox(r, p.cfg, i) },
		Dispatcher: dispatcherOptions(r, p.name, p.cfg),
	})
	return r.RegisterMailboxProvider(p.name, p.pool, p.cfg.Bool(KeyDefaultMailbox, false))
}

func (p *sharedMailboxPlugin) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// ---- pooledCompletes ----

type pooledCompletesPlugin struct {
	basePlugin
	pool *completes.Pool
}

// NewPooledCompletes registers a completes.Pool whose agents use the
// mailbox provider named by "mailbox" (default provider when unset).
func NewPooledCompletes(cfg *config.Properties) Plugin {
	return &pooledCompletesPlugin{basePlugin: basePlugin{name: NamePooledCompletes, pass: dependentPass, cfg: cfg}}
}

func (p *pooledCompletesPlugin) Start(r Registrar) error {
	mailboxes, err := r.MailboxProvider(p.cfg.String(KeyMailbox, ""))
	if err != nil {
		return err
	}
	p.pool = completes.NewPool(completes.Options{
		Size:      p.cfg.Int(KeyPool, completes.DefaultPoolSize),
		Mailboxes: mailboxes,
		Log:       r.Logger(),
		Metrics:   r.Metrics().Completes,
	})
	return r.RegisterCompletesProvider(p.pool)
}

func (p *pooledCompletesPlugin) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// ---- commonSupervisors ----

// SupervisorDefinition describes one common supervisor.
type SupervisorDefinition struct {
	Stage    string
	Name     string
	Protocol string
	Strategy supervision.Strategy
	Decider  supervision.Decider
}

type commonSupervisorsPlugin struct {
	basePlugin
	defs []SupervisorDefinition
}

// NewCommonSupervisors registers the given definitions plus those listed
// under "types" in cfg.
func NewCommonSupervisors(cfg *config.Properties, defs ...SupervisorDefinition) Plugin {
	return &commonSupervisorsPlugin{
		basePlugin: basePlugin{name: NameCommonSupervisors, pass: dependentPass, cfg: cfg},
		defs:       defs,
	}
}

func parseScope(s string) (supervision.Scope, error) {
	switch s {
	case "", "one":
		return supervision.ScopeOne, nil
	case "all":
		return supervision.ScopeAll, nil
	default:
		return 0, fmt.Errorf("unknown supervision scope %q", s)
	}
}

func definitionsFrom(cfg *config.Properties) ([]SupervisorDefinition, error) {
	var defs []SupervisorDefinition
	for i, t := range cfg.Slices(KeyTypes) {
		scope, err := parseScope(t.String(KeyScope, ""))
		if err != nil {
			return nil, fmt.Errorf("supervisor type %d: %w", i, err)
		}
		def := SupervisorDefinition{
			Stage:    t.String(KeyStage, ""),
			Name:     t.String("name", ""),
			Protocol: t.String(KeyProtocol, ""),
			Strategy: supervision.NewStrategy(
				t.Int(KeyIntensity, supervision.DefaultIntensity),
				t.Millis(KeyPeriod, supervision.DefaultPeriod),
				scope,
			),
		}
		if def.Name == "" || def.Protocol == "" {
			return nil, fmt.Errorf("supervisor type %d: name and protocol are required", i)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (p *commonSupervisorsPlugin) Start(r Registrar) error {
	fromCfg, err := definitionsFrom(p.cfg)
	if err != nil {
		return err
	}
	for _, def := range append(p.defs, fromCfg...) {
		factory := func(parent supervision.Supervisor) supervision.Supervisor {
			return supervision.New(supervision.Options{
				Name:     def.Name,
				Strategy: def.Strategy,
				Decider:  def.Decider,
				Parent:   parent,
				Log:      r.Logger(),
				Metrics:  r.Metrics().Supervision,
				Observer: r.SupervisionObserver(),
			})
		}
		if err := r.RegisterCommonSupervisor(def.Stage, def.Name, def.Protocol, factory); err != nil {
			return err
		}
		r.Logger().Debug("common supervisor defined",
			slog.String("name", def.Name),
			slog.String("protocol", def.Protocol),
			slog.String("strategy", def.Strategy.String()),
		)
	}
	return nil
}

func (p *commonSupervisorsPlugin) Close() {}

// ---- defaultSupervisorOverride ----

type defaultOverridePlugin struct {
	basePlugin
}

// NewDefaultSupervisorOverride registers a supervisor that resumes every
// failure as the stage default.
func NewDefaultSupervisorOverride(cfg *config.Properties) Plugin {
	return &defaultOverridePlugin{basePlugin: basePlugin{name: NameDefaultSupervisorOverride, pass: dependentPass, cfg: cfg}}
}

func (p *defaultOverridePlugin) Start(r Registrar) error {
	return r.RegisterDefaultSupervisor(p.cfg.String(KeyStage, ""), supervision.DefaultOverrideName, func(supervision.Supervisor) supervision.Supervisor {
		return supervision.NewDefaultSupervisorOverride(supervision.OverrideOptions{
			Log:      r.Logger(),
			Metrics:  r.Metrics().Supervision,
			Observer: r.SupervisionObserver(),
		})
	})
}

func (p *defaultOverridePlugin) Close() {}

// ---- discovery ----

type builder func(cfg *config.Properties) Plugin

var builtins = map[string]builder{
	NameArrayQueueMailbox:         NewArrayQueueMailbox,
	NameRingBufferMailbox:         NewRingBufferMailbox,
	NameQueueMailbox:              NewQueueMailbox,
	NamePooledCompletes:           NewPooledCompletes,
	NameCommonSupervisors:         func(cfg *config.Properties) Plugin { return NewCommonSupervisors(cfg) },
	NameDefaultSupervisorOverride: NewDefaultSupervisorOverride,
}

// FromProperties builds every plugin enabled with "plugin.name.<name>: true".
func FromProperties(props *config.Properties) ([]Plugin, error) {
	var plugins []Plugin
	for _, name := range props.EnabledPlugins() {
		build, ok := builtins[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPlugin, name)
		}
		plugins = append(plugins, build(props.Plugin(name)))
	}
	return plugins, nil
}

// Defaults is the plugin set used when nothing is configured: a default
// queue mailbox, pooled completes and the resuming default supervisor.
func Defaults() []Plugin {
	return []Plugin{
		NewQueueMailbox(config.FromMap(map[string]any{KeyDefaultMailbox: true})),
		NewPooledCompletes(nil),
		NewDefaultSupervisorOverride(nil),
	}
}
