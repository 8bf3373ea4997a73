// Package plugin wires mailbox, completes and supervision providers into a
// stage. Plugins start in ascending pass order so that later passes can
// depend on what earlier ones registered, and close in reverse.
package plugin

import (
	"errors"
	"log/slog"

	"github.com/codewandler/dispatch-go/core/completes"
	"github.com/codewandler/dispatch-go/core/config"
	"github.com/codewandler/dispatch-go/core/mailbox"
	"github.com/codewandler/dispatch-go/core/supervision"
)

var (
	ErrUnknownProvider   = errors.New("unknown provider")
	ErrNoDefaultProvider = errors.New("no default provider")
	ErrDuplicateProvider = errors.New("provider already registered")
	ErrUnknownPlugin     = errors.New("unknown plugin")
)

type Plugin interface {
	Name() string
	// Pass orders startup; lower passes start first.
	Pass() int
	Configuration() *config.Properties
	Start(r Registrar) error
	Close()
}

// Registrar is what a plugin registers its providers with, usually a stage.
type Registrar interface {
	StageName() string
	Logger() *slog.Logger
	Metrics() Metrics
	FailureHandler() mailbox.FailureHandler
	// DeadLetterHandler receives messages dropped by closed mailboxes.
	DeadLetterHandler() func(msg mailbox.Message)
	SupervisionObserver() supervision.Observer

	RegisterMailboxProvider(name string, p mailbox.Provider, isDefault bool) error
	// MailboxProvider finds a registered provider; an empty name means the default.
	MailboxProvider(name string) (mailbox.Provider, error)
	RegisterCompletesProvider(p completes.Provider) error
	RegisterCommonSupervisor(stageName, name, protocol string, f supervision.Factory) error
	RegisterDefaultSupervisor(stageName, name string, f supervision.Factory) error
}

// Metrics bundles the sinks handed to plugin-built components.
type Metrics struct {
	Mailbox     mailbox.Metrics
	Completes   completes.Metrics
	Supervision supervision.Metrics
}

func NopMetrics() Metrics {
	return Metrics{
		Mailbox:     mailbox.NopMetrics(),
		Completes:   completes.NopMetrics(),
		Supervision: supervision.NopMetrics(),
	}
}

// WithDefaults fills unset sinks with no-op implementations.
func (m Metrics) WithDefaults() Metrics {
	if m.Mailbox == nil {
		m.Mailbox = mailbox.NopMetrics()
	}
	if m.Completes == nil {
		m.Completes = completes.NopMetrics()
	}
	if m.Supervision == nil {
		m.Supervision = supervision.NopMetrics()
	}
	return m
}

type basePlugin struct {
	name string
	pass int
	cfg  *config.Properties
}

func (p *basePlugin) Name() string                      { return p.name }
func (p *basePlugin) Pass() int                         { return p.pass }
func (p *basePlugin) Configuration() *config.Properties { return p.cfg }
