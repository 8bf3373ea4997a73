package plugin

import (
	"fmt"
	"sync"

	"github.com/codewandler/dispatch-go/core/completes"
	"github.com/codewandler/dispatch-go/core/mailbox"
)

// MailboxProviderKeeper holds named mailbox providers and the default.
type MailboxProviderKeeper struct {
	mu          sync.RWMutex
	providers   map[string]mailbox.Provider
	order       []string
	defaultName string
}

func NewMailboxProviderKeeper() *MailboxProviderKeeper {
	return &MailboxProviderKeeper{providers: make(map[string]mailbox.Provider)}
}

func (k *MailboxProviderKeeper) Keep(name string, p mailbox.Provider, isDefault bool) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.providers[name]; ok {
		return fmt.Errorf("%w: mailbox %s", ErrDuplicateProvider, name)
	}
	k.providers[name] = p
	k.order = append(k.order, name)
	if isDefault || k.defaultName == "" {
		k.defaultName = name
	}
	return nil
}

func (k *MailboxProviderKeeper) FindByName(name string) (mailbox.Provider, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	p, ok := k.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: mailbox %s", ErrUnknownProvider, name)
	}
	return p, nil
}

func (k *MailboxProviderKeeper) FindDefault() (mailbox.Provider, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.defaultName == "" {
		return nil, fmt.Errorf("%w: mailbox", ErrNoDefaultProvider)
	}
	return k.providers[k.defaultName], nil
}

// Find resolves name, or the default when name is empty.
func (k *MailboxProviderKeeper) Find(name string) (mailbox.Provider, error) {
	if name == "" {
		return k.FindDefault()
	}
	return k.FindByName(name)
}

func (k *MailboxProviderKeeper) DefaultName() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.defaultName
}

func (k *MailboxProviderKeeper) IsValidName(name string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.providers[name]
	return ok
}

// AssignMailbox returns a mailbox from the named (or default) provider.
func (k *MailboxProviderKeeper) AssignMailbox(name string, hashCode int) (mailbox.Mailbox, error) {
	p, err := k.Find(name)
	if err != nil {
		return nil, err
	}
	return p.ProvideMailboxFor(hashCode), nil
}

// Close closes all providers in reverse registration order.
func (k *MailboxProviderKeeper) Close() {
	k.mu.Lock()
	order, providers := k.order, k.providers
	k.order, k.providers, k.defaultName = nil, make(map[string]mailbox.Provider), ""
	k.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		providers[order[i]].Close()
	}
}

// CompletesProviderKeeper holds the single completes provider.
type CompletesProviderKeeper struct {
	mu       sync.RWMutex
	provider completes.Provider
}

func NewCompletesProviderKeeper() *CompletesProviderKeeper {
	return &CompletesProviderKeeper{}
}

func (k *CompletesProviderKeeper) Keep(p completes.Provider) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.provider != nil {
		return fmt.Errorf("%w: completes", ErrDuplicateProvider)
	}
	k.provider = p
	return nil
}

func (k *CompletesProviderKeeper) Find() (completes.Provider, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.provider == nil {
		return nil, fmt.Errorf("%w: completes", ErrNoDefaultProvider)
	}
	return k.provider, nil
}

func (k *CompletesProviderKeeper) Close() {
	k.mu.Lock()
	p := k.provider
	k.provider = nil
	k.mu.Unlock()
	if p != nil {
		p.Close()
	}
}
