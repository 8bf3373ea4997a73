package plugin

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Loader starts plugins by pass and closes the started ones in reverse.
type Loader struct {
	plugins []Plugin

	mu      sync.Mutex
	started []Plugin
}

func NewLoader(plugins ...Plugin) *Loader {
	sorted := slices.Clone(plugins)
	slices.SortStableFunc(sorted, func(a, b Plugin) int { return cmp.Compare(a.Pass(), b.Pass()) })
	return &Loader{plugins: sorted}
}

// Plugins returns the plugins in start order.
func (l *Loader) Plugins() []Plugin { return slices.Clone(l.plugins) }

// Start starts every plugin. On the first error the already started plugins
// are closed and the error is returned.
func (l *Loader) Start(r Registrar) error {
	log := r.Logger()
	for _, p := range l.plugins {
		if err := p.Start(r); err != nil {
			l.Close()
			return fmt.Errorf("start plugin %s: %w", p.Name(), err)
		}
		l.mu.Lock()
		l.started = append(l.started, p)
		l.mu.Unlock()
		log.Debug("plugin started", slog.String("plugin", p.Name()), slog.Int("pass", p.Pass()))
	}
	return nil
}

func (l *Loader) Close() {
	l.mu.Lock()
	started := l.started
	l.started = nil
	l.mu.Unlock()

	for i := len(started) - 1; i >= 0; i-- {
		started[i].Close()
	}
}
