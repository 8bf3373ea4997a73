// Package config loads runtime properties from YAML or JSON files, raw
// bytes or maps. Keys are dot separated ("plugin.queueMailbox.size").
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	delim         = "."
	pluginPrefix  = "plugin"
	enabledPrefix = "plugin.name"
)

type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Properties is a read-mostly view over a koanf tree. A nil *Properties
// behaves as empty and returns defaults.
type Properties struct {
	k *koanf.Koanf
}

func New() *Properties {
	return &Properties{k: koanf.New(delim)}
}

func parserFor(f Format) (koanf.Parser, error) {
	switch f {
	case FormatYAML:
		return yaml.Parser(), nil
	case FormatJSON:
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config format %q", f)
	}
}

// Load reads a .yaml, .yml or .json file.
func Load(path string) (*Properties, error) {
	format := FormatYAML
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = FormatJSON
	}
	parser, err := parserFor(format)
	if err != nil {
		return nil, err
	}
	p := New()
	if err := p.k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return p, nil
}

func Parse(data []byte, format Format) (*Properties, error) {
	parser, err := parserFor(format)
	if err != nil {
		return nil, err
	}
	p := New()
	if err := p.k.Load(rawbytes.Provider(data), parser); err != nil {
		return nil, fmt.Errorf("parse %s config: %w", format, err)
	}
	return p, nil
}

// FromMap builds properties from flat ("a.b": 1) or nested maps.
func FromMap(values map[string]any) *Properties {
	p := New()
	for key, v := range values {
		_ = p.k.Set(key, v)
	}
	return p
}

func (p *Properties) Set(key string, value any) error {
	return p.k.Set(key, value)
}

func (p *Properties) has(key string) bool {
	return p != nil && p.k != nil && p.k.Exists(key)
}

func (p *Properties) Int(key string, def int) int {
	if !p.has(key) {
		return def
	}
	return p.k.Int(key)
}

func (p *Properties) Float(key string, def float64) float64 {
	if !p.has(key) {
		return def
	}
	return p.k.Float64(key)
}

func (p *Properties) Bool(key string, def bool) bool {
	if !p.has(key) {
		return def
	}
	return p.k.Bool(key)
}

func (p *Properties) String(key string, def string) string {
	if !p.has(key) {
		return def
	}
	return p.k.String(key)
}

// Millis reads an integer number of milliseconds.
func (p *Properties) Millis(key string, def time.Duration) time.Duration {
	if !p.has(key) {
		return def
	}
	return time.Duration(p.k.Int64(key)) * time.Millisecond
}

// Sub returns the subtree under prefix. Missing prefixes yield empty properties.
func (p *Properties) Sub(prefix string) *Properties {
	if !p.has(prefix) {
		return New()
	}
	return &Properties{k: p.k.Cut(prefix)}
}

// Slices returns each element of a list of maps as properties.
func (p *Properties) Slices(key string) []*Properties {
	if !p.has(key) {
		return nil
	}
	var out []*Properties
	for _, k := range p.k.Slices(key) {
		out = append(out, &Properties{k: k})
	}
	return out
}

func (p *Properties) Keys() []string {
	if p == nil || p.k == nil {
		return nil
	}
	return p.k.Keys()
}

// EnabledPlugins lists the names set to true under "plugin.name", sorted.
func (p *Properties) EnabledPlugins() []string {
	if !p.has(enabledPrefix) {
		return nil
	}
	var names []string
	for _, name := range p.k.MapKeys(enabledPrefix) {
		if p.k.Bool(enabledPrefix + delim + name) {
			names = append(names, name)
		}
	}
	return names
}

// Plugin returns the settings of the named plugin ("plugin.<name>.*").
func (p *Properties) Plugin(name string) *Properties {
	return p.Sub(pluginPrefix + delim + name)
}
