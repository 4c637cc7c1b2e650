// Package plugin provides the check plugin catalog: service name templates,
// default parameters and the parameter ruleset a plugin uses.
package plugin

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kneutral-org/checkconfig/internal/params"
)

// ManagementPrefix marks plugins that query a management board.
const ManagementPrefix = "mgmt_"

var (
	// ErrDuplicatePlugin is returned when a plugin name is registered twice.
	ErrDuplicatePlugin = errors.New("duplicate plugin")
	// ErrInvalidPlugin is returned for a plugin definition that cannot be registered.
	ErrInvalidPlugin = errors.New("invalid plugin")
)

// Plugin describes one check plugin.
type Plugin struct {
	Name string
	// ServiceName is the description template. A "%s" is replaced by the item.
	ServiceName       string
	DefaultParameters params.Parameters
	// CheckRuleset names the checkgroup parameter ruleset, if any.
	CheckRuleset string
}

// Catalog answers questions about check plugins.
type Catalog interface {
	// Exists reports whether the plugin is known.
	Exists(name string) bool

	// DefaultParameters returns the plugin's default parameters. The result
	// is none when the plugin defines no defaults.
	DefaultParameters(name string) params.Parameters

	// Description renders the service description for a plugin and item.
	Description(name, item string) string

	// CheckRuleset returns the checkgroup parameter ruleset name.
	CheckRuleset(name string) (string, bool)
}

// Registry is an in-memory Catalog.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
}

// NewRegistry creates a registry holding plugins.
func NewRegistry(plugins ...Plugin) (*Registry, error) {
	r := &Registry{plugins: make(map[string]Plugin, len(plugins))}
	for _, p := range plugins {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a plugin. Legacy dotted names are normalised.
func (r *Registry) Register(p Plugin) error {
	p.Name = NormalizeName(strings.TrimSpace(p.Name))
	if p.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidPlugin)
	}
	if p.ServiceName == "" {
		return fmt.Errorf("%w: plugin %s has no service name", ErrInvalidPlugin, p.Name)
	}
	if strings.Count(p.ServiceName, "%s") > 1 {
		return fmt.Errorf("%w: plugin %s service name has more than one item placeholder", ErrInvalidPlugin, p.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[p.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicatePlugin, p.Name)
	}
	r.plugins[p.Name] = p
	return nil
}

// Plugin returns a plugin definition.
func (r *Registry) Plugin(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.plugins[NormalizeName(name)]
	return p, ok
}

// Names returns every registered plugin name in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Exists implements Catalog.
func (r *Registry) Exists(name string) bool {
	_, ok := r.Plugin(name)
	return ok
}

// DefaultParameters implements Catalog.
func (r *Registry) DefaultParameters(name string) params.Parameters {
	p, ok := r.Plugin(name)
	if !ok {
		return params.None()
	}
	return p.DefaultParameters
}

// Description implements Catalog.
func (r *Registry) Description(name, item string) string {
	p, ok := r.Plugin(name)
	if !ok {
		return UnimplementedDescription(name, item)
	}
	return RenderServiceName(p.ServiceName, item)
}

// CheckRuleset implements Catalog.
func (r *Registry) CheckRuleset(name string) (string, bool) {
	p, ok := r.Plugin(name)
	if !ok || p.CheckRuleset == "" {
		return "", false
	}
	return p.CheckRuleset, true
}

// NormalizeName maps legacy dotted plugin names onto current names, e.g.
// "smart.temp" becomes "smart_temp".
func NormalizeName(name string) string {
	return strings.ReplaceAll(name, ".", "_")
}

// IsManagementPlugin reports whether a plugin belongs to the management
// board namespace.
func IsManagementPlugin(name string) bool {
	return strings.HasPrefix(name, ManagementPrefix)
}

// RenderServiceName substitutes an item into a description template.
func RenderServiceName(template, item string) string {
	if !strings.Contains(template, "%s") {
		return template
	}
	return strings.Replace(template, "%s", item, 1)
}

// UnimplementedDescription is the placeholder description for a plugin that
// is not in the catalog.
func UnimplementedDescription(name, item string) string {
	if item == "" {
		return "Unimplemented check " + name
	}
	return "Unimplemented check " + name + " / " + item
}
