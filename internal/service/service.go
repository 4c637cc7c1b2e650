// Package service provides the configured service model and the per-host
// check table.
package service

import (
	"sort"

	"github.com/kneutral-org/checkconfig/internal/params"
)

// ID identifies a service on a host: a check plugin and an item. Item is
// empty for item-less plugins.
type ID struct {
	Plugin string `json:"plugin"`
	Item   string `json:"item,omitempty"`
}

// String renders the ID as "plugin/item" or "plugin".
func (id ID) String() string {
	if id.Item == "" {
		return id.Plugin
	}
	return id.Plugin + "/" + id.Item
}

// Less orders IDs by plugin, then item.
func (id ID) Less(other ID) bool {
	if id.Plugin != other.Plugin {
		return id.Plugin < other.Plugin
	}
	return id.Item < other.Item
}

// ConfiguredService is one resolved service instance.
type ConfiguredService struct {
	ID                   ID                            `json:"id"`
	Description          string                        `json:"description"`
	Parameters           params.TimespecificParameters `json:"-"`
	DiscoveredParameters params.Parameters             `json:"discoveredParameters"`
	Labels               map[string]string             `json:"labels,omitempty"`
	IsEnforced           bool                          `json:"isEnforced"`
}

// Table is the resolved set of services of one host, keyed by ID.
type Table map[ID]ConfiguredService

// IDs returns the table's IDs in sorted order.
func (t Table) IDs() []ID {
	ids := make([]ID, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	return ids
}

// Services returns the table's services ordered by ID.
func (t Table) Services() []ConfiguredService {
	services := make([]ConfiguredService, 0, len(t))
	for _, id := range t.IDs() {
		services = append(services, t[id])
	}
	return services
}

// Descriptions returns the set of service descriptions in the table.
func (t Table) Descriptions() map[string]ID {
	out := make(map[string]ID, len(t))
	for id, svc := range t {
		out[svc.Description] = id
	}
	return out
}

// CountEnforced returns the number of enforced services.
func (t Table) CountEnforced() int {
	n := 0
	for _, svc := range t {
		if svc.IsEnforced {
			n++
		}
	}
	return n
}

// Rendered is a JSON-friendly view of a configured service with its
// parameter layers and the effective parameters at one point in time.
type Rendered struct {
	ID                   ID                                `json:"id"`
	Description          string                            `json:"description"`
	IsEnforced           bool                              `json:"isEnforced"`
	Layers               []params.TimespecificParameterSet `json:"layers"`
	Effective            params.Parameters                 `json:"effective"`
	DiscoveredParameters params.Parameters                 `json:"discoveredParameters"`
	Labels               map[string]string                 `json:"labels,omitempty"`
}

// Render evaluates the service's parameters with isActive.
func (s ConfiguredService) Render(isActive params.ActiveFunc) Rendered {
	layers := s.Parameters.Entries()
	if layers == nil {
		layers = []params.TimespecificParameterSet{}
	}
	return Rendered{
		ID:                   s.ID,
		Description:          s.Description,
		IsEnforced:           s.IsEnforced,
		Layers:               layers,
		Effective:            s.Parameters.EvaluateOr(isActive, params.None()),
		DiscoveredParameters: s.DiscoveredParameters,
		Labels:               s.Labels,
	}
}

// Render renders every service of the table ordered by ID.
func (t Table) Render(isActive params.ActiveFunc) []Rendered {
	out := make([]Rendered, 0, len(t))
	for _, svc := range t.Services() {
		out = append(out, svc.Render(isActive))
	}
	return out
}
