// Package snapshot loads the configuration a check table is resolved from:
// hosts, clusters, plugins, time periods, rulesets and autochecks.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kneutral-org/checkconfig/internal/autochecks"
	"github.com/kneutral-org/checkconfig/internal/checktable"
	"github.com/kneutral-org/checkconfig/internal/host"
	"github.com/kneutral-org/checkconfig/internal/params"
	"github.com/kneutral-org/checkconfig/internal/plugin"
	"github.com/kneutral-org/checkconfig/internal/ruleset"
	"github.com/kneutral-org/checkconfig/internal/timeperiod"
)

// ErrInvalidSnapshot is returned when a snapshot cannot be loaded.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// Snapshot is a loaded, validated configuration. It is never modified after
// loading.
type Snapshot struct {
	Directory   *host.InMemoryDirectory
	Autochecks  *autochecks.MemoryStore
	Rules       *ruleset.Collection
	Plugins     *plugin.Registry
	TimePeriods *timeperiod.Catalog

	Path     string
	LoadedAt time.Time
}

// Load reads and validates a snapshot file.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	snap, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	snap.Path = path
	return snap, nil
}

// Parse decodes and validates a snapshot document.
func Parse(data []byte) (*Snapshot, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}
	return Build(doc)
}

// Build converts a decoded document into a snapshot.
func Build(doc Document) (*Snapshot, error) {
	snap := &Snapshot{LoadedAt: time.Now()}

	var err error
	if snap.Directory, err = buildDirectory(doc); err != nil {
		return nil, invalid(err)
	}
	if snap.Plugins, err = buildPlugins(doc.Plugins); err != nil {
		return nil, invalid(err)
	}
	if snap.TimePeriods, err = buildTimePeriods(doc.TimePeriods); err != nil {
		return nil, invalid(err)
	}
	if snap.Rules, err = buildRules(doc); err != nil {
		return nil, invalid(err)
	}
	if err = snap.Rules.Validate(); err != nil {
		return nil, invalid(err)
	}
	if err = checkTimePeriodReferences(snap.Rules, snap.TimePeriods); err != nil {
		return nil, invalid(err)
	}
	if snap.Autochecks, err = buildAutochecks(doc.Autochecks, snap.Directory); err != nil {
		return nil, invalid(err)
	}

	return snap, nil
}

func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
}

// Resolver returns a check table resolver over the snapshot. A non-nil store
// replaces the snapshot's own autochecks.
func (s *Snapshot) Resolver(store autochecks.Store, config checktable.ResolverConfig) *checktable.Resolver {
	if store == nil {
		store = s.Autochecks
	}
	return checktable.NewResolver(s.Directory, store, s.Rules, s.Plugins, config)
}

// HostNames returns all host and cluster names.
func (s *Snapshot) HostNames() []string {
	return s.Directory.Names()
}

func buildDirectory(doc Document) (*host.InMemoryDirectory, error) {
	dir := host.NewInMemoryDirectory()
	for _, h := range doc.Hosts {
		err := dir.Add(host.Identity{
			Name:               h.Name,
			Tags:               h.Tags,
			Labels:             h.Labels,
			ManagementProtocol: h.ManagementProtocol,
		})
		if err != nil {
			return nil, err
		}
	}
	for _, c := range doc.Clusters {
		if len(c.Nodes) == 0 {
			return nil, fmt.Errorf("%w: cluster %s has no nodes", host.ErrInvalidHost, c.Name)
		}
		err := dir.Add(host.Identity{
			Name:   c.Name,
			Tags:   c.Tags,
			Labels: c.Labels,
			Nodes:  c.Nodes,
		})
		if err != nil {
			return nil, err
		}
	}
	if err := dir.Validate(); err != nil {
		return nil, err
	}
	return dir, nil
}

func buildPlugins(docs []PluginDoc) (*plugin.Registry, error) {
	plugins := make([]plugin.Plugin, 0, len(docs))
	for _, p := range docs {
		plugins = append(plugins, plugin.Plugin{
			Name:              p.Name,
			ServiceName:       p.ServiceName,
			DefaultParameters: p.DefaultParameters,
			CheckRuleset:      p.CheckRuleset,
		})
	}
	return plugin.NewRegistry(plugins...)
}

func buildTimePeriods(docs []TimePeriodDoc) (*timeperiod.Catalog, error) {
	periods := make([]timeperiod.Period, 0, len(docs))
	for _, d := range docs {
		p := timeperiod.Period{
			Name:     d.Name,
			Alias:    d.Alias,
			Timezone: d.Timezone,
			Exclude:  d.Exclude,
		}
		for _, w := range d.Windows {
			window := timeperiod.Window{Start: w.Start, End: w.End}
			for _, day := range w.Days {
				wd, err := timeperiod.ParseWeekday(day)
				if err != nil {
					return nil, fmt.Errorf("time period %s: %w", d.Name, err)
				}
				window.Days = append(window.Days, wd)
			}
			p.Windows = append(p.Windows, window)
		}
		periods = append(periods, p)
	}
	return timeperiod.NewCatalog(periods...)
}

func buildRules(doc Document) (*ruleset.Collection, error) {
	sets := make([]ruleset.Ruleset, 0, len(doc.Rulesets)+len(doc.CheckgroupParameters)+1)

	for _, name := range sortedKeys(doc.Rulesets) {
		if name == checktable.RulesetStaticChecks {
			return nil, fmt.Errorf("%w: %s must be given under static_checks", ruleset.ErrInvalidRule, name)
		}
		rs, err := buildRuleset(name, doc.Rulesets[name])
		if err != nil {
			return nil, err
		}
		sets = append(sets, rs)
	}

	for _, group := range sortedKeys(doc.CheckgroupParameters) {
		name := checktable.CheckgroupRuleset(group)
		if _, dup := doc.Rulesets[name]; dup {
			return nil, fmt.Errorf("%w: %s defined twice", ruleset.ErrInvalidRule, name)
		}
		rs, err := buildRuleset(name, doc.CheckgroupParameters[group])
		if err != nil {
			return nil, err
		}
		sets = append(sets, rs)
	}

	if len(doc.StaticChecks) > 0 {
		rs, err := buildStaticChecks(doc.StaticChecks)
		if err != nil {
			return nil, err
		}
		sets = append(sets, rs)
	}

	return ruleset.NewCollection(sets...), nil
}

func buildRuleset(name string, d RulesetDoc) (ruleset.Ruleset, error) {
	policy, err := ruleset.ParsePolicy(d.Policy)
	if err != nil {
		return ruleset.Ruleset{}, fmt.Errorf("ruleset %s: %w", name, err)
	}
	rs := ruleset.Ruleset{Name: name, Policy: policy, Rules: make([]ruleset.Rule, 0, len(d.Rules))}
	for _, r := range d.Rules {
		rs.Rules = append(rs.Rules, buildRule(r, r.Value))
	}
	return rs, nil
}

// buildStaticChecks flattens the per-checkgroup static check lists into one
// ruleset. Groups are taken in name order; rule order within a group is kept.
func buildStaticChecks(groups map[string][]RuleDoc) (ruleset.Ruleset, error) {
	rs := ruleset.Ruleset{Name: checktable.RulesetStaticChecks, Policy: ruleset.PolicyAll}
	for _, group := range sortedKeys(groups) {
		for i, r := range groups[group] {
			sc, err := checktable.ParseStaticCheck(normalizeValue(r.Value))
			if err != nil {
				return ruleset.Ruleset{}, fmt.Errorf("static_checks %s rule %d: %w", group, i, err)
			}
			sc.CheckGroup = group
			rs.Rules = append(rs.Rules, buildRule(r, sc))
		}
	}
	return rs, nil
}

func buildRule(r RuleDoc, value any) ruleset.Rule {
	cond := ruleset.Condition{
		HostNames:       r.Condition.HostName,
		HostNamesNegate: r.Condition.HostNameNegate,
		HostLabels:      r.Condition.HostLabels,
		Services:        r.Condition.ServiceDescription,
		ServicesNegate:  r.Condition.ServiceDescriptionNegate,
	}
	if len(r.Condition.HostTags) > 0 {
		cond.HostTags = make(map[string]ruleset.TagPredicate, len(r.Condition.HostTags))
		for group, tag := range r.Condition.HostTags {
			cond.HostTags[group] = ruleset.TagPredicate{OneOf: tag.OneOf, Negate: tag.Negate}
		}
	}
	return ruleset.Rule{
		ID:        r.ID,
		Condition: cond,
		Value:     normalizeValue(value),
		Disabled:  r.Disabled,
		Comment:   r.Comment,
	}
}

// checkTimePeriodReferences rejects time-specific values naming undefined
// periods.
func checkTimePeriodReferences(rules *ruleset.Collection, periods *timeperiod.Catalog) error {
	for _, name := range rules.Names() {
		rs, _ := rules.Ruleset(name)
		for i, r := range rs.Rules {
			value := r.Value
			if sc, ok := value.(checktable.StaticCheck); ok {
				value = sc.Parameters
			}
			if _, isMap := value.(map[string]any); !isMap {
				continue
			}
			set, err := params.SetFromValue(value)
			if err != nil {
				return fmt.Errorf("ruleset %s rule %d: %w", name, i, err)
			}
			for _, tpv := range set.TimePeriodValues {
				if !periods.Has(tpv.TimePeriod) {
					return fmt.Errorf("ruleset %s rule %d: %w: %s", name, i, timeperiod.ErrUnknownTimePeriod, tpv.TimePeriod)
				}
			}
		}
	}
	return nil
}

func buildAutochecks(docs map[string][]autochecks.Entry, dir *host.InMemoryDirectory) (*autochecks.MemoryStore, error) {
	store := autochecks.NewMemoryStore()
	for _, hostName := range sortedKeys(docs) {
		if _, err := dir.Identity(context.Background(), hostName); err != nil {
			return nil, fmt.Errorf("autochecks: %w", err)
		}
		entries := docs[hostName]
		for i, e := range entries {
			if e.Plugin == "" {
				return nil, fmt.Errorf("autochecks of %s entry %d: %w: empty plugin name", hostName, i, plugin.ErrInvalidPlugin)
			}
		}
		store.Set(hostName, entries)
	}
	return store, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Holder publishes the current snapshot to concurrent readers.
type Holder struct {
	current atomic.Pointer[Snapshot]
}

// NewHolder creates a holder with an initial snapshot.
func NewHolder(initial *Snapshot) *Holder {
	h := &Holder{}
	h.current.Store(initial)
	return h
}

// Load returns the current snapshot.
func (h *Holder) Load() *Snapshot {
	return h.current.Load()
}

// Swap replaces the current snapshot and returns the previous one.
func (h *Holder) Swap(next *Snapshot) *Snapshot {
	return h.current.Swap(next)
}
