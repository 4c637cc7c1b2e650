package checktable

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kneutral-org/checkconfig/internal/autochecks"
	"github.com/kneutral-org/checkconfig/internal/host"
	"github.com/kneutral-org/checkconfig/internal/params"
	"github.com/kneutral-org/checkconfig/internal/plugin"
	"github.com/kneutral-org/checkconfig/internal/ruleset"
	"github.com/kneutral-org/checkconfig/internal/service"
)

var smartDefaults = map[string]any{"levels": []any{35, 40}}

// scenario assembles the collaborators of a resolver for one test.
type scenario struct {
	t        *testing.T
	dir      *host.InMemoryDirectory
	store    *autochecks.MemoryStore
	rulesets map[string]ruleset.Ruleset
	plugins  *plugin.Registry
}

func newScenario(t *testing.T) *scenario {
	t.Helper()
	plugins, err := plugin.NewRegistry(
		plugin.Plugin{
			Name:              "smart_temp",
			ServiceName:       "Temperature SMART %s",
			DefaultParameters: params.Dict(smartDefaults),
			CheckRuleset:      "temperature",
		},
		plugin.Plugin{Name: "df", ServiceName: "Filesystem %s", CheckRuleset: "filesystem"},
		plugin.Plugin{Name: "ps", ServiceName: "Process %s", DefaultParameters: params.Dict(nil), CheckRuleset: "ps"},
		plugin.Plugin{Name: "uptime", ServiceName: "Uptime", CheckRuleset: "uptime"},
		plugin.Plugin{Name: "ipmi_sensors", ServiceName: "IPMI Sensor %s"},
		plugin.Plugin{Name: "mgmt_ipmi_sensors", ServiceName: "Management Interface: IPMI Sensor %s"},
	)
	require.NoError(t, err)

	return &scenario{
		t:        t,
		dir:      host.NewInMemoryDirectory(),
		store:    autochecks.NewMemoryStore(),
		rulesets: make(map[string]ruleset.Ruleset),
		plugins:  plugins,
	}
}

func (s *scenario) addHost(name string, tags map[string]string) *scenario {
	s.t.Helper()
	require.NoError(s.t, s.dir.Add(host.Identity{Name: name, Tags: tags}))
	return s
}

func (s *scenario) addIdentity(id host.Identity) *scenario {
	s.t.Helper()
	require.NoError(s.t, s.dir.Add(id))
	return s
}

func (s *scenario) addCluster(name string, nodes ...string) *scenario {
	s.t.Helper()
	require.NoError(s.t, s.dir.Add(host.Identity{Name: name, Nodes: nodes}))
	return s
}

func (s *scenario) setAutochecks(hostName string, entries ...autochecks.Entry) *scenario {
	s.store.Set(hostName, entries)
	return s
}

func (s *scenario) setRuleset(name string, policy ruleset.Policy, rules ...ruleset.Rule) *scenario {
	s.rulesets[name] = ruleset.Ruleset{Name: name, Policy: policy, Rules: rules}
	return s
}

func (s *scenario) setStaticChecks(rules ...ruleset.Rule) *scenario {
	return s.setRuleset(RulesetStaticChecks, ruleset.PolicyAll, rules...)
}

func (s *scenario) clusterServices(services []string, hosts ...string) *scenario {
	return s.setRuleset(RulesetClusteredServices, ruleset.PolicyAll, ruleset.Rule{
		Condition: ruleset.Condition{Services: services, HostNames: hosts},
		Value:     true,
	})
}

func (s *scenario) resolver() *Resolver {
	s.t.Helper()
	require.NoError(s.t, s.dir.Validate())

	sets := make([]ruleset.Ruleset, 0, len(s.rulesets))
	for _, rs := range s.rulesets {
		sets = append(sets, rs)
	}
	collection := ruleset.NewCollection(sets...)
	require.NoError(s.t, collection.Validate())

	return NewResolver(s.dir, s.store, collection, s.plugins, DefaultResolverConfig())
}

func entry(pluginName, item string, discovered map[string]any) autochecks.Entry {
	return autochecks.Entry{Plugin: pluginName, Item: item, Parameters: params.Dict(discovered)}
}

func staticRule(hosts []string, pluginName, item string, explicit map[string]any) ruleset.Rule {
	return ruleset.Rule{
		Condition: ruleset.Condition{HostNames: hosts},
		Value:     []any{pluginName, item, explicit},
	}
}

func enforcedSmart(item string, explicit map[string]any) service.ConfiguredService {
	return service.ConfiguredService{
		ID:          service.ID{Plugin: "smart_temp", Item: item},
		Description: "Temperature SMART " + item,
		Parameters: params.NewTimespecific(
			params.SetFromParameters(params.Dict(explicit)),
			params.SetFromParameters(params.Dict(smartDefaults)),
		),
		DiscoveredParameters: params.Dict(nil),
		IsEnforced:           true,
	}
}

func discoveredSmart(item string) service.ConfiguredService {
	return service.ConfiguredService{
		ID:                   service.ID{Plugin: "smart_temp", Item: item},
		Description:          "Temperature SMART " + item,
		Parameters:           params.NewTimespecific(params.SetFromParameters(params.Dict(smartDefaults))),
		DiscoveredParameters: params.Dict(nil),
		IsEnforced:           false,
	}
}

func tableOf(services ...service.ConfiguredService) service.Table {
	table := make(service.Table, len(services))
	for _, svc := range services {
		table[svc.ID] = svc
	}
	return table
}
