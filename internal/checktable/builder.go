package checktable

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kneutral-org/checkconfig/internal/autochecks"
	"github.com/kneutral-org/checkconfig/internal/host"
	"github.com/kneutral-org/checkconfig/internal/metrics"
	"github.com/kneutral-org/checkconfig/internal/params"
	"github.com/kneutral-org/checkconfig/internal/plugin"
	"github.com/kneutral-org/checkconfig/internal/ruleset"
	"github.com/kneutral-org/checkconfig/internal/service"
)

// pass holds the lookups of a single resolution. Nothing in it outlives the
// request.
type pass struct {
	ctx    context.Context
	r      *Resolver
	logger zerolog.Logger

	identities map[string]host.Identity
	discovered map[string][]autochecks.Entry
	owners     map[ownerKey]string
	clusterOf  map[string][]string
	clusters   map[string]service.Table
}

type ownerKey struct {
	node        string
	description string
}

func newPass(ctx context.Context, r *Resolver, logger zerolog.Logger) *pass {
	return &pass{
		ctx:        ctx,
		r:          r,
		logger:     logger,
		identities: make(map[string]host.Identity),
		discovered: make(map[string][]autochecks.Entry),
		owners:     make(map[ownerKey]string),
		clusterOf:  make(map[string][]string),
		clusters:   make(map[string]service.Table),
	}
}

func (p *pass) resolve(hostName string, mode FilterMode) (service.Table, error) {
	id, err := p.identity(hostName)
	if err != nil {
		return nil, err
	}
	if id.IsCluster() {
		return p.clusterTable(id)
	}
	return p.nodeTable(id, mode)
}

// nodeTable builds the table of a plain host or cluster node. Enforced
// services are kept even when the host is ping-only.
func (p *pass) nodeTable(id host.Identity, mode FilterMode) (service.Table, error) {
	clusters, err := p.clustersOf(id.Name)
	if err != nil {
		return nil, err
	}

	table := make(service.Table)

	entries, err := p.sourcedAutochecks(id)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		desc := p.r.plugins.Description(plugin.NormalizeName(entry.Plugin), entry.Item)
		if len(clusters) > 0 {
			owner, err := p.owner(id, desc)
			if err != nil {
				return nil, err
			}
			if owner != "" {
				p.logger.Debug().
					Str("service", desc).
					Str("cluster", owner).
					Msg("discovered service handed over to cluster")
				metrics.RecordClusteredService()
				continue
			}
		}
		sid := entry.ID()
		if _, exists := table[sid]; exists {
			continue
		}
		svc, err := p.discoveredService(entry, id)
		if err != nil {
			return nil, err
		}
		table[sid] = svc
	}

	enforced, err := p.enforcedServices(id)
	if err != nil {
		return nil, err
	}
	for _, svc := range enforced {
		if len(clusters) > 0 {
			owner, err := p.owner(id, svc.Description)
			if err != nil {
				return nil, err
			}
			if owner != "" {
				p.logger.Debug().
					Str("service", svc.Description).
					Str("cluster", owner).
					Msg("enforced service handed over to cluster")
				continue
			}
		}
		table[svc.ID] = svc
	}

	if mode == FilterIncludeClustered {
		for _, clusterName := range clusters {
			clusterID, err := p.identity(clusterName)
			if err != nil {
				return nil, err
			}
			clusterTable, err := p.clusterTable(clusterID)
			if err != nil {
				return nil, err
			}
			for _, sid := range clusterTable.IDs() {
				svc := clusterTable[sid]
				owner, err := p.owner(id, svc.Description)
				if err != nil {
					return nil, err
				}
				if owner == clusterName {
					table[sid] = svc
				}
			}
		}
	}

	return p.dropIgnored(id, table)
}

// sourcedAutochecks returns the discovered entries of a host that its data
// sources can produce. Ping-only hosts yield nothing; management plugins
// require a management board; everything else requires agent or SNMP data.
func (p *pass) sourcedAutochecks(id host.Identity) ([]autochecks.Entry, error) {
	if id.IsPingOnly() {
		p.logger.Debug().Str("node", id.Name).Msg("ping-only host, skipping autochecks")
		return nil, nil
	}

	entries, err := p.autochecks(id.Name)
	if err != nil {
		return nil, err
	}

	sourced := make([]autochecks.Entry, 0, len(entries))
	for _, entry := range entries {
		if plugin.IsManagementPlugin(plugin.NormalizeName(entry.Plugin)) {
			if id.HasManagementBoard() {
				sourced = append(sourced, entry)
			}
			continue
		}
		if id.HasHostData() {
			sourced = append(sourced, entry)
		}
	}
	return sourced, nil
}

// discoveredService builds a discovered service. Parameters are evaluated
// for paramHost, the cluster for clustered services.
func (p *pass) discoveredService(entry autochecks.Entry, paramHost host.Identity) (service.ConfiguredService, error) {
	sid := entry.ID()
	if !p.r.plugins.Exists(sid.Plugin) {
		return p.unimplemented(sid, false), nil
	}

	layers, err := p.checkgroupLayers(paramHost, sid)
	if err != nil {
		return service.ConfiguredService{}, err
	}

	defaults := p.r.plugins.DefaultParameters(sid.Plugin)
	if defaults.IsNone() {
		defaults = params.Dict(nil)
	}
	layers = append(layers, params.SetFromParameters(defaults.Update(entry.Parameters)))

	discovered := entry.Parameters
	if discovered.IsNone() {
		discovered = params.Dict(nil)
	}

	return service.ConfiguredService{
		ID:                   sid,
		Description:          p.r.plugins.Description(sid.Plugin, sid.Item),
		Parameters:           params.NewTimespecific(layers...),
		DiscoveredParameters: discovered,
		Labels:               copyLabels(entry.ServiceLabels),
		IsEnforced:           false,
	}, nil
}

// enforcedServices evaluates static_checks for a host. The earlier rule wins
// when two rules enforce the same service.
func (p *pass) enforcedServices(id host.Identity) ([]service.ConfiguredService, error) {
	rs, ok := p.r.rules.Ruleset(RulesetStaticChecks)
	if !ok {
		return nil, nil
	}

	values, err := p.evaluateAll(rs, ruleset.ForHost(id))
	if err != nil {
		return nil, err
	}

	seen := make(map[service.ID]bool, len(values))
	services := make([]service.ConfiguredService, 0, len(values))
	for _, v := range values {
		sc, err := ParseStaticCheck(v)
		if err != nil {
			return nil, fmt.Errorf("ruleset %s for %s: %w", RulesetStaticChecks, id.Name, err)
		}
		sid := sc.ID()
		if seen[sid] {
			continue
		}
		seen[sid] = true

		if !p.r.plugins.Exists(sid.Plugin) {
			services = append(services, p.unimplemented(sid, true))
			continue
		}

		explicitValue := sc.Parameters
		if explicitValue == nil {
			explicitValue = map[string]any{}
		}
		explicit, err := params.SetFromValue(explicitValue)
		if err != nil {
			return nil, fmt.Errorf("static check %s on %s: %w", sid, id.Name, err)
		}

		defaults := p.r.plugins.DefaultParameters(sid.Plugin)
		if defaults.IsNone() {
			defaults = params.Dict(nil)
		}

		services = append(services, service.ConfiguredService{
			ID:                   sid,
			Description:          p.r.plugins.Description(sid.Plugin, sid.Item),
			Parameters:           params.NewTimespecific(explicit, params.SetFromParameters(defaults)),
			DiscoveredParameters: params.Dict(nil),
			IsEnforced:           true,
		})
	}
	return services, nil
}

// checkgroupLayers evaluates the plugin's checkgroup parameter ruleset for a
// host and the service item. Item-less services match on the host only.
func (p *pass) checkgroupLayers(id host.Identity, sid service.ID) ([]params.TimespecificParameterSet, error) {
	group, ok := p.r.plugins.CheckRuleset(sid.Plugin)
	if !ok {
		return nil, nil
	}
	rs, ok := p.r.rules.Ruleset(CheckgroupRuleset(group))
	if !ok {
		return nil, nil
	}

	target := ruleset.ForHost(id)
	if sid.Item != "" {
		target = ruleset.ForService(id, sid.Item)
	}

	metrics.RecordRuleEvaluation(rs.Name)
	values, err := p.r.evaluator.Evaluate(rs, target)
	if err != nil {
		return nil, err
	}

	layers := make([]params.TimespecificParameterSet, 0, len(values)+1)
	for _, v := range values {
		layer, err := params.SetFromValue(v)
		if err != nil {
			return nil, fmt.Errorf("ruleset %s for %s: %w", rs.Name, id.Name, err)
		}
		layers = append(layers, layer)
	}
	return layers, nil
}

// unimplemented builds the placeholder for a plugin missing from the catalog.
func (p *pass) unimplemented(sid service.ID, enforced bool) service.ConfiguredService {
	p.logger.Debug().Str("plugin", sid.Plugin).Str("item", sid.Item).Msg("plugin not in catalog")
	metrics.RecordUnimplementedService()

	return service.ConfiguredService{
		ID:                   sid,
		Description:          plugin.UnimplementedDescription(sid.Plugin, sid.Item),
		Parameters:           params.NewTimespecific(),
		DiscoveredParameters: params.Dict(nil),
		IsEnforced:           enforced,
	}
}

// dropIgnored removes services matched by ignored_services for the host.
func (p *pass) dropIgnored(id host.Identity, table service.Table) (service.Table, error) {
	rs, ok := p.r.rules.Ruleset(RulesetIgnoredServices)
	if !ok || len(rs.Rules) == 0 {
		return table, nil
	}

	metrics.RecordRuleEvaluation(rs.Name)
	for sid, svc := range table {
		ignored, err := p.r.evaluator.AnyTrue(rs, ruleset.ForService(id, svc.Description))
		if err != nil {
			return nil, err
		}
		if ignored {
			p.logger.Debug().Str("service", svc.Description).Msg("service ignored")
			delete(table, sid)
		}
	}
	return table, nil
}

func (p *pass) evaluateAll(rs ruleset.Ruleset, target ruleset.Target) ([]any, error) {
	metrics.RecordRuleEvaluation(rs.Name)
	return p.r.evaluator.All(rs, target)
}

func (p *pass) identity(name string) (host.Identity, error) {
	if id, ok := p.identities[name]; ok {
		return id, nil
	}
	id, err := p.r.directory.Identity(p.ctx, name)
	if err != nil {
		return host.Identity{}, err
	}
	p.identities[name] = id
	return id, nil
}

func (p *pass) clustersOf(node string) ([]string, error) {
	if clusters, ok := p.clusterOf[node]; ok {
		return clusters, nil
	}
	clusters, err := p.r.directory.ClustersOf(p.ctx, node)
	if err != nil {
		return nil, err
	}
	p.clusterOf[node] = clusters
	return clusters, nil
}

func (p *pass) autochecks(hostName string) ([]autochecks.Entry, error) {
	if entries, ok := p.discovered[hostName]; ok {
		return entries, nil
	}

	start := time.Now()
	entries, err := p.r.autochecks.Autochecks(p.ctx, hostName)
	metrics.RecordAutochecksQuery(p.r.config.AutochecksBackend, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("autochecks of %s: %w", hostName, err)
	}

	p.discovered[hostName] = entries
	return entries, nil
}

func copyLabels(labels map[string]string) map[string]string {
	if len(labels) == 0 {
		return nil
	}
	cp := make(map[string]string, len(labels))
	for k, v := range labels {
		cp[k] = v
	}
	return cp
}
