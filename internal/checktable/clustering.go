package checktable

import (
	"github.com/kneutral-org/checkconfig/internal/host"
	"github.com/kneutral-org/checkconfig/internal/metrics"
	"github.com/kneutral-org/checkconfig/internal/ruleset"
	"github.com/kneutral-org/checkconfig/internal/service"
)

// owner returns the cluster a node's service belongs to, or "" when the node
// keeps it. An explicit clustered_services_mapping naming one of the node's
// clusters wins; otherwise a true clustered_services value assigns the
// service to the node's lexically first cluster.
func (p *pass) owner(node host.Identity, description string) (string, error) {
	key := ownerKey{node: node.Name, description: description}
	if owner, ok := p.owners[key]; ok {
		return owner, nil
	}

	owner, err := p.computeOwner(node, description)
	if err != nil {
		return "", err
	}
	p.owners[key] = owner
	return owner, nil
}

func (p *pass) computeOwner(node host.Identity, description string) (string, error) {
	clusters, err := p.clustersOf(node.Name)
	if err != nil {
		return "", err
	}
	if len(clusters) == 0 {
		return "", nil
	}

	target := ruleset.ForService(node, description)

	if rs, ok := p.r.rules.Ruleset(RulesetClusteredServicesMapping); ok {
		values, err := p.evaluateAll(rs, target)
		if err != nil {
			return "", err
		}
		for _, v := range values {
			name, ok := v.(string)
			if !ok {
				continue
			}
			for _, cluster := range clusters {
				if cluster == name {
					return cluster, nil
				}
			}
		}
	}

	rs, ok := p.r.rules.Ruleset(RulesetClusteredServices)
	if !ok {
		return "", nil
	}
	metrics.RecordRuleEvaluation(rs.Name)
	clustered, err := p.r.evaluator.AnyTrue(rs, target)
	if err != nil {
		return "", err
	}
	if clustered {
		return clusters[0], nil
	}
	return "", nil
}

// clusterTable builds the table of a cluster: discovered services its nodes
// hand over to it, then enforced services of the cluster and of its nodes.
// Node services are folded in by node declaration order; the first
// occurrence of a service ID wins.
func (p *pass) clusterTable(cluster host.Identity) (service.Table, error) {
	if table, ok := p.clusters[cluster.Name]; ok {
		return table, nil
	}

	table := make(service.Table)

	if !cluster.IsPingOnly() {
		for _, nodeName := range cluster.Nodes {
			node, err := p.identity(nodeName)
			if err != nil {
				return nil, err
			}
			entries, err := p.sourcedAutochecks(node)
			if err != nil {
				return nil, err
			}
			for _, entry := range entries {
				sid := entry.ID()
				if _, exists := table[sid]; exists {
					continue
				}
				desc := p.r.plugins.Description(sid.Plugin, sid.Item)
				owner, err := p.owner(node, desc)
				if err != nil {
					return nil, err
				}
				if owner != cluster.Name {
					continue
				}
				svc, err := p.discoveredService(entry, cluster)
				if err != nil {
					return nil, err
				}
				table[sid] = svc
			}
		}
	}

	direct, err := p.enforcedServices(cluster)
	if err != nil {
		return nil, err
	}
	enforcedHere := make(map[service.ID]bool, len(direct))
	for _, svc := range direct {
		enforcedHere[svc.ID] = true
	}

	for _, nodeName := range cluster.Nodes {
		node, err := p.identity(nodeName)
		if err != nil {
			return nil, err
		}
		inherited, err := p.enforcedServices(node)
		if err != nil {
			return nil, err
		}
		for _, svc := range inherited {
			if enforcedHere[svc.ID] {
				continue
			}
			owner, err := p.owner(node, svc.Description)
			if err != nil {
				return nil, err
			}
			if owner != cluster.Name {
				continue
			}
			enforcedHere[svc.ID] = true
			table[svc.ID] = svc
		}
	}

	for _, svc := range direct {
		table[svc.ID] = svc
	}

	table, err = p.dropIgnored(cluster, table)
	if err != nil {
		return nil, err
	}

	p.clusters[cluster.Name] = table
	return table, nil
}
