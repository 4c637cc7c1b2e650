// Package host provides host and cluster identities and the directory that
// looks them up.
package host

import (
	"sort"
	"strings"
)

// Well-known tag groups and values used to classify data sources.
const (
	TagGroupAgent = "agent"
	TagGroupSNMP  = "snmp_ds"

	TagNoAgent = "no-agent"
	TagNoSNMP  = "no-snmp"
)

// Identity is everything rules can match a host on. Nodes is non-empty only
// for clusters.
type Identity struct {
	Name               string            `json:"name"`
	Tags               map[string]string `json:"tags,omitempty"`
	Labels             map[string]string `json:"labels,omitempty"`
	Nodes              []string          `json:"nodes,omitempty"`
	ManagementProtocol string            `json:"managementProtocol,omitempty"`
}

// Tag returns the host's value for a tag group.
func (i Identity) Tag(group string) (string, bool) {
	v, ok := i.Tags[group]
	return v, ok
}

// Label returns a host label.
func (i Identity) Label(name string) (string, bool) {
	v, ok := i.Labels[name]
	return v, ok
}

// IsCluster reports whether the identity describes a cluster.
func (i Identity) IsCluster() bool {
	return len(i.Nodes) > 0
}

// HasManagementBoard reports whether a management board protocol is set.
func (i Identity) HasManagementBoard() bool {
	return i.ManagementProtocol != ""
}

// HasAgent reports whether the host is queried through an agent. Hosts
// without an agent tag use the default agent.
func (i Identity) HasAgent() bool {
	v, ok := i.Tag(TagGroupAgent)
	return !ok || v != TagNoAgent
}

// HasSNMP reports whether the host is queried via SNMP.
func (i Identity) HasSNMP() bool {
	v, ok := i.Tag(TagGroupSNMP)
	return ok && v != "" && v != TagNoSNMP
}

// HasHostData reports whether the host delivers agent-namespace data at all.
func (i Identity) HasHostData() bool {
	return i.HasAgent() || i.HasSNMP()
}

// IsPingOnly reports whether the host is only monitored for reachability.
// Such hosts get no discovered services but keep their enforced ones.
func (i Identity) IsPingOnly() bool {
	return !i.HasHostData() && !i.HasManagementBoard()
}

// Clone returns a deep copy.
func (i Identity) Clone() Identity {
	cp := Identity{
		Name:               i.Name,
		ManagementProtocol: i.ManagementProtocol,
	}
	if i.Tags != nil {
		cp.Tags = make(map[string]string, len(i.Tags))
		for k, v := range i.Tags {
			cp.Tags[k] = v
		}
	}
	if i.Labels != nil {
		cp.Labels = make(map[string]string, len(i.Labels))
		for k, v := range i.Labels {
			cp.Labels[k] = v
		}
	}
	if i.Nodes != nil {
		cp.Nodes = append([]string(nil), i.Nodes...)
	}
	return cp
}

// NormalizeName trims a host name. Host names are case-sensitive.
func NormalizeName(name string) string {
	return strings.TrimSpace(name)
}

// sortedNames returns the set's members in lexical order.
func sortedNames(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
