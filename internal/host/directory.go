package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrHostNotFound is returned when a host is not known to the directory.
	ErrHostNotFound = errors.New("host not found")
	// ErrDuplicateHost is returned when a host name is registered twice.
	ErrDuplicateHost = errors.New("duplicate host")
	// ErrInvalidHost is returned for an identity that cannot be registered.
	ErrInvalidHost = errors.New("invalid host")
)

// Directory looks up host identities and cluster membership.
type Directory interface {
	// Identity returns the identity of a host or cluster.
	Identity(ctx context.Context, name string) (Identity, error)

	// ClustersOf returns the clusters a node belongs to, in lexical order.
	ClustersOf(ctx context.Context, node string) ([]string, error)
}

// InMemoryDirectory is an in-memory implementation of Directory.
type InMemoryDirectory struct {
	mu         sync.RWMutex
	hosts      map[string]Identity
	clustersOf map[string]map[string]struct{}
}

// NewInMemoryDirectory creates an empty directory.
func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{
		hosts:      make(map[string]Identity),
		clustersOf: make(map[string]map[string]struct{}),
	}
}

// Add registers a host or cluster. Cluster nodes may be registered later.
func (d *InMemoryDirectory) Add(id Identity) error {
	id.Name = NormalizeName(id.Name)
	if id.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidHost)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.hosts[id.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHost, id.Name)
	}

	for _, node := range id.Nodes {
		if node == id.Name {
			return fmt.Errorf("%w: cluster %s lists itself as node", ErrInvalidHost, id.Name)
		}
	}

	stored := id.Clone()
	d.hosts[id.Name] = stored

	for _, node := range stored.Nodes {
		if d.clustersOf[node] == nil {
			d.clustersOf[node] = make(map[string]struct{})
		}
		d.clustersOf[node][stored.Name] = struct{}{}
	}

	return nil
}

// Identity implements Directory.
func (d *InMemoryDirectory) Identity(ctx context.Context, name string) (Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.hosts[NormalizeName(name)]
	if !ok {
		return Identity{}, fmt.Errorf("%w: %s", ErrHostNotFound, name)
	}
	return id.Clone(), nil
}

// ClustersOf implements Directory.
func (d *InMemoryDirectory) ClustersOf(ctx context.Context, node string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if _, ok := d.hosts[node]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrHostNotFound, node)
	}
	return sortedNames(d.clustersOf[node]), nil
}

// Names returns every registered host and cluster name in lexical order.
func (d *InMemoryDirectory) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	set := make(map[string]struct{}, len(d.hosts))
	for name := range d.hosts {
		set[name] = struct{}{}
	}
	return sortedNames(set)
}

// Validate checks that every cluster node is registered.
func (d *InMemoryDirectory) Validate() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for node, clusters := range d.clustersOf {
		if _, ok := d.hosts[node]; !ok {
			return fmt.Errorf("%w: node %s of cluster(s) %v is not defined", ErrInvalidHost, node, sortedNames(clusters))
		}
		if d.hosts[node].IsCluster() {
			return fmt.Errorf("%w: cluster %s cannot be a node", ErrInvalidHost, node)
		}
	}
	return nil
}

// Len returns the number of registered hosts and clusters.
func (d *InMemoryDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.hosts)
}
