package host

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryDirectory_AddAndIdentity(t *testing.T) {
	dir := NewInMemoryDirectory()
	ctx := context.Background()

	require.NoError(t, dir.Add(Identity{Name: "node1", Tags: map[string]string{"criticality": "prod"}}))
	require.NoError(t, dir.Add(Identity{Name: "cluster1", Nodes: []string{"node1"}}))

	id, err := dir.Identity(ctx, "node1")
	require.NoError(t, err)
	assert.Equal(t, "node1", id.Name)
	assert.False(t, id.IsCluster())

	// Returned identities are copies.
	id.Tags["criticality"] = "test"
	again, err := dir.Identity(ctx, "node1")
	require.NoError(t, err)
	assert.Equal(t, "prod", again.Tags["criticality"])

	cluster, err := dir.Identity(ctx, "cluster1")
	require.NoError(t, err)
	assert.True(t, cluster.IsCluster())
	assert.Equal(t, []string{"node1"}, cluster.Nodes)
}

func TestInMemoryDirectory_NotFound(t *testing.T) {
	dir := NewInMemoryDirectory()

	_, err := dir.Identity(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHostNotFound)

	_, err = dir.ClustersOf(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrHostNotFound)
}

func TestInMemoryDirectory_Duplicate(t *testing.T) {
	dir := NewInMemoryDirectory()
	require.NoError(t, dir.Add(Identity{Name: "node1"}))

	err := dir.Add(Identity{Name: "node1"})
	assert.ErrorIs(t, err, ErrDuplicateHost)

	err = dir.Add(Identity{Name: "  "})
	assert.ErrorIs(t, err, ErrInvalidHost)
}

func TestInMemoryDirectory_ClustersOf(t *testing.T) {
	dir := NewInMemoryDirectory()
	ctx := context.Background()

	require.NoError(t, dir.Add(Identity{Name: "node1"}))
	require.NoError(t, dir.Add(Identity{Name: "node2"}))
	require.NoError(t, dir.Add(Identity{Name: "zeta", Nodes: []string{"node1"}}))
	require.NoError(t, dir.Add(Identity{Name: "alpha", Nodes: []string{"node1", "node2"}}))

	clusters, err := dir.ClustersOf(ctx, "node1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, clusters)

	clusters, err = dir.ClustersOf(ctx, "node2")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, clusters)

	assert.Equal(t, []string{"alpha", "node1", "node2", "zeta"}, dir.Names())
	assert.Equal(t, 4, dir.Len())
}

func TestInMemoryDirectory_Validate(t *testing.T) {
	dir := NewInMemoryDirectory()
	require.NoError(t, dir.Add(Identity{Name: "cluster1", Nodes: []string{"ghost"}}))

	err := dir.Validate()
	assert.ErrorIs(t, err, ErrInvalidHost)

	require.NoError(t, dir.Add(Identity{Name: "ghost"}))
	assert.NoError(t, dir.Validate())

	err = dir.Add(Identity{Name: "selfish", Nodes: []string{"selfish"}})
	assert.ErrorIs(t, err, ErrInvalidHost)
}

func TestIdentity_DataSources(t *testing.T) {
	tests := []struct {
		name       string
		identity   Identity
		pingOnly   bool
		hostData   bool
		management bool
	}{
		{
			name:     "default agent host",
			identity: Identity{Name: "a", Tags: map[string]string{"criticality": "test"}},
			hostData: true,
		},
		{
			name:     "no agent no snmp is ping only",
			identity: Identity{Name: "ping-host", Tags: map[string]string{TagGroupAgent: TagNoAgent}},
			pingOnly: true,
		},
		{
			name:     "snmp host",
			identity: Identity{Name: "switch", Tags: map[string]string{TagGroupAgent: TagNoAgent, TagGroupSNMP: "snmp-v2"}},
			hostData: true,
		},
		{
			name: "management board only",
			identity: Identity{
				Name:               "mgmt-board-ipmi",
				Tags:               map[string]string{TagGroupAgent: TagNoAgent, TagGroupSNMP: TagNoSNMP},
				ManagementProtocol: "ipmi",
			},
			management: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.pingOnly, tc.identity.IsPingOnly())
			assert.Equal(t, tc.hostData, tc.identity.HasHostData())
			assert.Equal(t, tc.management, tc.identity.HasManagementBoard())
		})
	}
}
