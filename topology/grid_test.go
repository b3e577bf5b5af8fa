package topology_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/relaynet/approvaldist/topology"
	"github.com/relaynet/approvaldist/utils/unittest"
)

// 9 validators arrange into a 3x3 grid. As validator 0, row neighbors
// are {1, 2} and column neighbors are {3, 6}.
func gridFixture() *topology.SessionGridTopology {
	return unittest.TopologyFixture(1, 9, 0)
}

func TestRequiredRoutingByIndex(t *testing.T) {
	topo := gridFixture()

	// our own messages go both ways
	assert.Equal(t, topology.RouteGridXY, topo.RequiredRoutingByIndex(0, true))

	// same row propagates along our column, and vice versa
	assert.Equal(t, topology.RouteGridY, topo.RequiredRoutingByIndex(1, false))
	assert.Equal(t, topology.RouteGridY, topo.RequiredRoutingByIndex(2, false))
	assert.Equal(t, topology.RouteGridX, topo.RequiredRoutingByIndex(3, false))
	assert.Equal(t, topology.RouteGridX, topo.RequiredRoutingByIndex(6, false))

	// unrelated originators need no structured pass from us
	assert.Equal(t, topology.RouteNone, topo.RequiredRoutingByIndex(4, false))
	assert.Equal(t, topology.RouteNone, topo.RequiredRoutingByIndex(8, false))
}

func TestRouteToPeer(t *testing.T) {
	topo := gridFixture()

	rowPeer := unittest.PeerIDForValidator(1)
	colPeer := unittest.PeerIDForValidator(6)
	farPeer := unittest.PeerIDForValidator(4)

	assert.True(t, topo.RouteToPeer(topology.RouteGridX, rowPeer))
	assert.False(t, topo.RouteToPeer(topology.RouteGridX, colPeer))
	assert.True(t, topo.RouteToPeer(topology.RouteGridY, colPeer))
	assert.True(t, topo.RouteToPeer(topology.RouteGridXY, rowPeer))
	assert.True(t, topo.RouteToPeer(topology.RouteGridXY, colPeer))
	assert.False(t, topo.RouteToPeer(topology.RouteGridXY, farPeer))
	assert.True(t, topo.RouteToPeer(topology.RouteAll, farPeer))
	assert.False(t, topo.RouteToPeer(topology.RouteNone, rowPeer))
	assert.False(t, topo.RouteToPeer(topology.RoutePendingTopology, rowPeer))
}

func TestNonValidatorObserver(t *testing.T) {
	topo := topology.NewSessionGridTopology(1, 0, false, unittest.TopologyEntriesFixture(9))

	assert.Equal(t, topology.RouteNone, topo.RequiredRoutingByIndex(1, false))
	assert.True(t, topo.IsValidatorPeer(unittest.PeerIDForValidator(4)))
	assert.Equal(t, 9, topo.ValidatorCount())
}

func TestIsValidatorPeer(t *testing.T) {
	topo := gridFixture()

	assert.True(t, topo.IsValidatorPeer(unittest.PeerIDForValidator(8)))
	assert.False(t, topo.IsValidatorPeer(unittest.IdentifierFixture()))
}

// TestCombineProperties checks the join over random routing pairs:
// commutativity, idempotence, and that the result covers both inputs.
func TestCombineProperties(t *testing.T) {
	routings := []topology.RequiredRouting{
		topology.RoutePendingTopology,
		topology.RouteNone,
		topology.RouteGridX,
		topology.RouteGridY,
		topology.RouteGridXY,
		topology.RouteAll,
	}
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.SampledFrom(routings).Draw(t, "a")
		b := rapid.SampledFrom(routings).Draw(t, "b")

		combined := a.Combine(b)
		require.Equal(t, combined, b.Combine(a))
		require.Equal(t, a, a.Combine(a))
		require.True(t, combined.Covers(a))
		require.True(t, combined.Covers(b))
	})
}

func TestSessionTopologiesRefCounting(t *testing.T) {
	store := topology.NewSessionTopologies(zerolog.Nop())

	require.Nil(t, store.Get(1))

	store.IncRef(1) // block arrives before the topology
	store.Insert(gridFixture())
	require.NotNil(t, store.Get(1))

	store.IncRef(1)
	store.DecRef(1)
	require.NotNil(t, store.Get(1))

	// last reference released, topology forgotten
	store.DecRef(1)
	assert.Nil(t, store.Get(1))
}

func TestRoutingString(t *testing.T) {
	assert.Equal(t, "grid-xy", topology.RouteGridXY.String())
	assert.Equal(t, "all", topology.RouteAll.String())
	assert.Equal(t, "invalid", topology.RequiredRouting(99).String())
}

func TestCoversMonotone(t *testing.T) {
	assert.True(t, topology.RouteAll.Covers(topology.RouteGridXY))
	assert.True(t, topology.RouteGridXY.Covers(topology.RouteGridX))
	assert.True(t, topology.RouteGridXY.Covers(topology.RouteGridY))
	assert.False(t, topology.RouteGridX.Covers(topology.RouteGridY))
	assert.False(t, topology.RouteNone.Covers(topology.RouteGridX))
}
