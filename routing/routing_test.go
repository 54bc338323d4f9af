package routing_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katalvlaran/lcdn/routing"
	"github.com/katalvlaran/lcdn/topology"
)

// triangleStore builds three switches fully connected in a triangle, all
// links equal cost (rate/delay identical, so all arcs start at Cost=1).
func triangleStore(t *testing.T) *topology.Store {
	t.Helper()
	st, err := topology.NewStore(4)
	require.NoError(t, err)
	for _, id := range []int{1, 2, 3} {
		require.NoError(t, st.AddNode(id, ""))
	}
	require.NoError(t, st.AddEdge(topology.Edge{ID: 1, U: 1, V: 2, Rate: 1e9, QSize: 1e6}))
	require.NoError(t, st.AddEdge(topology.Edge{ID: 2, U: 2, V: 3, Rate: 1e9, QSize: 1e6}))
	require.NoError(t, st.AddEdge(topology.Edge{ID: 3, U: 1, V: 3, Rate: 1e9, QSize: 1e6}))
	return st
}

func TestKShortestPaths_DirectPathPreferred(t *testing.T) {
	st := triangleStore(t)
	paths, err := routing.KShortestPaths(st, 0, 1, 3, 2, 0)
	require.NoError(t, err)
	require.NotEmpty(t, paths)
	// The direct 1->3 edge costs the same as any single hop; the
	// shortest path must be exactly one arc.
	require.Len(t, paths[0], 1)
	require.Equal(t, topology.ArcID{From: 1, To: 3}, paths[0][0])
}

func TestKShortestPaths_SecondPathIsTwoHop(t *testing.T) {
	st := triangleStore(t)
	paths, err := routing.KShortestPaths(st, 0, 1, 3, 2, 0)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	require.Len(t, paths[1], 2)
}

func TestKShortestPaths_OffsetFallsBackToLastAvailable(t *testing.T) {
	st := triangleStore(t)
	paths, err := routing.KShortestPaths(st, 0, 1, 3, 2, 10)
	require.NoError(t, err)
	require.Len(t, paths, 1)
}

func TestKShortestPaths_NoPath(t *testing.T) {
	st := triangleStore(t)
	require.NoError(t, st.AddNode(9, "isolated"))
	_, err := routing.KShortestPaths(st, 0, 1, 9, 1, 0)
	require.ErrorIs(t, err, routing.ErrNoPath)
}

func TestFlowsRankedByOverlap_DescendingThenByID(t *testing.T) {
	newPath := []topology.ArcID{{From: 1, To: 2}, {From: 2, To: 3}}
	paths := map[int][]topology.ArcID{
		1: {{From: 1, To: 2}},                            // overlap 1
		2: {{From: 1, To: 2}, {From: 2, To: 3}},           // overlap 2
		3: {{From: 5, To: 6}},                             // overlap 0
		4: {{From: 1, To: 2}, {From: 2, To: 3}, {From: 3, To: 4}}, // overlap 2, tie with 2
	}

	ranked := routing.FlowsRankedByOverlap(newPath, paths)
	require.Equal(t, []int{2, 4, 1, 3}, ranked)
}
