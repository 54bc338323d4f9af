package lcdn_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katalvlaran/lcdn"
	"github.com/katalvlaran/lcdn/flowmanager"
	"github.com/katalvlaran/lcdn/topology"
)

// ringTopology builds a three-switch ring with two hosts: host 4
// attached to switch 1, host 5 attached to switch 2, all links 125e6
// rate with zero propagation delay, 4-queue thresholds.
func ringTopology(t testing.TB) *lcdn.LCDN {
	t.Helper()
	l, err := lcdn.New(4, 1)
	require.NoError(t, err)

	for _, id := range []int{1, 2, 3} {
		require.NoError(t, l.AddNode(id, ""))
	}
	edges := []topology.Edge{
		{ID: 1, U: 1, V: 2, Rate: 125e6, QSize: 970000},
		{ID: 2, U: 2, V: 3, Rate: 125e6, QSize: 970000},
		{ID: 3, U: 1, V: 3, Rate: 125e6, QSize: 970000},
	}
	for _, e := range edges {
		require.NoError(t, l.AddEdge(e))
	}
	require.NoError(t, l.AddHost(topology.Host{
		Node: topology.Node{ID: 4, Name: "h1"}, ConnectedSwitch: 1,
		HostBuffer: 970000, SwitchBuffer: 970000, LinkRate: 125e6,
	}))
	require.NoError(t, l.AddHost(topology.Host{
		Node: topology.Node{ID: 5, Name: "h2"}, ConnectedSwitch: 2,
		HostBuffer: 970000, SwitchBuffer: 970000, LinkRate: 125e6,
	}))

	return l
}

func TestFacadeCRUDAndQueries(t *testing.T) {
	l := ringTopology(t)

	id, ok := l.GetNodeIDFromIP("10.0.0.1")
	require.False(t, ok)
	require.Zero(t, id)

	stats := l.Stats()
	require.Equal(t, 5, stats.NodeCount) // 3 switches + 2 hosts
	require.Equal(t, 5, stats.EdgeCount) // 3 ring links + 2 host links
	require.Len(t, stats.MeanQDelayByPrio, 4)

	require.NotEmpty(t, l.String())

	result, rejected := l.EmbedFlow(flowmanager.FlowRequest{SrcHost: 4, DstHost: 5, Rate: 25e6, Burst: 70, Deadline: 150e-3})
	require.Nil(t, rejected)
	require.NotNil(t, result)

	require.Len(t, l.GetAllFlowsWithInformation(), 1)
	delay, err := l.GetDelayOfFlow(result.FlowID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, delay, 0.0)

	_, err = l.GetDelayOfFlow(9999)
	require.Error(t, err)
}

// TestScenarioS3_DeadlineInfeasibleRejectedRegardlessOfResources checks
// that a deadline far tighter than the path's minimum per-hop
// threshold budget is rejected even on an entirely empty topology.
func TestScenarioS3_DeadlineInfeasibleRejectedRegardlessOfResources(t *testing.T) {
	l := ringTopology(t)

	// Direct path 4->1->2->5 is 3 hops; threshold(0) is 0.5ms, so the
	// minimum per-hop budget is 1.5ms. A 0.15ms deadline cannot be met
	// no matter how much spare rate/buffer the path has.
	_, rejected := l.EmbedFlow(flowmanager.FlowRequest{
		SrcHost: 4, DstHost: 5, Rate: 1, Burst: 1, Deadline: 0.1 * 0.5e-3 * 3,
	})
	require.NotNil(t, rejected)
	require.Equal(t, flowmanager.RejectInfeasible, rejected.Reason)
}

// TestScenarioS4_RemovalRestoresState checks that submitting a flow and
// then removing it leaves the topology's per-layer rates identical to
// the state before that flow was ever submitted.
func TestScenarioS4_RemovalRestoresState(t *testing.T) {
	l := ringTopology(t)

	before := l.GetAllRates()

	result, rejected := l.EmbedFlow(flowmanager.FlowRequest{SrcHost: 4, DstHost: 5, Rate: 25e6, Burst: 70, Deadline: 150e-3})
	require.Nil(t, rejected)

	require.NoError(t, l.RemoveFlow(result.FlowID))

	after := l.GetAllRates()
	for p := range before {
		require.ElementsMatch(t, before[p], after[p], "priority %d rates should be restored", p)
	}
}

// TestScenarioS5_NotGreedyFillsLeastStrictLayerFirst checks that under
// NOT_GREEDY, a flow submitted to an otherwise-empty topology lands on
// the least-strict layer (P-1) first, since that layer's threshold is
// tried before any lower-numbered one.
func TestScenarioS5_NotGreedyFillsLeastStrictLayerFirst(t *testing.T) {
	l := ringTopology(t)
	l.SetLCDNStrategy(flowmanager.NotGreedy)

	result, rejected := l.EmbedFlow(flowmanager.FlowRequest{SrcHost: 4, DstHost: 5, Rate: 1e3, Burst: 10, Deadline: 1})
	require.Nil(t, rejected)
	require.Equal(t, 3, result.Priority)
}

func BenchmarkEmbedFlow(b *testing.B) {
	l := ringTopology(b)
	l.SetReroutings(0)

	req := flowmanager.FlowRequest{SrcHost: 4, DstHost: 5, Rate: 1e3, Burst: 10, Deadline: 1}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		result, rejected := l.EmbedFlow(req)
		if rejected != nil {
			b.Fatalf("unexpected rejection: %v", rejected)
		}
		if err := l.RemoveFlow(result.FlowID); err != nil {
			b.Fatalf("unexpected remove error: %v", err)
		}
	}
}
