// Package lcdn is the orchestration façade: the single entry point
// external collaborators use to build a topology, admit and release
// flows, tune the admission strategy at runtime, and query its current
// state. It wires together package curve (arrival/service curve
// algebra), package topology (the layered graph store), package dnc
// (invariant checking) and package flowmanager (placement and
// rerouting) behind one struct, mirroring the original's LCDN class.
package lcdn

import (
	"errors"
	"fmt"

	"github.com/katalvlaran/lcdn/curve"
	"github.com/katalvlaran/lcdn/flowmanager"
	"github.com/katalvlaran/lcdn/topology"
)

// ErrUnknownFlow is returned by GetDelayOfFlow for a flow id the LCDN
// instance has no record of.
var ErrUnknownFlow = flowmanager.ErrUnknownFlow

// LCDN is the admission-control and traffic-engineering core: a
// topology plus a flow manager operating on it. It is not safe for
// concurrent mutating calls (see package flowmanager). The flow-registry
// queries (GetDelayOfFlow, GetAllFlowsWithInformation,
// GetNumberOfReroutes) take no lock, so they must not run concurrently
// with EmbedFlow or RemoveFlow.
type LCDN struct {
	store *topology.Store
	mgr   *flowmanager.Manager
}

// New constructs an empty LCDN with the given number of priority
// layers (4 or 8; see topology.ThresholdsP4/P8) and a seed for
// GREEDY_MIX's PRNG.
func New(priorities int, seed int64) (*LCDN, error) {
	store, err := topology.NewStore(priorities)
	if err != nil {
		return nil, err
	}
	return &LCDN{
		store: store,
		mgr:   flowmanager.NewManager(store, flowmanager.DefaultConfig(), seed),
	}, nil
}

// String renders a one-line summary for debug printing.
func (l *LCDN) String() string {
	stats := l.Stats()
	return fmt.Sprintf("LCDN{nodes=%d edges=%d flows=%d}", stats.NodeCount, stats.EdgeCount, len(l.mgr.Flows()))
}

// TopologyStats is a read-only snapshot of the topology's size and
// congestion, the structured substitute for the original's ad-hoc
// plotting methods.
type TopologyStats struct {
	NodeCount        int
	EdgeCount        int
	MeanQDelayByPrio []float64
}

// Stats computes a TopologyStats snapshot in O(V+E).
func (l *LCDN) Stats() TopologyStats {
	nodeIDs := l.store.NodeIDs()
	arcs := l.store.AllArcs()

	stats := TopologyStats{
		NodeCount:        len(nodeIDs),
		EdgeCount:        len(arcs) / 2,
		MeanQDelayByPrio: make([]float64, l.store.Priorities()),
	}
	for p := 0; p < l.store.Priorities(); p++ {
		delays := l.store.Delays(p, false)
		var sum float64
		for _, d := range delays {
			sum += d
		}
		if len(delays) > 0 {
			stats.MeanQDelayByPrio[p] = sum / float64(len(delays))
		}
	}
	return stats
}

// Topology mutation, delegated straight to the underlying store.

func (l *LCDN) AddNode(id int, name string) error { return l.store.AddNode(id, name) }
func (l *LCDN) RemoveNode(id int) error            { return l.store.RemoveNode(id) }
func (l *LCDN) AddEdge(e topology.Edge) error       { return l.store.AddEdge(e) }
func (l *LCDN) RemoveEdge(edgeID int) error         { return l.store.RemoveEdge(edgeID) }
func (l *LCDN) AddHost(h topology.Host) error       { return l.store.AddHost(h) }
func (l *LCDN) RemoveHost(hostID int) error         { return l.store.RemoveHost(hostID) }

// RegisterHostProfile superimposes a host's background traffic profile
// onto its egress link (ADDED, see DESIGN.md).
func (l *LCDN) RegisterHostProfile(hostID int, ac curve.ArrivalCurve) error {
	return l.store.RegisterHostProfile(hostID, ac)
}

// EmbedFlow attempts to admit req, returning the placement decision or
// a Rejected describing why it could not be admitted.
func (l *LCDN) EmbedFlow(req flowmanager.FlowRequest) (*flowmanager.EmbedResult, *flowmanager.Rejected) {
	return l.mgr.EmbedFlow(req)
}

// RemoveFlow releases an admitted flow.
func (l *LCDN) RemoveFlow(flowID int) error {
	if err := l.mgr.RemoveFlow(flowID); err != nil {
		return fmt.Errorf("lcdn: remove_flow: %w", err)
	}
	return nil
}

// Configuration setters.

func (l *LCDN) SetReroutings(n int)                          { l.mgr.SetReroutes(n) }
func (l *LCDN) SetReroutingStrategy(rs flowmanager.RerouteStrategy) {
	l.mgr.SetRerouteStrategy(rs)
}
func (l *LCDN) SetLCDNStrategy(s flowmanager.Strategy) { l.mgr.SetStrategy(s) }
func (l *LCDN) SetGreedyProbability(p float64)         { l.mgr.SetGreedyProbability(p) }
func (l *LCDN) SetInitialSPs(k int)                    { l.mgr.SetInitialSPs(k) }
func (l *LCDN) SetKSPOffset(o int)                     { l.mgr.SetKSPOffset(o) }
func (l *LCDN) SetInitialQLevel(q int)                 { l.mgr.SetInitialQLevel(q) }

// Queries.

// GetNodeIDFromIP resolves a host's IP address to its node ID.
func (l *LCDN) GetNodeIDFromIP(ip string) (int, bool) { return l.store.IDForIP(ip) }

// GetDelayOfFlow returns the sum of queue delays along flowID's
// admitted path.
func (l *LCDN) GetDelayOfFlow(flowID int) (float64, error) {
	d, err := l.mgr.DelayOfFlow(flowID)
	if err != nil {
		if errors.Is(err, flowmanager.ErrUnknownFlow) {
			return 0, fmt.Errorf("lcdn: get_delay_of_flow: %w", err)
		}
		return 0, err
	}
	return d, nil
}

// GetAllQDelays returns, per priority layer, the current queue delay of
// every arc (host-egress arcs, identical across layers by construction,
// are omitted from layers above 0).
func (l *LCDN) GetAllQDelays() [][]float64 { return l.snapshotAllLayers(l.store.Delays) }

// GetAllBuffers returns, per priority layer, the current buffer
// requirement of every arc (host-egress arcs are omitted from layers
// above 0, as in GetAllQDelays).
func (l *LCDN) GetAllBuffers() [][]float64 { return l.snapshotAllLayers(l.store.BuffersUsed) }

// GetAllRates returns, per priority layer, the current aggregate
// arrival rate of every arc (host-egress arcs are omitted from layers
// above 0, as in GetAllQDelays).
func (l *LCDN) GetAllRates() [][]float64 { return l.snapshotAllLayers(l.store.Rates) }

func (l *LCDN) snapshotAllLayers(field func(p int, excludeHostOutgoing bool) map[topology.ArcID]float64) [][]float64 {
	out := make([][]float64, l.store.Priorities())
	for p := 0; p < l.store.Priorities(); p++ {
		m := field(p, true)
		vals := make([]float64, 0, len(m))
		for _, v := range m {
			vals = append(vals, v)
		}
		out[p] = vals
	}
	return out
}

// GetNumberOfReroutes returns the running count of flow demotions
// EmbedFlow has performed.
func (l *LCDN) GetNumberOfReroutes() int { return l.mgr.NumberOfReroutes() }

// GetAllFlowsWithInformation returns a copy of every admitted flow's
// record, keyed by flow id.
func (l *LCDN) GetAllFlowsWithInformation() map[int]flowmanager.EmbeddedFlow { return l.mgr.Flows() }
