package flowmanager

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/katalvlaran/lcdn/dnc"
	"github.com/katalvlaran/lcdn/internal/clock"
	"github.com/katalvlaran/lcdn/routing"
	"github.com/katalvlaran/lcdn/topology"
)

// Manager owns the live topology.Store and the registry of admitted
// flows, and implements the admission algorithm: route, place, and (on
// failure, if rerouting is enabled) demote.
//
// A Manager is not safe for concurrent use: every admission decision
// reads and then commits a whole-topology snapshot, so callers that
// need concurrent embed_flow/remove_flow must serialize through their
// own lock, the same contract topology.Store documents for its own
// read/write split.
type Manager struct {
	store *topology.Store
	cfg   Config

	registry   map[int]EmbeddedFlow
	nextFlowID int

	rng *rand.Rand

	reroutesPerformed int
}

// NewManager constructs a Manager bound to store, with the given
// config and a seeded RNG for GreedyMix's coin flip (seed must be
// supplied by the caller: this package never calls math/rand's global
// source).
func NewManager(store *topology.Store, cfg Config, seed int64) *Manager {
	return &Manager{
		store:      store,
		cfg:        cfg,
		registry:   make(map[int]EmbeddedFlow),
		nextFlowID: 1,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// Store returns the Manager's current committed topology snapshot.
func (m *Manager) Store() *topology.Store { return m.store }

// Config setters, mirroring the façade's runtime-tunable parameters.

func (m *Manager) SetReroutes(n int)                         { m.cfg.ReroutesMax = n }
func (m *Manager) SetRerouteStrategy(rs RerouteStrategy)      { m.cfg.RerouteStrategy = rs }
func (m *Manager) SetStrategy(s Strategy)                     { m.cfg.Strategy = s }
func (m *Manager) SetGreedyProbability(p float64)             { m.cfg.GreedyProbability = p }
func (m *Manager) SetInitialSPs(k int)                        { m.cfg.InitialSPs = k }
func (m *Manager) SetKSPOffset(o int)                         { m.cfg.KSPOffset = o }
func (m *Manager) SetInitialQLevel(q int)                     { m.cfg.FirstQueue = q }

// NumberOfReroutes returns the running count of flow demotions EmbedFlow
// has performed since the Manager was created.
func (m *Manager) NumberOfReroutes() int { return m.reroutesPerformed }

// Flows returns a copy of the registry, keyed by flow id.
func (m *Manager) Flows() map[int]EmbeddedFlow {
	out := make(map[int]EmbeddedFlow, len(m.registry))
	for id, f := range m.registry {
		out[id] = f
	}
	return out
}

// DelayOfFlow sums the queue delay of every arc along flow's admitted
// path at its admitted priority.
func (m *Manager) DelayOfFlow(flowID int) (float64, error) {
	flow, ok := m.registry[flowID]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownFlow, flowID)
	}
	var total float64
	for _, arc := range flow.Path {
		ls, ok := m.store.Get(arc, flow.Priority)
		if !ok {
			continue
		}
		total += ls.QDelay
	}
	return total, nil
}

func (m *Manager) priorities() int { return m.store.Priorities() }

// resolveStrategy turns GreedyMix into a concrete Greedy/NotGreedy
// choice for one request, leaving Greedy/NotGreedy untouched.
func (m *Manager) resolveStrategy() Strategy {
	if m.cfg.Strategy != GreedyMix {
		return m.cfg.Strategy
	}
	if m.rng.Float64() < m.cfg.GreedyProbability {
		return Greedy
	}
	return NotGreedy
}

func reservationFor(req FlowRequest, path []topology.ArcID) dnc.Reservation {
	return dnc.Reservation{Path: path, Rate: req.Rate, Burst: req.Burst, Deadline: req.Deadline}
}

// place reserves r at priority on store and refreshes residuals,
// leaving store untouched if either step reports a violation.
func place(store *topology.Store, priority int, r dnc.Reservation) (*dnc.Violation, error) {
	v, err := dnc.ReserveResources(store, priority, r)
	if err != nil || v != nil {
		return v, err
	}
	return dnc.RefreshAndValidate(store)
}

// EmbedFlow routes req over up to cfg.InitialSPs candidate paths (after
// skipping cfg.KSPOffset of them), attempts to place it per the
// resolved Strategy, and, failing that, attempts to free room by
// rerouting already-admitted flows when cfg.ReroutesMax > 0.
func (m *Manager) EmbedFlow(req FlowRequest) (*EmbedResult, *Rejected) {
	start := clock.Start()

	if !m.store.IsHost(req.SrcHost) || !m.store.IsHost(req.DstHost) {
		return nil, &Rejected{Reason: RejectNotAHost}
	}

	candidates, err := routing.KShortestPaths(m.store, 0, req.SrcHost, req.DstHost, m.cfg.InitialSPs, m.cfg.KSPOffset)
	if err != nil || len(candidates) == 0 {
		return nil, &Rejected{Reason: RejectNoPath}
	}

	strategy := m.resolveStrategy()

	if result := m.tryDirectPlacement(req, candidates, strategy, start); result != nil {
		return result, nil
	}

	if m.cfg.ReroutesMax <= 0 {
		return nil, &Rejected{Reason: RejectInfeasible}
	}

	switch m.cfg.RerouteStrategy {
	case SingleFlow:
		return m.rerouteSingleFlow(req, candidates, strategy, start)
	case Compound:
		return m.rerouteCompound(req, candidates, strategy, start)
	default:
		return nil, &Rejected{Reason: RejectInfeasible}
	}
}

// tryDirectPlacement attempts req on each candidate path, without
// demoting any already-admitted flow, per the resolved Strategy: GREEDY
// always tries cfg.FirstQueue; NOT_GREEDY tries every layer from P-1
// down to 0 on each path before moving to the next path. The first
// attempt that places and refreshes cleanly commits immediately.
func (m *Manager) tryDirectPlacement(req FlowRequest, candidates [][]topology.ArcID, strategy Strategy, start time.Time) *EmbedResult {
	for _, path := range candidates {
		if strategy == Greedy {
			if result := m.tryCommit(req, path, m.cfg.FirstQueue, strategy, start, nil); result != nil {
				return result
			}
			continue
		}
		for p := m.priorities() - 1; p >= 0; p-- {
			if result := m.tryCommit(req, path, p, strategy, start, nil); result != nil {
				return result
			}
		}
	}
	return nil
}

// tryCommit attempts to place req on path at priority on a fresh clone
// of the live store; on success it registers the flow, commits the
// clone as the live store, and returns the EmbedResult. rerouted is
// threaded through so rerouting paths can report the demotions that
// made the placement possible.
func (m *Manager) tryCommit(req FlowRequest, path []topology.ArcID, priority int, strategy Strategy, start time.Time, rerouted []Reroute) *EmbedResult {
	attempt := m.store.Clone()
	r := reservationFor(req, path)
	v, err := place(attempt, priority, r)
	if err != nil || v != nil {
		return nil
	}

	flowID := m.nextFlowID
	m.nextFlowID++
	m.store = attempt
	m.registry[flowID] = EmbeddedFlow{FlowID: flowID, Request: req, Path: path, Priority: priority, Reservation: r}

	return &EmbedResult{
		FlowID:          flowID,
		Request:         req,
		Path:            path,
		Priority:        priority,
		StrategyTag:     strategy.String(),
		EmbeddingTimeNS: clock.ElapsedNS(start),
		Rerouted:        rerouted,
	}
}

// RemoveFlow releases an admitted flow's reservation and drops it from
// the registry.
func (m *Manager) RemoveFlow(flowID int) error {
	flow, ok := m.registry[flowID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownFlow, flowID)
	}

	next := m.store.Clone()
	if err := dnc.RemoveResources(next, flow.Priority, flow.Reservation); err != nil {
		return err
	}
	m.store = next
	delete(m.registry, flowID)

	return nil
}

// samePath reports whether a and b traverse the same arcs in the same
// order.
func samePath(a, b []topology.ArcID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// demote removes flow's current reservation from attempt and tries to
// re-place it either along its own path at a worse priority (GREEDY:
// the only way to free rate for a higher-priority newcomer without
// moving it off its shortest path) or along an alternative path for
// flow's own (src, dst) pair at whichever priority fits (NOT_GREEDY).
// The alternatives are re-derived from flow.Request, not taken from the
// caller's own candidate set, since a demoted flow is in general routed
// between a different (src, dst) pair than the newcomer triggering the
// demotion. It returns the flow's new path/priority/reservation and the
// mutated attempt on success, or ok=false with attempt left untouched.
func (m *Manager) demote(attempt *topology.Store, flow EmbeddedFlow, strategy Strategy) (next *topology.Store, newPath []topology.ArcID, newPriority int, newRes dnc.Reservation, ok bool) {
	base := attempt.Clone()
	if err := dnc.RemoveResources(base, flow.Priority, flow.Reservation); err != nil {
		return nil, nil, 0, dnc.Reservation{}, false
	}

	if strategy == Greedy {
		for p := flow.Priority + 1; p < m.priorities(); p++ {
			trial := base.Clone()
			r := reservationFor(flow.Request, flow.Path)
			v, err := place(trial, p, r)
			if err == nil && v == nil {
				return trial, flow.Path, p, r, true
			}
		}
		return nil, nil, 0, dnc.Reservation{}, false
	}

	altCandidates, err := routing.KShortestPaths(base, 0, flow.Request.SrcHost, flow.Request.DstHost, m.cfg.InitialSPs, m.cfg.KSPOffset)
	if err != nil {
		return nil, nil, 0, dnc.Reservation{}, false
	}
	for _, altPath := range altCandidates {
		if samePath(altPath, flow.Path) {
			continue
		}
		for p := m.priorities() - 1; p >= 0; p-- {
			trial := base.Clone()
			r := reservationFor(flow.Request, altPath)
			v, err := place(trial, p, r)
			if err == nil && v == nil {
				return trial, altPath, p, r, true
			}
		}
	}
	return nil, nil, 0, dnc.Reservation{}, false
}

// rerouteSingleFlow implements the SINGLE_FLOW rerouting strategy: try
// demoting one already-admitted flow, in descending order of path
// overlap with the new flow's first candidate path and capped at
// cfg.ReroutesMax candidates, then attempt the new flow's placement
// (layer 0 for GREEDY, cfg.FirstQueue for NOT_GREEDY) on the resulting
// snapshot. The first demotion whose snapshot also admits the new flow
// wins; all others are discarded.
func (m *Manager) rerouteSingleFlow(req FlowRequest, candidates [][]topology.ArcID, strategy Strategy, start time.Time) (*EmbedResult, *Rejected) {
	firstPath := candidates[0]
	newPriority := m.cfg.FirstQueue
	if strategy == Greedy {
		newPriority = 0
	}
	newRes := reservationFor(req, firstPath)

	ranked := m.rankByOverlap(firstPath)
	if len(ranked) > m.cfg.ReroutesMax {
		ranked = ranked[:m.cfg.ReroutesMax]
	}
	for _, fid := range ranked {
		flow := m.registry[fid]
		demoted, newFlowPath, demotedPriority, demotedRes, ok := m.demote(m.store, flow, strategy)
		if !ok {
			continue
		}

		attempt := demoted.Clone()
		if v, err := place(attempt, newPriority, newRes); err != nil || v != nil {
			continue
		}

		flowID := m.nextFlowID
		m.nextFlowID++
		m.store = attempt
		m.registry[fid] = EmbeddedFlow{FlowID: fid, Request: flow.Request, Path: newFlowPath, Priority: demotedPriority, Reservation: demotedRes}
		m.registry[flowID] = EmbeddedFlow{FlowID: flowID, Request: req, Path: firstPath, Priority: newPriority, Reservation: newRes}
		m.reroutesPerformed++

		return &EmbedResult{
			FlowID:          flowID,
			Request:         req,
			Path:            firstPath,
			Priority:        newPriority,
			StrategyTag:     strategy.String(),
			EmbeddingTimeNS: clock.ElapsedNS(start),
			Rerouted:        []Reroute{{FlowID: fid, Path: newFlowPath, Priority: demotedPriority}},
		}, nil
	}

	return nil, &Rejected{Reason: RejectInfeasible}
}

// rerouteCompound implements the COMPOUND rerouting strategy: demote
// flows one at a time, in overlap order, retaining each successful
// demotion in a running snapshot, and after every demotion retry
// placing the new flow at layer 0 on the running snapshot. The first
// retry that succeeds commits the whole accumulated snapshot, carrying
// every retained demotion along with it; if no retry ever succeeds
// within cfg.ReroutesMax candidates, everything is discarded.
func (m *Manager) rerouteCompound(req FlowRequest, candidates [][]topology.ArcID, strategy Strategy, start time.Time) (*EmbedResult, *Rejected) {
	firstPath := candidates[0]
	running := m.store.Clone()

	var demoted []Reroute
	newFlowPaths := make(map[int][]topology.ArcID)
	newFlowPriorities := make(map[int]int)
	newFlowReservations := make(map[int]dnc.Reservation)

	ranked := m.rankByOverlap(firstPath)
	if len(ranked) > m.cfg.ReroutesMax {
		ranked = ranked[:m.cfg.ReroutesMax]
	}

	for _, fid := range ranked {
		flow := m.registry[fid]
		attempt, newPath, newPriority, newRes, ok := m.demote(running, flow, strategy)
		if !ok {
			continue
		}

		running = attempt
		demoted = append(demoted, Reroute{FlowID: fid, Path: newPath, Priority: newPriority})
		newFlowPaths[fid] = newPath
		newFlowPriorities[fid] = newPriority
		newFlowReservations[fid] = newRes

		final := running.Clone()
		newFlowRes := reservationFor(req, firstPath)
		v, err := place(final, 0, newFlowRes)
		if err != nil || v != nil {
			continue // keep the retained demotion, try demoting another flow
		}

		flowID := m.nextFlowID
		m.nextFlowID++
		m.store = final
		for _, d := range demoted {
			orig := m.registry[d.FlowID]
			m.registry[d.FlowID] = EmbeddedFlow{
				FlowID: d.FlowID, Request: orig.Request,
				Path: newFlowPaths[d.FlowID], Priority: newFlowPriorities[d.FlowID],
				Reservation: newFlowReservations[d.FlowID],
			}
		}
		m.registry[flowID] = EmbeddedFlow{FlowID: flowID, Request: req, Path: firstPath, Priority: 0, Reservation: newFlowRes}
		m.reroutesPerformed += len(demoted)

		return &EmbedResult{
			FlowID:          flowID,
			Request:         req,
			Path:            firstPath,
			Priority:        0,
			StrategyTag:     strategy.String(),
			EmbeddingTimeNS: clock.ElapsedNS(start),
			Rerouted:        demoted,
		}, nil
	}

	return nil, &Rejected{Reason: RejectInfeasible}
}

// rankByOverlap orders the registry's flow ids by descending arc
// overlap with path, the candidate order rerouting tries demotions in.
func (m *Manager) rankByOverlap(path []topology.ArcID) []int {
	paths := make(map[int][]topology.ArcID, len(m.registry))
	for id, f := range m.registry {
		paths[id] = f.Path
	}
	return routing.FlowsRankedByOverlap(path, paths)
}
