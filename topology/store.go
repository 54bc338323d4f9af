package topology

import (
	"fmt"
	"sort"
	"sync"

	"github.com/katalvlaran/lcdn/curve"
)

// Store is the layered topology: a shared node/edge adjacency structure
// plus P parallel LinkState vectors indexed by arc.
//
// All mutations and queries are protected by a RWMutex — not because
// the admission core requires concurrent callers (it does not: see the
// concurrency model), but so that read-only diagnostic queries (delay/
// buffer/rate dumps) remain safe to call from a goroutine other than
// the one driving embed_flow/remove_flow.
type Store struct {
	mu sync.RWMutex

	priorities int
	thresholds []float64

	nodes map[int]*Node
	hosts map[int]*Host
	edges map[int]*Edge

	// arcEdge maps an arc to the undirected Edge ID it belongs to, for
	// hosts arcs this is -1 (hosts do not own a shared Edge record).
	arcEdge map[ArcID]int
	adj     map[int][]ArcID

	// layers[p][arc] is the LinkState of arc at priority p. Host-outgoing
	// arcs are always stored (and only ever written) at layers[0]; Get
	// and Set transparently redirect any priority to 0 for such arcs so
	// the single shared host-egress queue holds by construction rather
	// than by a copy-forward step during refresh.
	layers []map[ArcID]LinkState

	ipIndex map[string]int
}

// NewStore constructs an empty Store with the threshold schedule for
// the requested number of priority layers (4 or 8; see ThresholdsP4/P8).
func NewStore(priorities int) (*Store, error) {
	thresholds, err := scheduleFor(priorities)
	if err != nil {
		return nil, err
	}

	layers := make([]map[ArcID]LinkState, priorities)
	for p := range layers {
		layers[p] = make(map[ArcID]LinkState)
	}

	return &Store{
		priorities: priorities,
		thresholds: thresholds,
		nodes:      make(map[int]*Node),
		hosts:      make(map[int]*Host),
		edges:      make(map[int]*Edge),
		arcEdge:    make(map[ArcID]int),
		adj:        make(map[int][]ArcID),
		layers:     layers,
		ipIndex:    make(map[string]int),
	}, nil
}

// Priorities returns the number of priority layers P.
func (s *Store) Priorities() int {
	return s.priorities
}

// Threshold returns the queue-delay-budget (seconds) of priority p.
func (s *Store) Threshold(p int) float64 {
	return s.thresholds[p]
}

// AddNode inserts a switch node. Returns ErrAlreadyExists if id is
// already a node or host.
func (s *Store) AddNode(id int, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[id]; ok {
		return fmt.Errorf("%w: node %d", ErrAlreadyExists, id)
	}
	if _, ok := s.hosts[id]; ok {
		return fmt.Errorf("%w: node %d", ErrAlreadyExists, id)
	}
	s.nodes[id] = &Node{ID: id, Name: name}
	s.adj[id] = nil

	return nil
}

// RemoveNode deletes a switch node. Returns ErrNotFound if absent, or
// ErrInUse if the node still has incident arcs.
func (s *Store) RemoveNode(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[id]; !ok {
		return fmt.Errorf("%w: node %d", ErrNotFound, id)
	}
	if len(s.adj[id]) > 0 {
		return fmt.Errorf("%w: node %d", ErrInUse, id)
	}
	for from, arcs := range s.adj {
		for _, a := range arcs {
			if a.To == id {
				return fmt.Errorf("%w: node %d (incoming arc from %d)", ErrInUse, id, from)
			}
		}
	}

	delete(s.nodes, id)
	delete(s.adj, id)

	return nil
}

// AddEdge creates an undirected link as two directed arcs (U->V, V->U),
// each with freshly initialized LinkState in every priority layer:
// Arrival=(0,0), Service=(e.PropDelay+MTUSerializationDelay, e.Rate),
// Cost=1, QDelay=0, Threshold=the layer's schedule value.
func (s *Store) AddEdge(e Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.edges[e.ID]; ok {
		return fmt.Errorf("%w: edge %d", ErrAlreadyExists, e.ID)
	}
	if _, ok := s.nodes[e.U]; !ok {
		return fmt.Errorf("%w: node %d", ErrNotFound, e.U)
	}
	if _, ok := s.nodes[e.V]; !ok {
		return fmt.Errorf("%w: node %d", ErrNotFound, e.V)
	}

	s.edges[e.ID] = &e
	s.installArc(ArcID{From: e.U, To: e.V}, e.ID, e.Rate, e.PropDelay, e.QSize)
	s.installArc(ArcID{From: e.V, To: e.U}, e.ID, e.Rate, e.PropDelay, e.QSize)

	return nil
}

// installArc creates one directed arc's adjacency entry and per-layer
// LinkState, initialized per AddEdge's contract.
func (s *Store) installArc(arc ArcID, edgeID int, rate, propDelay, bufferCap float64) {
	s.arcEdge[arc] = edgeID
	s.adj[arc.From] = append(s.adj[arc.From], arc)

	for p := 0; p < s.priorities; p++ {
		s.layers[p][arc] = LinkState{
			Rate:           rate,
			PropDelay:      propDelay,
			BufferCapacity: bufferCap,
			Threshold:      s.thresholds[p],
			Cost:           1,
			QDelay:         0,
			Service:        curve.NewServiceCurve(propDelay+curve.MTUSerializationDelay, rate),
		}
	}
}

// RemoveEdge deletes both arcs of an undirected link.
func (s *Store) RemoveEdge(edgeID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.edges[edgeID]
	if !ok {
		return fmt.Errorf("%w: edge %d", ErrNotFound, edgeID)
	}

	s.removeArc(ArcID{From: e.U, To: e.V})
	s.removeArc(ArcID{From: e.V, To: e.U})
	delete(s.edges, edgeID)

	return nil
}

func (s *Store) removeArc(arc ArcID) {
	delete(s.arcEdge, arc)
	for p := 0; p < s.priorities; p++ {
		delete(s.layers[p], arc)
	}
	out := s.adj[arc.From]
	for i, a := range out {
		if a == arc {
			s.adj[arc.From] = append(out[:i], out[i+1:]...)
			break
		}
	}
}

// AddHost inserts a host node and its two directed links to
// h.ConnectedSwitch: host->switch (buffer=h.HostBuffer, the single
// egress queue modeled in layer 0) and switch->host
// (buffer=h.SwitchBuffer, an ordinary per-priority switch egress port).
func (s *Store) AddHost(h Host) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.hosts[h.ID]; ok {
		return fmt.Errorf("%w: host %d", ErrAlreadyExists, h.ID)
	}
	if _, ok := s.nodes[h.ID]; ok {
		return fmt.Errorf("%w: host %d", ErrAlreadyExists, h.ID)
	}
	if _, ok := s.nodes[h.ConnectedSwitch]; !ok {
		return fmt.Errorf("%w: switch %d", ErrNotFound, h.ConnectedSwitch)
	}

	host := h
	s.hosts[h.ID] = &host
	s.adj[h.ID] = nil
	if h.IP != "" {
		s.ipIndex[h.IP] = h.ID
	}

	outArc := ArcID{From: h.ID, To: h.ConnectedSwitch}
	inArc := ArcID{From: h.ConnectedSwitch, To: h.ID}
	s.installArc(outArc, -1, h.LinkRate, h.PropDelay, h.HostBuffer)
	s.installArc(inArc, -1, h.LinkRate, h.PropDelay, h.SwitchBuffer)

	return nil
}

// RemoveHost deletes a host node and its two directed links.
func (s *Store) RemoveHost(hostID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.hosts[hostID]
	if !ok {
		return fmt.Errorf("%w: host %d", ErrNotFound, hostID)
	}

	s.removeArc(ArcID{From: h.ID, To: h.ConnectedSwitch})
	s.removeArc(ArcID{From: h.ConnectedSwitch, To: h.ID})
	delete(s.hosts, hostID)
	delete(s.adj, hostID)
	if h.IP != "" {
		delete(s.ipIndex, h.IP)
	}

	return nil
}

// IsHost reports whether id names a host node.
func (s *Store) IsHost(id int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.hosts[id]
	return ok
}

// HasNode reports whether id names any node (switch or host).
func (s *Store) HasNode(id int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.nodes[id]; ok {
		return true
	}
	_, ok := s.hosts[id]
	return ok
}

// IDForIP resolves a host's IP address to its node ID.
func (s *Store) IDForIP(ip string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.ipIndex[ip]
	return id, ok
}

// RegisterHostProfile superimposes a host's background traffic profile
// (traffic not modeled as an admitted flow, e.g. control-plane chatter)
// onto its egress arc, so it counts toward the rate/delay/buffer
// invariants on that link exactly like a flow's reservation would.
// Idempotent re-registration is the
// caller's responsibility; each call adds ac to the existing profile.
func (s *Store) RegisterHostProfile(hostID int, ac curve.ArrivalCurve) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.hosts[hostID]
	if !ok {
		return fmt.Errorf("%w: host %d", ErrNotFound, hostID)
	}

	arc := ArcID{From: h.ID, To: h.ConnectedSwitch}
	ls := s.layers[0][arc]
	ls.Arrival = ls.Arrival.Add(ac)
	s.layers[0][arc] = ls

	return nil
}

// Host returns a copy of the host record for id.
func (s *Store) Host(id int) (Host, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.hosts[id]
	if !ok {
		return Host{}, false
	}
	return *h, true
}

// IsHostOutgoing reports whether arc is a host's single egress link
// (From is a host), which must carry identical LinkState across every
// priority layer.
func (s *Store) IsHostOutgoing(arc ArcID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.isHostOutgoingLocked(arc)
}

func (s *Store) isHostOutgoingLocked(arc ArcID) bool {
	_, ok := s.hosts[arc.From]
	return ok
}

// effectiveLayer redirects a host-outgoing arc's layer index to 0
// regardless of the requested priority, the mechanism that keeps the
// host's shared egress state consistent without an explicit
// copy-forward step.
func (s *Store) effectiveLayer(arc ArcID, p int) int {
	if s.isHostOutgoingLocked(arc) {
		return 0
	}
	return p
}

// Get returns the LinkState of arc at priority p (redirected to layer 0
// for host-outgoing arcs).
func (s *Store) Get(arc ArcID, p int) (LinkState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	el := s.effectiveLayer(arc, p)
	ls, ok := s.layers[el][arc]
	return ls, ok
}

// Set overwrites the LinkState of arc at priority p (redirected to
// layer 0 for host-outgoing arcs).
func (s *Store) Set(arc ArcID, p int, ls LinkState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	el := s.effectiveLayer(arc, p)
	if _, ok := s.layers[el][arc]; !ok {
		return fmt.Errorf("%w: arc %s", ErrNotFound, arc)
	}
	s.layers[el][arc] = ls
	return nil
}

// Neighbors returns the arcs leaving node, in stable (insertion) order.
func (s *Store) Neighbors(node int) []ArcID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ArcID, len(s.adj[node]))
	copy(out, s.adj[node])
	return out
}

// NodeIDs returns every node ID (switches and hosts), sorted ascending.
func (s *Store) NodeIDs() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int, 0, len(s.nodes)+len(s.hosts))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	for id := range s.hosts {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// AllArcs returns every arc in the topology, sorted by (From, To).
func (s *Store) AllArcs() []ArcID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	arcs := make([]ArcID, 0, len(s.arcEdge))
	for a := range s.arcEdge {
		arcs = append(arcs, a)
	}
	sort.Slice(arcs, func(i, j int) bool {
		if arcs[i].From != arcs[j].From {
			return arcs[i].From < arcs[j].From
		}
		return arcs[i].To < arcs[j].To
	})
	return arcs
}

// Delays returns, for priority p, the current queue delay of every arc.
// When excludeHostOutgoing is true and p > 0, host-egress arcs
// (identical across all layers by construction) are omitted so
// per-layer dumps aren't redundant; layer 0 always includes them.
func (s *Store) Delays(p int, excludeHostOutgoing bool) map[ArcID]float64 {
	return s.snapshotField(p, excludeHostOutgoing, func(ls LinkState) float64 { return ls.QDelay })
}

// BuffersUsed returns, for priority p, the current buffer requirement
// (β.BufferThreshold(α, threshold)) of every arc.
func (s *Store) BuffersUsed(p int, excludeHostOutgoing bool) map[ArcID]float64 {
	threshold := s.thresholds[p]
	return s.snapshotField(p, excludeHostOutgoing, func(ls LinkState) float64 {
		return ls.Service.BufferThreshold(ls.Arrival, threshold)
	})
}

// Rates returns, for priority p, the current aggregate arrival rate of
// every arc.
func (s *Store) Rates(p int, excludeHostOutgoing bool) map[ArcID]float64 {
	return s.snapshotField(p, excludeHostOutgoing, func(ls LinkState) float64 { return ls.Arrival.Rate })
}

func (s *Store) snapshotField(p int, excludeHostOutgoing bool, field func(LinkState) float64) map[ArcID]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[ArcID]float64, len(s.layers[p]))
	for arc, ls := range s.layers[p] {
		if excludeHostOutgoing && p > 0 && s.isHostOutgoingLocked(arc) {
			continue
		}
		ls = s.layers[s.effectiveLayer(arc, p)][arc]
		out[arc] = field(ls)
	}
	return out
}

// Clone returns a deep, independent copy of the Store suitable for
// speculative mutation (reserve/reroute attempts) that can be discarded
// without affecting the original — the snapshot/rollback primitive the
// flow manager relies on for transactional admission.
func (s *Store) Clone() *Store {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clone := &Store{
		priorities: s.priorities,
		thresholds: append([]float64(nil), s.thresholds...),
		nodes:      make(map[int]*Node, len(s.nodes)),
		hosts:      make(map[int]*Host, len(s.hosts)),
		edges:      make(map[int]*Edge, len(s.edges)),
		arcEdge:    make(map[ArcID]int, len(s.arcEdge)),
		adj:        make(map[int][]ArcID, len(s.adj)),
		layers:     make([]map[ArcID]LinkState, s.priorities),
		ipIndex:    make(map[string]int, len(s.ipIndex)),
	}

	for id, n := range s.nodes {
		cp := *n
		clone.nodes[id] = &cp
	}
	for id, h := range s.hosts {
		cp := *h
		clone.hosts[id] = &cp
	}
	for id, e := range s.edges {
		cp := *e
		clone.edges[id] = &cp
	}
	for a, eid := range s.arcEdge {
		clone.arcEdge[a] = eid
	}
	for n, arcs := range s.adj {
		clone.adj[n] = append([]ArcID(nil), arcs...)
	}
	for ip, id := range s.ipIndex {
		clone.ipIndex[ip] = id
	}
	for p, layer := range s.layers {
		cl := make(map[ArcID]LinkState, len(layer))
		for a, ls := range layer {
			cl[a] = ls.clone()
		}
		clone.layers[p] = cl
	}

	return clone
}
