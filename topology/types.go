// Package topology implements the layered network state described by the
// data model: one directed graph per priority class, sharing a common
// node and edge set, with per-arc, per-layer arrival/service curves,
// queue-delay thresholds and buffer limits.
//
// The P parallel layers are modeled as the design notes prescribe: an
// explicit array of per-priority LinkState vectors indexed by arc,
// rather than P independent graph objects with per-layer attribute
// dictionaries. This keeps per-layer mutability (needed for strict-
// priority residual propagation, see package dnc) without duplicating
// the shared node/edge adjacency structure.
package topology

import (
	"errors"
	"fmt"

	"github.com/katalvlaran/lcdn/curve"
)

// Sentinel errors for topology mutations and queries.
var (
	// ErrAlreadyExists indicates a node, edge or host with the given ID
	// is already present.
	ErrAlreadyExists = errors.New("topology: already exists")

	// ErrNotFound indicates a referenced node, edge, host or arc does
	// not exist.
	ErrNotFound = errors.New("topology: not found")

	// ErrUnsupportedPriorityCount indicates the requested priority-class
	// count has no defined threshold schedule (only 4 and 8 are defined).
	ErrUnsupportedPriorityCount = errors.New("topology: unsupported priority count")

	// ErrInUse indicates a node cannot be removed because it is still
	// referenced by an edge or host.
	ErrInUse = errors.New("topology: still in use")
)

// ThresholdsP4 is the fixed per-priority queue-delay-budget schedule for
// a 4-queue topology, in seconds, strictest (priority 0) first.
var ThresholdsP4 = []float64{0.5e-3, 1e-3, 6e-3, 24e-3}

// ThresholdsP8 is the fixed per-priority queue-delay-budget schedule for
// an 8-queue topology, in seconds, strictest (priority 0) first.
var ThresholdsP8 = []float64{0.1e-3, 0.5e-3, 1e-3, 3e-3, 6e-3, 12e-3, 18e-3, 24e-3}

// scheduleFor returns the threshold schedule for the requested number
// of priority layers.
func scheduleFor(priorities int) ([]float64, error) {
	switch priorities {
	case 4:
		return append([]float64(nil), ThresholdsP4...), nil
	case 8:
		return append([]float64(nil), ThresholdsP8...), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedPriorityCount, priorities)
	}
}

// Node is a switch (or, embedded in Host, an end host) in the topology.
type Node struct {
	ID   int
	Name string
}

// Host extends Node with the attributes of an end-host's single NIC:
// its MAC/IP, the switch it is attached to, its egress/ingress buffer
// sizes, and the link characteristics of its attachment.
type Host struct {
	Node
	MAC             string
	IP              string
	ConnectedSwitch int
	HostBuffer      float64
	SwitchBuffer    float64
	PropDelay       float64
	LinkRate        float64
}

// Edge is an undirected link between two nodes, instantiated as two
// directed arcs (U->V and V->U) with identical rate/delay/buffer
// attributes.
type Edge struct {
	ID        int
	U, V      int
	Rate      float64
	PropDelay float64
	QSize     float64
}

// ArcID identifies one directed arc of the topology: the direction a
// reservation actually traverses. Two arcs with swapped From/To belong
// to the same undirected Edge but carry independent LinkState.
type ArcID struct {
	From int
	To   int
}

// String renders an arc as "from->to", used in path and violation logs.
func (a ArcID) String() string {
	return fmt.Sprintf("%d->%d", a.From, a.To)
}

// LinkState is the per-arc, per-priority-layer mutable state: current
// link characteristics, the queue-delay threshold and routing cost
// derived from it, and the current arrival/service curves.
type LinkState struct {
	Rate           float64
	PropDelay      float64
	BufferCapacity float64
	Threshold      float64
	Cost           float64
	QDelay         float64
	Arrival        curve.ArrivalCurve
	Service        curve.ServiceCurve
}

// clone returns a value copy of ls. LinkState contains no reference
// types, so a plain copy is a deep copy.
func (ls LinkState) clone() LinkState { return ls }
