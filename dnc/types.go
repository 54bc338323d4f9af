// Package dnc implements the DNC agent: it applies and reverses
// resource reservations against a topology.Store, recomputes residual
// service curves across priority layers under strict-priority
// scheduling, and detects per-arc invariant violations.
//
// ReserveResources and RefreshAndValidate return a *Violation rather
// than panicking or erroring on a failed admission attempt: a violation
// is an expected, first-class outcome (see package curve's saturating
// algebra), while a Go error return is reserved for programmer
// mistakes (an unknown arc, a malformed path).
package dnc

import (
	"fmt"

	"github.com/katalvlaran/lcdn/topology"
)

// Kind identifies which invariant a Violation reports.
type Kind int

const (
	// Rate reports that an arc's aggregate arrival rate would exceed
	// its service rate, detected as curve saturation mid-walk.
	Rate Kind = iota
	// Delay reports that an arc's queueing delay bound exceeds its
	// priority threshold.
	Delay
	// Buffer reports that an arc's buffer requirement exceeds its
	// capacity.
	Buffer
	// FlowDeadline reports that a flow's accumulated per-hop threshold
	// budget exceeds its end-to-end deadline.
	FlowDeadline
)

// String renders a Kind for logging.
func (k Kind) String() string {
	switch k {
	case Rate:
		return "Rate"
	case Delay:
		return "Delay"
	case Buffer:
		return "Buffer"
	case FlowDeadline:
		return "FlowDeadline"
	default:
		return "Unknown"
	}
}

// Violation reports that a reservation attempt (or a post-hoc refresh)
// found a hard invariant broken. Arc is the zero value for
// FlowDeadline, which is not localized to one link; for that kind
// Current holds the flow's deadline and MaxAllowed the accumulated
// per-hop budget that exceeded it.
type Violation struct {
	Kind       Kind
	Arc        topology.ArcID
	Current    float64
	MaxAllowed float64
}

// Error implements the error interface so a *Violation can be wrapped
// and tested with errors.As at the flow-manager boundary.
func (v *Violation) Error() string {
	if v.Kind == FlowDeadline {
		return fmt.Sprintf("dnc: %s violation: per-hop budget %g > deadline %g", v.Kind, v.MaxAllowed, v.Current)
	}
	return fmt.Sprintf("dnc: %s violation on %s: %g > %g", v.Kind, v.Arc, v.Current, v.MaxAllowed)
}

// Reservation is the additive contribution a single flow makes to every
// LinkState.Arrival along its path: an ordered sequence of arcs plus
// the flow's token-bucket parameters and end-to-end deadline.
type Reservation struct {
	Path     []topology.ArcID
	Rate     float64
	Burst    float64
	Deadline float64
}
