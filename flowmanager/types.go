// Package flowmanager implements flow admission: routing a request over
// candidate paths, placing it at a priority layer via package dnc, and,
// when no candidate fits as-is, demoting already-admitted flows to make
// room (SINGLE_FLOW or COMPOUND rerouting) before giving up.
package flowmanager

import (
	"errors"
	"fmt"

	"github.com/katalvlaran/lcdn/dnc"
	"github.com/katalvlaran/lcdn/topology"
)

// Strategy selects how EmbedFlow picks a priority layer for a new flow's
// first placement attempt.
type Strategy int

const (
	// Greedy always attempts the configured FirstQueue layer first and
	// accepts the first candidate path that fits there.
	Greedy Strategy = iota
	// NotGreedy tries every layer from the least strict (P-1) down to 0
	// for each candidate path, preferring a lower-priority fit over a
	// higher one if both are available on the same path.
	NotGreedy
	// GreedyMix flips a weighted coin (Config.GreedyProbability) per
	// request and runs Greedy or NotGreedy accordingly.
	GreedyMix
)

// String renders a Strategy for logging and EmbedResult.StrategyTag.
func (s Strategy) String() string {
	switch s {
	case Greedy:
		return "GREEDY"
	case NotGreedy:
		return "NOT_GREEDY"
	case GreedyMix:
		return "GREEDY_MIX"
	default:
		return "UNKNOWN"
	}
}

// RerouteStrategy selects how many already-admitted flows EmbedFlow is
// willing to demote, on failure, to fit a rejected request.
type RerouteStrategy int

const (
	// SingleFlow demotes at most one already-admitted flow per attempt.
	SingleFlow RerouteStrategy = iota
	// Compound accumulates demotions across up to Config.ReroutesMax
	// flows, retrying the new flow's placement after each one.
	Compound
)

// String renders a RerouteStrategy for logging.
func (r RerouteStrategy) String() string {
	switch r {
	case SingleFlow:
		return "SINGLE_FLOW"
	case Compound:
		return "COMPOUND"
	default:
		return "UNKNOWN"
	}
}

// Config holds the Manager's tunable admission parameters, all settable
// at runtime through the corresponding SetXxx method.
type Config struct {
	Strategy          Strategy
	GreedyProbability float64
	RerouteStrategy   RerouteStrategy
	ReroutesMax       int
	InitialSPs        int
	KSPOffset         int
	FirstQueue        int
}

// DefaultConfig returns the admission parameters a freshly constructed
// Manager assumes when nothing else is configured: GREEDY placement at
// layer 0, 10 initial candidate paths, no offset, rerouting disabled.
func DefaultConfig() Config {
	return Config{
		Strategy:          Greedy,
		GreedyProbability: 0.5,
		RerouteStrategy:   SingleFlow,
		ReroutesMax:       0,
		InitialSPs:        10,
		KSPOffset:         0,
		FirstQueue:        0,
	}
}

// FlowRequest is the caller-supplied description of a flow to admit.
type FlowRequest struct {
	SrcHost  int
	DstHost  int
	Protocol string
	Rate     float64
	Burst    float64
	Deadline float64
}

// EmbeddedFlow is the Manager's record of one admitted flow: enough to
// re-derive its dnc.Reservation for removal or for a later demotion.
type EmbeddedFlow struct {
	FlowID      int
	Request     FlowRequest
	Path        []topology.ArcID
	Priority    int
	Reservation dnc.Reservation
}

// RejectReason classifies why EmbedFlow refused a request.
type RejectReason int

const (
	// RejectNotAHost reports that SrcHost or DstHost is not a host node.
	RejectNotAHost RejectReason = iota
	// RejectNoPath reports that no candidate path exists at all.
	RejectNoPath
	// RejectInfeasible reports that every candidate path/priority
	// combination (and every rerouting attempt, if enabled) failed.
	RejectInfeasible
)

// String renders a RejectReason for logging and Rejected.Error.
func (r RejectReason) String() string {
	switch r {
	case RejectNotAHost:
		return "not a host"
	case RejectNoPath:
		return "no candidate path"
	case RejectInfeasible:
		return "no feasible placement"
	default:
		return "unknown"
	}
}

// Rejected is returned instead of an EmbedResult when a request cannot
// be admitted. It is not a Go error in the usual sense (rejection is an
// expected admission-control outcome), but implements error so callers
// that want uniform error handling can still use it that way.
type Rejected struct {
	Reason    RejectReason
	Violation *dnc.Violation
}

func (r *Rejected) Error() string {
	if r.Violation != nil {
		return fmt.Sprintf("flowmanager: rejected (%s): %v", r.Reason, r.Violation)
	}
	return fmt.Sprintf("flowmanager: rejected (%s)", r.Reason)
}

// Unwrap exposes the underlying invariant violation, if any, to
// errors.As.
func (r *Rejected) Unwrap() error {
	if r.Violation == nil {
		return nil
	}
	return r.Violation
}

// Reroute records one already-admitted flow's demotion: its new path
// and priority after EmbedFlow moved it to make room for another flow.
type Reroute struct {
	FlowID   int
	Path     []topology.ArcID
	Priority int
}

// EmbedResult is returned on successful admission.
type EmbedResult struct {
	FlowID          int
	Request         FlowRequest
	Path            []topology.ArcID
	Priority        int
	StrategyTag     string
	EmbeddingTimeNS int64
	Rerouted        []Reroute
}

// ErrUnknownFlow is returned by RemoveFlow and DelayOfFlow for a flow id
// the Manager has no record of.
var ErrUnknownFlow = errors.New("flowmanager: unknown flow id")
