package dnc

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/katalvlaran/lcdn/curve"
	"github.com/katalvlaran/lcdn/topology"
)

// hopPlan resolves, for hop i of a reservation placed at priority p,
// which layer the hop is actually accounted against and which
// threshold governs its chameleon convolution: hop 0 of a non-zero
// priority flow is the host's single egress queue, always layer 0
// regardless of p (see topology's host-egress redirect).
func hopPlan(store *topology.Store, priority, hopIndex int) (layer int, threshold float64) {
	if priority > 0 && hopIndex == 0 {
		return 0, store.Threshold(0)
	}
	return priority, store.Threshold(priority)
}

// ReserveResources walks r.Path in order, adding r's token-bucket
// contribution to every arc's aggregate arrival curve and propagating
// the flow's own curve hop-by-hop through each arc's current service
// curve via the chameleon convolution. If the accumulated per-hop
// threshold budget exceeds r.Deadline, or any hop saturates (the rate
// invariant about to break), the attempt is abandoned and a *Violation
// is returned; the topology is left completely unmodified in that case
// (all edits are buffered and only flushed on success).
func ReserveResources(store *topology.Store, priority int, r Reservation) (*Violation, error) {
	type edit struct {
		arc   topology.ArcID
		layer int
		state topology.LinkState
	}
	edits := make([]edit, 0, len(r.Path))

	alphaNew := curve.NewArrivalCurve(r.Rate, r.Burst)
	var hopBudget float64

	for i, arc := range r.Path {
		layer, threshold := hopPlan(store, priority, i)

		ls, ok := store.Get(arc, layer)
		if !ok {
			return nil, fmt.Errorf("dnc: reserve: unknown arc %s at priority %d", arc, layer)
		}

		updated := ls
		updated.Arrival = ls.Arrival.Add(alphaNew)
		edits = append(edits, edit{arc: arc, layer: layer, state: updated})

		alphaNew = ls.Service.ConvThreshold(alphaNew, threshold)
		if alphaNew.IsUnstable() {
			v := &Violation{Kind: Rate, Arc: arc, Current: ls.Service.Rate, MaxAllowed: math.Inf(1)}
			slog.Error("dnc: reservation rejected", "violation", v.Kind.String(), "arc", arc.String(), "limit", v.MaxAllowed)
			return v, nil
		}
		hopBudget += threshold
	}

	if hopBudget > r.Deadline {
		v := &Violation{Kind: FlowDeadline, Current: r.Deadline, MaxAllowed: hopBudget}
		slog.Error("dnc: reservation rejected", "violation", v.Kind.String(), "deadline", r.Deadline, "hopBudget", hopBudget)
		return v, nil
	}

	for _, e := range edits {
		if err := store.Set(e.arc, e.layer, e.state); err != nil {
			return nil, err
		}
	}

	return nil, nil
}

// RemoveResources mirrors ReserveResources using arrival-curve
// subtraction, then runs RefreshAndValidate to recompute residuals and
// costs. There is no violation path: releasing a reservation that was
// never applied is a caller bug, not a violation, and the only errors
// returned are for an unknown arc or a violation found by the
// follow-up refresh (see the design
// notes' discussion of why this isn't an exact algebraic inverse of
// ReserveResources when the reserved curve had already been convolved
// upstream — P3 round-trip equality is the authoritative contract,
// verified by test, not derived from this asymmetry).
func RemoveResources(store *topology.Store, priority int, r Reservation) error {
	alphaOld := curve.NewArrivalCurve(r.Rate, r.Burst)

	for i, arc := range r.Path {
		layer, threshold := hopPlan(store, priority, i)

		ls, ok := store.Get(arc, layer)
		if !ok {
			return fmt.Errorf("dnc: remove: unknown arc %s at priority %d", arc, layer)
		}

		updated := ls
		updated.Arrival = ls.Arrival.Sub(alphaOld)
		if err := store.Set(arc, layer, updated); err != nil {
			return err
		}

		alphaOld = ls.Service.ConvThreshold(alphaOld, threshold)
	}

	if v, err := RefreshAndValidate(store); err != nil {
		return err
	} else if v != nil {
		return fmt.Errorf("dnc: remove: unexpected %w after release", v)
	}

	return nil
}

// RefreshAndValidate recomputes, layer by layer from priority 0 up,
// each arc's queue delay, routing cost and residual service curve, and
// carries the residual down as the service curve available to the
// next priority layer for every arc whose tail is not a host (strict
// priority: lower layers only see what higher layers leave behind).
// Host-outgoing arcs are skipped at p>0: their LinkState is identical
// to layer 0 by construction (topology.Store redirects their reads and
// writes there), so re-deriving and re-validating it would be
// redundant, not incorrect.
//
// Returns the first invariant violation encountered (rate, then delay,
// then buffer, per arc, in (From, To) order), or nil if every arc
// satisfies all three.
func RefreshAndValidate(store *topology.Store) (*Violation, error) {
	arcs := store.AllArcs()

	for p := 0; p < store.Priorities(); p++ {
		threshold := store.Threshold(p)

		for _, arc := range arcs {
			if p > 0 && store.IsHostOutgoing(arc) {
				continue
			}

			ls, ok := store.Get(arc, p)
			if !ok {
				continue
			}

			ls.QDelay = ls.Service.Delay(ls.Arrival)
			ls.Cost = 1 + 1e6*ls.QDelay
			residual := ls.Service.Residual(ls.Arrival)

			if err := store.Set(arc, p, ls); err != nil {
				return nil, err
			}

			if p+1 < store.Priorities() && !store.IsHostOutgoing(arc) {
				next, ok := store.Get(arc, p+1)
				if ok {
					next.Service = residual
					if err := store.Set(arc, p+1, next); err != nil {
						return nil, err
					}
				}
			}

			if v := checkInvariants(arc, ls, threshold); v != nil {
				slog.Error("dnc: invariant violated", "violation", v.Kind.String(), "arc", arc.String(),
					"current", v.Current, "limit", v.MaxAllowed)
				return v, nil
			}
		}
	}

	return nil, nil
}

// checkInvariants verifies rate, delay, then buffer for a single arc's
// current LinkState, in that order.
func checkInvariants(arc topology.ArcID, ls topology.LinkState, threshold float64) *Violation {
	if ls.Arrival.Rate > ls.Service.Rate {
		return &Violation{Kind: Rate, Arc: arc, Current: ls.Arrival.Rate, MaxAllowed: ls.Service.Rate}
	}
	if ls.QDelay > threshold {
		return &Violation{Kind: Delay, Arc: arc, Current: ls.QDelay, MaxAllowed: threshold}
	}
	bufferNeeded := ls.Service.BufferThreshold(ls.Arrival, threshold)
	if bufferNeeded > ls.BufferCapacity {
		return &Violation{Kind: Buffer, Arc: arc, Current: bufferNeeded, MaxAllowed: ls.BufferCapacity}
	}
	return nil
}
