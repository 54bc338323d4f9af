// Package curve implements the Deterministic Network Calculus (DNC) algebra
// this module relies on: token-bucket arrival curves and rate-latency
// service curves, with the closed-form operators used to compose them,
// derive delay and buffer bounds, and compute residual capacity.
//
// Every operation is pure and numerically saturating: once an arrival
// curve's rate would exceed the serving rate, the result saturates to
// +Inf rather than erroring. Saturation is the mechanism by which the
// DNC agent (package dnc) detects instability — it is a first-class
// value, not an error condition.
package curve

import "math"

// MTUSerializationDelay is the one-MTU serialization delay constant (in
// seconds) added to a link's propagation delay when its initial
// rate-latency service curve is constructed. Must match across any
// cross-implementation deployment.
const MTUSerializationDelay = 24.48e-6

// ArrivalCurve represents a token-bucket arrival curve α(t) = Rate*t + Burst:
// an upper bound on the cumulative traffic a flow may present in any
// window of length t. Rate is in bits/second, Burst in bits.
type ArrivalCurve struct {
	Rate  float64
	Burst float64
}

// NewArrivalCurve builds an ArrivalCurve, clamping negative inputs to zero.
func NewArrivalCurve(rate, burst float64) ArrivalCurve {
	return ArrivalCurve{Rate: nonNegative(rate), Burst: nonNegative(burst)}
}

// Add combines two arrival curves (e.g. when a new flow's reservation is
// superimposed on a link's existing aggregate arrival curve).
func (a ArrivalCurve) Add(o ArrivalCurve) ArrivalCurve {
	return ArrivalCurve{Rate: a.Rate + o.Rate, Burst: a.Burst + o.Burst}
}

// Sub removes o's contribution from a (e.g. when a flow's reservation is
// released). Each field is clamped at zero independently, matching the
// token-bucket model's definition rather than failing on a negative
// intermediate result.
func (a ArrivalCurve) Sub(o ArrivalCurve) ArrivalCurve {
	return ArrivalCurve{Rate: nonNegative(a.Rate - o.Rate), Burst: nonNegative(a.Burst - o.Burst)}
}

// IsUnstable reports whether a has saturated to the unbounded (+Inf, +Inf)
// curve, the saturating representation of "this link can no longer serve
// this traffic class".
func (a ArrivalCurve) IsUnstable() bool {
	return math.IsInf(a.Rate, 1)
}

func nonNegative(x float64) float64 {
	if x < 0 {
		return 0
	}
	return x
}

// ServiceCurve represents a rate-latency service curve
// β(t) = Rate * max(0, t - Latency): a lower bound on the service a
// link/queue offers. Latency is in seconds, Rate in bits/second.
type ServiceCurve struct {
	Latency float64
	Rate    float64
}

// NewServiceCurve builds a ServiceCurve from latency (seconds) and rate
// (bits/second).
func NewServiceCurve(latency, rate float64) ServiceCurve {
	return ServiceCurve{Latency: latency, Rate: rate}
}

// Compose performs serial composition of two service curves: the
// combined latency is the sum of both latencies, and the combined rate
// is the minimum of both rates (the slower stage bottlenecks the pair).
func (b ServiceCurve) Compose(o ServiceCurve) ServiceCurve {
	return ServiceCurve{Latency: b.Latency + o.Latency, Rate: math.Min(b.Rate, o.Rate)}
}

// unstable is the saturating "this link can no longer serve this
// arrival curve" arrival curve: both fields are +Inf.
var unstable = ArrivalCurve{Rate: math.Inf(1), Burst: math.Inf(1)}

// Conv convolves b with an input arrival curve a, returning the output
// arrival curve α' = α ⊗ β downstream of this service curve. If a's rate
// exceeds b's rate the link is unstable and Conv saturates to (+Inf, +Inf).
func (b ServiceCurve) Conv(a ArrivalCurve) ArrivalCurve {
	if a.Rate > b.Rate {
		return unstable
	}
	return ArrivalCurve{Rate: a.Rate, Burst: a.Burst + a.Rate*b.Latency}
}

// ConvThreshold is the "chameleon" variant of Conv used uniformly across
// priority classes: it replaces b's own latency with the priority
// queue's delay-budget threshold T, giving a pessimistic but uniform
// bound regardless of the queue's actual service-curve latency.
func (b ServiceCurve) ConvThreshold(a ArrivalCurve, threshold float64) ArrivalCurve {
	if a.Rate > b.Rate {
		return unstable
	}
	return ArrivalCurve{Rate: a.Rate, Burst: a.Burst + a.Rate*threshold}
}

// Delay returns the worst-case queueing delay bound (seconds) this
// service curve guarantees for arrival curve a, or +Inf if a's rate
// exceeds b's rate (unstable).
func (b ServiceCurve) Delay(a ArrivalCurve) float64 {
	if a.Rate > b.Rate {
		return math.Inf(1)
	}
	return (a.Burst + b.Latency*b.Rate) / b.Rate
}

// Buffer returns the worst-case buffer requirement (bits) for arrival
// curve a under this service curve, or +Inf if unstable.
func (b ServiceCurve) Buffer(a ArrivalCurve) float64 {
	if a.Rate > b.Rate {
		return math.Inf(1)
	}
	return a.Burst + a.Rate*b.Latency
}

// BufferThreshold is Buffer with b's latency replaced by threshold T,
// the chameleon counterpart of ConvThreshold.
func (b ServiceCurve) BufferThreshold(a ArrivalCurve, threshold float64) float64 {
	if a.Rate > b.Rate {
		return math.Inf(1)
	}
	return a.Burst + a.Rate*threshold
}

// Residual returns the service curve remaining for lower-priority
// traffic after b has served arrival curve a (strict-priority
// scheduling). Returns the zero service curve if a's rate exceeds b's
// rate (nothing is left to residual; the link is already unstable).
func (b ServiceCurve) Residual(a ArrivalCurve) ServiceCurve {
	if a.Rate > b.Rate {
		return ServiceCurve{}
	}
	rate := b.Rate - a.Rate
	latency := (a.Burst + b.Rate*b.Latency) / rate
	return ServiceCurve{Latency: latency, Rate: rate}
}
