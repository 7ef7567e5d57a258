package gcra

import (
	"context"
	"fmt"
	"time"

	"github.com/manenim/gcra-limiter/pkg/clock"
	"github.com/manenim/gcra-limiter/pkg/nanos"
)

// StateStore persists one theoretical arrival time per key.
//
// MeasureAndReplace must behave as a single atomic step per key: read the
// stored value (ok is false if the key has never been charged), call f, and
// install the value f returns only if f returned a nil error and no other
// decision replaced the stored value in the meantime. If f returns an error
// nothing is written and that error is returned unchanged. Implementations
// built on optimistic concurrency may call f several times; only the last
// call counts.
type StateStore[K comparable] interface {
	MeasureAndReplace(ctx context.Context, key K, f func(tat nanos.Nanos, ok bool) (nanos.Nanos, error)) error
}

// NotKeyed is the key type of stores holding a single state.
type NotKeyed struct{}

// Gcra holds the two constants derived from a Quota. It has no mutable state
// and is safe to share between any number of goroutines.
type Gcra struct {
	// time cost of a single cell
	t nanos.Nanos
	// bucket capacity
	tau nanos.Nanos
}

// New derives the engine constants from q. The quota must be valid.
func New(q Quota) *Gcra {
	t := nanos.FromDuration(q.replenish1Per)
	return &Gcra{
		t:   t,
		tau: t.Mul(uint64(q.maxBurst)),
	}
}

// T is the weight of a single cell.
func (g *Gcra) T() nanos.Nanos { return g.t }

// Tau is the burst capacity.
func (g *Gcra) Tau() nanos.Nanos { return g.tau }

// Quota reconstructs the quota the engine was built from.
func (g *Gcra) Quota() Quota {
	return Quota{
		replenish1Per: g.t.Duration(),
		maxBurst:      uint32(g.tau.Div(g.t)),
	}
}

func (g *Gcra) String() string {
	return fmt.Sprintf("Gcra{t: %v, tau: %v}", g.t.Duration(), g.tau.Duration())
}

// startingState is the tat of a key seen for the first time at t0: the
// first cell is treated as already being charged.
func (g *Gcra) startingState(t0 nanos.Nanos) nanos.Nanos {
	return t0.Add(g.t)
}

// TestAndUpdate tests a single cell for key at now and, if it conforms,
// charges it. A non-conforming cell yields a *NotUntil error and leaves the
// stored state untouched. Errors from the store are returned as is.
func TestAndUpdate[K comparable, P clock.Reference[P]](
	ctx context.Context,
	g *Gcra,
	start P,
	key K,
	state StateStore[K],
	now P,
) (StateSnapshot, error) {
	t0 := now.DurationSince(start)
	t, tau := g.t, g.tau

	var snap StateSnapshot
	err := state.MeasureAndReplace(ctx, key, func(tat nanos.Nanos, ok bool) (nanos.Nanos, error) {
		if !ok {
			tat = g.startingState(t0)
		}
		earliest := tat.SaturatingSub(tau)
		if t0 < earliest {
			return 0, &NotUntil[P]{gcra: g, tat: earliest, start: start}
		}
		next := nanos.Maximum(tat, t0).Add(t)
		snap = StateSnapshot{t: t, tau: tau, timeOfMeasurement: t0, tat: next}
		return next, nil
	})
	if err != nil {
		return StateSnapshot{}, err
	}
	return snap, nil
}

// TestNAllAndUpdate admits n cells for key at now, or none of them.
//
// If n cells can never fit into the bucket the result is an
// *InsufficientCapacity error and the store is not consulted. If they could
// fit but not right now the result is a *BatchNonConforming error.
func TestNAllAndUpdate[K comparable, P clock.Reference[P]](
	ctx context.Context,
	g *Gcra,
	start P,
	key K,
	n uint32,
	state StateStore[K],
	now P,
) (StateSnapshot, error) {
	if n == 0 {
		return StateSnapshot{}, fmt.Errorf("%w: batch must hold at least one cell", ErrInvalidCellCount)
	}
	t0 := now.DurationSince(start)
	t, tau := g.t, g.tau
	additionalWeight := t.Mul(uint64(n - 1))

	// additionalWeight covers the cells after the first; add the first back.
	if additionalWeight.Add(t) > tau {
		return StateSnapshot{}, &InsufficientCapacity{MaxCells: uint32(tau.Div(t))}
	}

	var snap StateSnapshot
	err := state.MeasureAndReplace(ctx, key, func(tat nanos.Nanos, ok bool) (nanos.Nanos, error) {
		if !ok {
			tat = g.startingState(t0)
		}
		earliest := tat.Add(additionalWeight).SaturatingSub(tau)
		if t0 < earliest {
			return 0, &BatchNonConforming[P]{
				N:        n,
				NotUntil: &NotUntil[P]{gcra: g, tat: earliest, start: start},
			}
		}
		next := nanos.Maximum(tat, t0).Add(t).Add(additionalWeight)
		snap = StateSnapshot{t: t, tau: tau, timeOfMeasurement: t0, tat: next}
		return next, nil
	})
	if err != nil {
		return StateSnapshot{}, err
	}
	return snap, nil
}

// StateSnapshot describes a key's state right after a positive decision.
type StateSnapshot struct {
	t                 nanos.Nanos
	tau               nanos.Nanos
	timeOfMeasurement nanos.Nanos
	tat               nanos.Nanos
}

// Tat is the theoretical arrival time installed by the decision.
func (s StateSnapshot) Tat() nanos.Nanos { return s.tat }

// Quota is the quota in effect for the decision.
func (s StateSnapshot) Quota() Quota {
	return (&Gcra{t: s.t, tau: s.tau}).Quota()
}

// RemainingBurstCapacity is the number of cells that could still be admitted
// at the time of the decision.
func (s StateSnapshot) RemainingBurstCapacity() uint32 {
	if s.t == 0 {
		return 0
	}
	t0 := s.timeOfMeasurement.Add(s.t)
	free := nanos.Minimum(t0.Add(s.tau).SaturatingSub(s.tat), s.tau)
	return uint32(free.Div(s.t))
}

// ResetAfter is how long it takes from the decision until the bucket is full
// again.
func (s StateSnapshot) ResetAfter() time.Duration {
	return s.tat.SaturatingSub(s.timeOfMeasurement.Add(s.t)).Duration()
}
