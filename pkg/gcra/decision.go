package gcra

import (
	"fmt"
	"time"

	"github.com/manenim/gcra-limiter/pkg/clock"
	"github.com/manenim/gcra-limiter/pkg/nanos"
)

// NotUntil is a negative decision for a single cell. Its methods tell the
// caller when the next positive decision can be expected.
type NotUntil[P clock.Reference[P]] struct {
	gcra  *Gcra
	tat   nanos.Nanos
	start P
}

// EarliestPossible returns the earliest time at which a new decision could
// conform. Conforming decisions made by other callers in the meantime are not
// taken into account.
func (n *NotUntil[P]) EarliestPossible() P {
	return n.start.Add(n.tat)
}

// WaitTimeFrom returns how long a caller at from has to wait before a
// decision can conform. It is zero if that time has already passed.
func (n *NotUntil[P]) WaitTimeFrom(from P) time.Duration {
	earliest := n.EarliestPossible()
	return earliest.DurationSince(clock.Earliest(earliest, from)).Duration()
}

// EarliestPossibleWithOffset is EarliestPossible pushed back by a random
// amount drawn from jitter.
func (n *NotUntil[P]) EarliestPossibleWithOffset(jitter Jitter) P {
	return n.start.Add(jitter.Get().Add(n.tat))
}

// WaitTimeWithOffset is WaitTimeFrom measured against a jittered earliest
// time, so that callers rejected together do not all retry at once.
func (n *NotUntil[P]) WaitTimeWithOffset(from P, jitter Jitter) time.Duration {
	earliest := n.EarliestPossibleWithOffset(jitter)
	return earliest.DurationSince(clock.Earliest(earliest, from)).Duration()
}

// Quota returns the quota of the limiter that made the decision.
func (n *NotUntil[P]) Quota() Quota {
	return n.gcra.Quota()
}

func (n *NotUntil[P]) Error() string {
	return fmt.Sprintf("rate-limited until %v", n.EarliestPossible())
}

func (n *NotUntil[P]) Is(target error) bool {
	return target == ErrRateLimited
}

// NegativeMultiDecision is the result of a rejected batch. It is either
// *InsufficientCapacity or *BatchNonConforming.
type NegativeMultiDecision interface {
	error
	negativeMultiDecision()
}

// InsufficientCapacity means the batch is larger than the bucket. It will
// never succeed; MaxCells is the largest batch the limiter can ever admit.
type InsufficientCapacity struct {
	MaxCells uint32
}

func (e *InsufficientCapacity) Error() string {
	return fmt.Sprintf("required number of cells exceeds capacity, at most %d can be admitted", e.MaxCells)
}

func (e *InsufficientCapacity) Is(target error) bool {
	return target == ErrInsufficientCapacity
}

func (*InsufficientCapacity) negativeMultiDecision() {}

// BatchNonConforming means the N requested cells do not fit right now but
// will at the time described by NotUntil.
type BatchNonConforming[P clock.Reference[P]] struct {
	N        uint32
	NotUntil *NotUntil[P]
}

func (e *BatchNonConforming[P]) Error() string {
	return fmt.Sprintf("%d cells not conforming: %v", e.N, e.NotUntil)
}

func (e *BatchNonConforming[P]) Unwrap() error {
	return e.NotUntil
}

func (*BatchNonConforming[P]) negativeMultiDecision() {}

var (
	_ NegativeMultiDecision = (*InsufficientCapacity)(nil)
	_ NegativeMultiDecision = (*BatchNonConforming[nanos.Nanos])(nil)
)
