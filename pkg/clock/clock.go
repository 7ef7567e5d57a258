// Package clock abstracts the time source the rate limiter reads from.
//
// The decision engine never looks at wall-clock timestamps directly. It asks a
// Clock for the current Reference and measures elapsed time between two
// references in nanos.Nanos. This keeps the algorithm identical whether it is
// driven by the process monotonic clock, by wall-clock time shared between
// replicas, or by a fake clock in tests.
package clock

import (
	"time"

	"github.com/manenim/gcra-limiter/pkg/nanos"
)

// Reference is a point in time produced by a Clock. P is the concrete
// reference type itself.
type Reference[P any] interface {
	// DurationSince returns the time elapsed since earlier, or zero if earlier
	// is not before the receiver.
	DurationSince(earlier P) nanos.Nanos
	// Add returns the reference offset by d.
	Add(d nanos.Nanos) P
	// Before reports whether the receiver is strictly earlier than other.
	Before(other P) bool
}

// Clock returns the current time as a Reference.
type Clock[P Reference[P]] interface {
	Now() P
}

// Waiter is implemented by clocks that can actually wait, as opposed to
// purely simulated ones.
type Waiter interface {
	After(d time.Duration) <-chan time.Time
}

// Earliest returns the earlier of a and b.
func Earliest[P Reference[P]](a, b P) P {
	if b.Before(a) {
		return b
	}
	return a
}
