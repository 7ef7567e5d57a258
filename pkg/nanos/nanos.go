// Package nanos provides the time value all GCRA arithmetic is performed in.
//
// A Nanos is an unsigned count of nanoseconds measured from some reference
// point chosen by the caller. Subtraction saturates at zero and addition and
// multiplication saturate at the maximum value, so no computation on Nanos can
// wrap around or go negative.
package nanos

import (
	"math"
	"math/bits"
	"time"
)

// Nanos is a non-negative duration in nanoseconds from an arbitrary origin.
type Nanos uint64

// Max is the largest representable Nanos value.
const Max = Nanos(math.MaxUint64)

// FromDuration converts d to Nanos. Negative durations become zero.
func FromDuration(d time.Duration) Nanos {
	if d <= 0 {
		return 0
	}
	return Nanos(d)
}

// Duration converts n back to a time.Duration, saturating at the largest
// representable duration.
func (n Nanos) Duration() time.Duration {
	if n > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(n)
}

// AsUint64 returns the raw nanosecond count.
func (n Nanos) AsUint64() uint64 {
	return uint64(n)
}

// SaturatingSub returns n - o, or zero if o is larger than n.
func (n Nanos) SaturatingSub(o Nanos) Nanos {
	if o >= n {
		return 0
	}
	return n - o
}

// Add returns n + o, saturating at Max.
func (n Nanos) Add(o Nanos) Nanos {
	sum, carry := bits.Add64(uint64(n), uint64(o), 0)
	if carry != 0 {
		return Max
	}
	return Nanos(sum)
}

// Mul returns n * k, saturating at Max.
func (n Nanos) Mul(k uint64) Nanos {
	hi, lo := bits.Mul64(uint64(n), k)
	if hi != 0 {
		return Max
	}
	return Nanos(lo)
}

// Div returns how many whole o fit into n. Dividing by zero returns zero.
func (n Nanos) Div(o Nanos) uint64 {
	if o == 0 {
		return 0
	}
	return uint64(n) / uint64(o)
}

// DurationSince returns the time elapsed between earlier and n, or zero when
// earlier is not before n. Together with Add and Before this lets Nanos act as
// its own clock reference.
func (n Nanos) DurationSince(earlier Nanos) Nanos {
	return n.SaturatingSub(earlier)
}

// Before reports whether n is strictly earlier than o.
func (n Nanos) Before(o Nanos) bool {
	return n < o
}

// String renders n in the form Nanos(1.5s).
func (n Nanos) String() string {
	return "Nanos(" + n.Duration().String() + ")"
}

// Maximum returns the later of a and b.
func Maximum(a, b Nanos) Nanos {
	if a > b {
		return a
	}
	return b
}

// Minimum returns the earlier of a and b.
func Minimum(a, b Nanos) Nanos {
	if a < b {
		return a
	}
	return b
}
