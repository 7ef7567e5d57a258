package gcra

import (
	"math/rand/v2"
	"time"

	"github.com/manenim/gcra-limiter/pkg/nanos"
)

// Jitter is a random delay added to retry times. The zero value adds nothing.
type Jitter struct {
	min      nanos.Nanos
	interval nanos.Nanos
}

// NewJitter returns a jitter of at least lo and at most lo+interval.
func NewJitter(lo, interval time.Duration) Jitter {
	return Jitter{min: nanos.FromDuration(lo), interval: nanos.FromDuration(interval)}
}

// JitterUpTo returns a jitter between zero and hi.
func JitterUpTo(hi time.Duration) Jitter {
	return NewJitter(0, hi)
}

// Get draws a delay uniformly from [min, min+interval].
func (j Jitter) Get() nanos.Nanos {
	if j.interval == 0 {
		return j.min
	}
	return j.min.Add(nanos.Nanos(rand.Uint64N(uint64(j.interval) + 1)))
}
