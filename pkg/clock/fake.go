package clock

import (
	"sync/atomic"
	"time"

	"github.com/manenim/gcra-limiter/pkg/nanos"
)

// FakeRelativeClock is a deterministic clock whose references are plain
// nanos.Nanos counted from zero. Time only moves when Advance or Set is
// called. It cannot wait, so it does not implement Waiter.
type FakeRelativeClock struct {
	now atomic.Uint64
}

func (c *FakeRelativeClock) Now() nanos.Nanos {
	return nanos.Nanos(c.now.Load())
}

// Advance moves the clock forward by d. Negative durations are ignored.
func (c *FakeRelativeClock) Advance(d time.Duration) {
	c.now.Add(uint64(nanos.FromDuration(d)))
}

// Set moves the clock to an absolute reading.
func (c *FakeRelativeClock) Set(n nanos.Nanos) {
	c.now.Store(uint64(n))
}

var _ Clock[nanos.Nanos] = (*FakeRelativeClock)(nil)
