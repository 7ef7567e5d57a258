package clock

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/manenim/gcra-limiter/pkg/nanos"
)

// Instant is a Reference backed by a time.Time.
type Instant struct {
	t time.Time
}

// NewInstant wraps t.
func NewInstant(t time.Time) Instant {
	return Instant{t: t}
}

// UnixEpoch is the wall-clock origin shared by every process. Limiters whose
// state lives in a shared store must measure time from it.
func UnixEpoch() Instant {
	return Instant{t: time.Unix(0, 0).UTC()}
}

// Time returns the wrapped time.Time.
func (i Instant) Time() time.Time {
	return i.t
}

func (i Instant) DurationSince(earlier Instant) nanos.Nanos {
	return nanos.FromDuration(i.t.Sub(earlier.t))
}

func (i Instant) Add(d nanos.Nanos) Instant {
	return Instant{t: i.t.Add(d.Duration())}
}

func (i Instant) Before(other Instant) bool {
	return i.t.Before(other.t)
}

func (i Instant) String() string {
	return i.t.Format(time.RFC3339Nano)
}

// MonotonicClock reads time.Now and keeps its monotonic component, so elapsed
// time is immune to wall-clock adjustments. Its instants are only meaningful
// within the current process.
type MonotonicClock struct{}

func (MonotonicClock) Now() Instant {
	return Instant{t: time.Now()}
}

func (MonotonicClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// SystemClock reads wall-clock time with the monotonic reading stripped, so
// instants taken in different processes can be compared. Use it together with
// UnixEpoch when state is shared between replicas.
type SystemClock struct{}

func (SystemClock) Now() Instant {
	return Instant{t: time.Now().Round(0)}
}

func (SystemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// Clockwork adapts a clockwork.Clock. With clockwork.NewFakeClock it gives
// deterministic control over both the instants handed to the limiter and the
// timers it waits on.
type Clockwork struct {
	c clockwork.Clock
}

// NewClockwork wraps c.
func NewClockwork(c clockwork.Clock) *Clockwork {
	return &Clockwork{c: c}
}

func (c *Clockwork) Now() Instant {
	return Instant{t: c.c.Now()}
}

func (c *Clockwork) After(d time.Duration) <-chan time.Time {
	return c.c.After(d)
}

var (
	_ Clock[Instant] = MonotonicClock{}
	_ Clock[Instant] = SystemClock{}
	_ Clock[Instant] = (*Clockwork)(nil)
	_ Waiter         = MonotonicClock{}
	_ Waiter         = SystemClock{}
	_ Waiter         = (*Clockwork)(nil)
)
