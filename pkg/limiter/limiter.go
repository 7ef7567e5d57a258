package limiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/manenim/gcra-limiter/pkg/clock"
	"github.com/manenim/gcra-limiter/pkg/gcra"
	"github.com/manenim/gcra-limiter/pkg/nanos"
)

// RateLimiter ties a GCRA quota to a state store and a clock.
//
// All methods are safe for concurrent use; any synchronization happens in the
// state store.
type RateLimiter[K comparable, P clock.Reference[P]] struct {
	gcra  *gcra.Gcra
	state gcra.StateStore[K]
	clock clock.Clock[P]
	start P
	opts  options
}

// New constructs a RateLimiter whose time origin is the clock's current
// reading.
func New[K comparable, P clock.Reference[P]](q gcra.Quota, state gcra.StateStore[K], clk clock.Clock[P], opts ...Option) (*RateLimiter[K, P], error) {
	return NewWithStart(q, state, clk, clk.Now(), opts...)
}

// NewWithStart is New with an explicit time origin. Limiters sharing one
// store across processes must share the origin as well.
func NewWithStart[K comparable, P clock.Reference[P]](q gcra.Quota, state gcra.StateStore[K], clk clock.Clock[P], start P, opts ...Option) (*RateLimiter[K, P], error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if state == nil {
		return nil, errors.New("limiter: nil state store")
	}
	return &RateLimiter[K, P]{
		gcra:  gcra.New(q),
		state: state,
		clock: clk,
		start: start,
		opts:  buildOptions(opts),
	}, nil
}

// Quota returns the quota the limiter enforces.
func (l *RateLimiter[K, P]) Quota() gcra.Quota {
	return l.gcra.Quota()
}

// Elapsed returns the time since the limiter's origin, on the same scale as
// the stored theoretical arrival times.
func (l *RateLimiter[K, P]) Elapsed() nanos.Nanos {
	return l.clock.Now().DurationSince(l.start)
}

// CheckKey admits a single cell for key if it conforms. A non-conforming cell
// yields a *gcra.NotUntil error.
func (l *RateLimiter[K, P]) CheckKey(ctx context.Context, key K) (gcra.StateSnapshot, error) {
	return l.measure(ctx, func(ctx context.Context) (gcra.StateSnapshot, error) {
		return gcra.TestAndUpdate(ctx, l.gcra, l.start, key, l.state, l.clock.Now())
	})
}

// CheckKeyN admits n cells for key at once, or none of them. The error is a
// *gcra.InsufficientCapacity if n cells can never be admitted and a
// *gcra.BatchNonConforming if they cannot be admitted yet.
func (l *RateLimiter[K, P]) CheckKeyN(ctx context.Context, key K, n uint32) (gcra.StateSnapshot, error) {
	return l.measure(ctx, func(ctx context.Context) (gcra.StateSnapshot, error) {
		return gcra.TestNAllAndUpdate(ctx, l.gcra, l.start, key, n, l.state, l.clock.Now())
	})
}

// Allow is CheckKey reported as a Decision. Only a non-conforming cell
// produces a negative Decision; store failures are returned as errors.
func (l *RateLimiter[K, P]) Allow(ctx context.Context, key K) (Decision, error) {
	burst := int64(l.gcra.Quota().BurstSize())

	snap, err := l.CheckKey(ctx, key)
	if err != nil {
		var nu *gcra.NotUntil[P]
		if !errors.As(err, &nu) {
			return Decision{}, err
		}
		retryAfter := nu.WaitTimeFrom(l.clock.Now())
		return Decision{
			Allow:      false,
			Limit:      burst,
			Remaining:  0,
			RetryAfter: retryAfter,
			ResetTime:  time.Now().Add(retryAfter),
		}, nil
	}

	return Decision{
		Allow:     true,
		Limit:     burst,
		Remaining: int64(snap.RemainingBurstCapacity()),
		ResetTime: time.Now().Add(snap.ResetAfter()),
	}, nil
}

// UntilKeyReady blocks until a single cell for key is admitted or ctx is
// done. The clock must implement clock.Waiter.
func (l *RateLimiter[K, P]) UntilKeyReady(ctx context.Context, key K) error {
	return l.until(ctx, func() error {
		_, err := l.CheckKey(ctx, key)
		return err
	})
}

// UntilKeyNReady blocks until n cells for key are admitted together or ctx is
// done. A batch exceeding the burst size fails immediately with
// *gcra.InsufficientCapacity.
func (l *RateLimiter[K, P]) UntilKeyNReady(ctx context.Context, key K, n uint32) error {
	return l.until(ctx, func() error {
		_, err := l.CheckKeyN(ctx, key, n)
		return err
	})
}

func (l *RateLimiter[K, P]) until(ctx context.Context, check func() error) error {
	waiter, ok := l.clock.(clock.Waiter)
	if !ok {
		return ErrClockCannotWait
	}
	for {
		err := check()
		var nu *gcra.NotUntil[P]
		if !errors.As(err, &nu) {
			return err
		}
		wait := nu.WaitTimeWithOffset(l.clock.Now(), l.opts.jitter)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-waiter.After(wait):
		}
	}
}

// measure runs one decision under the configured timeout and records it.
func (l *RateLimiter[K, P]) measure(ctx context.Context, decide func(context.Context) (gcra.StateSnapshot, error)) (gcra.StateSnapshot, error) {
	if l.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.opts.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		l.opts.recorder.Observe(MetricLatency, time.Since(start).Seconds(), nil)
	}()
	l.opts.recorder.Add(MetricCall, 1, nil)

	if err := ctx.Err(); err != nil {
		l.opts.recorder.Add(MetricError, 1, nil)
		return gcra.StateSnapshot{}, err
	}

	snap, err := decide(ctx)
	switch {
	case err == nil:
	case errors.Is(err, gcra.ErrRateLimited):
		l.opts.recorder.Add(MetricDenied, 1, map[string]string{"reason": ReasonNotUntil})
	case errors.Is(err, gcra.ErrInsufficientCapacity):
		l.opts.recorder.Add(MetricDenied, 1, map[string]string{"reason": ReasonInsufficientCapacity})
	default:
		l.opts.recorder.Add(MetricError, 1, nil)
	}
	return snap, err
}

func (l *RateLimiter[K, P]) String() string {
	return fmt.Sprintf("RateLimiter{%v}", l.gcra.Quota())
}

// Direct is a limiter with a single, unkeyed state.
type Direct[P clock.Reference[P]] struct {
	*RateLimiter[gcra.NotKeyed, P]
}

// NewDirect constructs an unkeyed limiter backed by an InMemoryState.
func NewDirect[P clock.Reference[P]](q gcra.Quota, clk clock.Clock[P], opts ...Option) (*Direct[P], error) {
	l, err := New[gcra.NotKeyed](q, NewInMemoryState(), clk, opts...)
	if err != nil {
		return nil, err
	}
	return &Direct[P]{RateLimiter: l}, nil
}

// Check admits a single cell if it conforms.
func (d *Direct[P]) Check(ctx context.Context) (gcra.StateSnapshot, error) {
	return d.CheckKey(ctx, gcra.NotKeyed{})
}

// CheckN admits n cells at once, or none of them.
func (d *Direct[P]) CheckN(ctx context.Context, n uint32) (gcra.StateSnapshot, error) {
	return d.CheckKeyN(ctx, gcra.NotKeyed{}, n)
}

// UntilReady blocks until a single cell is admitted.
func (d *Direct[P]) UntilReady(ctx context.Context) error {
	return d.UntilKeyReady(ctx, gcra.NotKeyed{})
}

// UntilNReady blocks until n cells are admitted together.
func (d *Direct[P]) UntilNReady(ctx context.Context, n uint32) error {
	return d.UntilKeyNReady(ctx, gcra.NotKeyed{}, n)
}

// MemoryLimiter is an in-process limiter keyed by Identity.
type MemoryLimiter struct {
	*RateLimiter[Identity, clock.Instant]
	state *HashMapState[Identity]
}

// NewMemoryLimiter constructs an in-process limiter on the monotonic clock.
//
// Its state is local to the process; use NewRedisLimiter to enforce a single
// limit across replicas.
func NewMemoryLimiter(q gcra.Quota, opts ...Option) (*MemoryLimiter, error) {
	state := NewHashMapState[Identity]()
	l, err := New[Identity, clock.Instant](q, state, clock.MonotonicClock{}, opts...)
	if err != nil {
		return nil, err
	}
	return &MemoryLimiter{RateLimiter: l, state: state}, nil
}

// Len returns the number of identities currently tracked.
func (m *MemoryLimiter) Len() int {
	return m.state.Len()
}

// Sweep forgets identities whose bucket has fully refilled and returns how
// many were dropped. A forgotten identity gets at most one cell less burst on
// its next visit (see HashMapState.RetainRecent).
func (m *MemoryLimiter) Sweep() int {
	return m.state.RetainRecent(m.Elapsed())
}

var (
	_ Allower[Identity] = (*MemoryLimiter)(nil)
	_ Allower[Identity] = (*RateLimiter[Identity, clock.Instant])(nil)
)
