package gcra_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manenim/gcra-limiter/pkg/gcra"
	"github.com/manenim/gcra-limiter/pkg/nanos"
)

// mapStore is a mutex-guarded store that never writes when the decision fails.
type mapStore struct {
	mu    sync.Mutex
	tats  map[string]nanos.Nanos
	calls int
}

func newMapStore() *mapStore {
	return &mapStore{tats: make(map[string]nanos.Nanos)}
}

func (s *mapStore) MeasureAndReplace(_ context.Context, key string, f func(nanos.Nanos, bool) (nanos.Nanos, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	tat, ok := s.tats[key]
	next, err := f(tat, ok)
	if err != nil {
		return err
	}
	s.tats[key] = next
	return nil
}

func (s *mapStore) tat(key string) (nanos.Nanos, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tat, ok := s.tats[key]
	return tat, ok
}

// failingStore always reports a storage failure.
type failingStore struct{ err error }

func (s failingStore) MeasureAndReplace(context.Context, string, func(nanos.Nanos, bool) (nanos.Nanos, error)) error {
	return s.err
}

// untouchableStore fails the test when it is consulted at all.
type untouchableStore struct{ t *testing.T }

func (s untouchableStore) MeasureAndReplace(context.Context, string, func(nanos.Nanos, bool) (nanos.Nanos, error)) error {
	s.t.Fatal("store must not be accessed")
	return nil
}

func sec(n int) nanos.Nanos {
	return nanos.FromDuration(time.Duration(n) * time.Second)
}

// oneSecondBurstFive is t=1s, tau=5s.
func oneSecondBurstFive(t *testing.T) gcra.Quota {
	t.Helper()
	q, err := gcra.WithPeriod(time.Second)
	require.NoError(t, err)
	q, err = q.AllowBurst(5)
	require.NoError(t, err)
	return q
}

func TestNew_DerivesConstants(t *testing.T) {
	t.Parallel()

	g := gcra.New(oneSecondBurstFive(t))
	assert.Equal(t, sec(1), g.T())
	assert.Equal(t, sec(5), g.Tau())
	assert.Equal(t, oneSecondBurstFive(t), g.Quota())
	assert.NotEmpty(t, g.String())
}

func TestTestAndUpdate_FirstCellAlwaysConforms(t *testing.T) {
	t.Parallel()

	quotas := []gcra.Quota{
		gcra.Must(gcra.PerSecond(1)),
		gcra.Must(gcra.PerHour(1000)),
		gcra.Must(gcra.WithPeriod(time.Nanosecond)),
		gcra.Must(gcra.WithPeriod(24 * time.Hour)),
	}
	for _, q := range quotas {
		g := gcra.New(q)
		_, err := gcra.TestAndUpdate(context.Background(), g, nanos.Nanos(0), "k", newMapStore(), nanos.Nanos(0))
		assert.NoError(t, err, "quota %v", q)
	}
}

func TestTestAndUpdate_StartingState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g := gcra.New(gcra.Must(gcra.PerSecond(1)))
	store := newMapStore()

	_, err := gcra.TestAndUpdate(ctx, g, nanos.Nanos(0), "k", store, sec(3))
	require.NoError(t, err)

	// tat0 = now + t, then the admitted cell adds another t.
	tat, ok := store.tat("k")
	require.True(t, ok)
	assert.Equal(t, sec(5), tat)
}

func TestTestAndUpdate_IdempotentRejection(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g := gcra.New(gcra.Must(gcra.PerSecond(1)))
	store := newMapStore()
	now := nanos.Nanos(0)

	_, err := gcra.TestAndUpdate(ctx, g, nanos.Nanos(0), "k", store, now)
	require.NoError(t, err)
	before, _ := store.tat("k")

	for range 5 {
		_, err := gcra.TestAndUpdate(ctx, g, nanos.Nanos(0), "k", store, now)
		var nu *gcra.NotUntil[nanos.Nanos]
		require.ErrorAs(t, err, &nu)
		assert.Equal(t, sec(1), nu.EarliestPossible())
		assert.Equal(t, "rate-limited until Nanos(1s)", nu.Error())
	}

	after, _ := store.tat("k")
	assert.Equal(t, before, after, "rejections must not mutate state")
}

func TestTestAndUpdate_TatNeverMovesBackward(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g := gcra.New(gcra.Must(gcra.PerSecond(10)))
	store := newMapStore()

	var last nanos.Nanos
	now := nanos.Nanos(0)
	steps := []time.Duration{0, 0, 5 * time.Millisecond, 0, 250 * time.Millisecond, time.Second, 0, 0, 3 * time.Second, 0}
	for _, step := range steps {
		now = now.Add(nanos.FromDuration(step))
		_, err := gcra.TestAndUpdate(ctx, g, nanos.Nanos(0), "k", store, now)
		if err != nil {
			require.ErrorIs(t, err, gcra.ErrRateLimited)
		}
		tat, _ := store.tat("k")
		assert.GreaterOrEqual(t, tat, last)
		last = tat
	}
}

func TestTestAndUpdate_BurstThenReplenish(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g := gcra.New(oneSecondBurstFive(t))
	store := newMapStore()
	start := nanos.Nanos(0)

	for i := range 5 {
		_, err := gcra.TestAndUpdate(ctx, g, start, "k", store, 0)
		require.NoError(t, err, "cell %d", i)
	}
	_, err := gcra.TestAndUpdate(ctx, g, start, "k", store, 0)
	var nu *gcra.NotUntil[nanos.Nanos]
	require.ErrorAs(t, err, &nu)
	assert.Equal(t, time.Second, nu.WaitTimeFrom(0))

	_, err = gcra.TestAndUpdate(ctx, g, start, "k", store, sec(1))
	assert.NoError(t, err, "one cell must be available after one replenish interval")
}

func TestTestAndUpdate_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g := gcra.New(gcra.Must(gcra.PerSecond(1)))
	store := newMapStore()

	for _, key := range []string{"a", "b", "c"} {
		_, err := gcra.TestAndUpdate(ctx, g, nanos.Nanos(0), key, store, 0)
		assert.NoError(t, err)
	}
	_, err := gcra.TestAndUpdate(ctx, g, nanos.Nanos(0), "a", store, 0)
	assert.ErrorIs(t, err, gcra.ErrRateLimited)
}

func TestTestAndUpdate_StoreErrorPropagates(t *testing.T) {
	t.Parallel()

	boom := errors.New("poisoned")
	g := gcra.New(gcra.Must(gcra.PerSecond(1)))

	_, err := gcra.TestAndUpdate(context.Background(), g, nanos.Nanos(0), "k", failingStore{err: boom}, 0)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, gcra.ErrRateLimited)

	_, err = gcra.TestNAllAndUpdate(context.Background(), g, nanos.Nanos(0), "k", 1, failingStore{err: boom}, 0)
	assert.ErrorIs(t, err, boom)
}

func TestTestNAllAndUpdate_ImpossibleBatch(t *testing.T) {
	t.Parallel()

	g := gcra.New(oneSecondBurstFive(t))

	for _, now := range []nanos.Nanos{0, sec(1), sec(1000)} {
		_, err := gcra.TestNAllAndUpdate(context.Background(), g, nanos.Nanos(0), "k", 6, untouchableStore{t: t}, now)

		var ic *gcra.InsufficientCapacity
		require.ErrorAs(t, err, &ic)
		assert.Equal(t, uint32(5), ic.MaxCells)
		assert.ErrorIs(t, err, gcra.ErrInsufficientCapacity)
		assert.NotErrorIs(t, err, gcra.ErrRateLimited, "impossible batches must never look retryable")

		var nmd gcra.NegativeMultiDecision
		assert.ErrorAs(t, err, &nmd)
	}
}

func TestTestNAllAndUpdate_ZeroCells(t *testing.T) {
	t.Parallel()

	g := gcra.New(oneSecondBurstFive(t))
	_, err := gcra.TestNAllAndUpdate(context.Background(), g, nanos.Nanos(0), "k", 0, untouchableStore{t: t}, 0)
	assert.ErrorIs(t, err, gcra.ErrInvalidCellCount)
}

func TestTestNAllAndUpdate_FullBatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g := gcra.New(oneSecondBurstFive(t))
	store := newMapStore()
	now := sec(10)

	snap, err := gcra.TestNAllAndUpdate(ctx, g, nanos.Nanos(0), "k", 5, store, now)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), snap.RemainingBurstCapacity())

	// tat0 = now + t, plus t for the first cell and 4t for the rest.
	tat, _ := store.tat("k")
	assert.Equal(t, now.Add(sec(6)), tat)

	_, err = gcra.TestAndUpdate(ctx, g, nanos.Nanos(0), "k", store, now)
	var nu *gcra.NotUntil[nanos.Nanos]
	require.ErrorAs(t, err, &nu)
	assert.Equal(t, now.Add(sec(1)), nu.EarliestPossible())
	assert.Equal(t, time.Second, nu.WaitTimeFrom(now))
}

func TestTestNAllAndUpdate_AllOrNothing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g := gcra.New(oneSecondBurstFive(t))
	store := newMapStore()
	start := nanos.Nanos(0)

	for range 3 {
		_, err := gcra.TestAndUpdate(ctx, g, start, "k", store, 0)
		require.NoError(t, err)
	}
	before, _ := store.tat("k")

	_, err := gcra.TestNAllAndUpdate(ctx, g, start, "k", 3, store, 0)
	var bnc *gcra.BatchNonConforming[nanos.Nanos]
	require.ErrorAs(t, err, &bnc)
	assert.Equal(t, uint32(3), bnc.N)
	assert.Equal(t, sec(1), bnc.NotUntil.EarliestPossible())
	assert.ErrorIs(t, err, gcra.ErrRateLimited)

	var nu *gcra.NotUntil[nanos.Nanos]
	assert.ErrorAs(t, err, &nu, "batch rejections unwrap to their NotUntil")

	after, _ := store.tat("k")
	assert.Equal(t, before, after, "a rejected batch must not admit any cell")

	admitted := 0
	for range 5 {
		if _, err := gcra.TestAndUpdate(ctx, g, start, "k", store, 0); err == nil {
			admitted++
		}
	}
	assert.Equal(t, 2, admitted)
}

func TestTestNAllAndUpdate_SingleCellMatchesTestAndUpdate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g := gcra.New(gcra.Must(gcra.PerSecond(3)))
	single, batch := newMapStore(), newMapStore()

	now := nanos.Nanos(0)
	for i := range 20 {
		now = now.Add(nanos.FromDuration(time.Duration(i%4) * 100 * time.Millisecond))
		_, errSingle := gcra.TestAndUpdate(ctx, g, nanos.Nanos(0), "k", single, now)
		_, errBatch := gcra.TestNAllAndUpdate(ctx, g, nanos.Nanos(0), "k", 1, batch, now)
		assert.Equal(t, errSingle == nil, errBatch == nil, "step %d", i)
	}
	a, _ := single.tat("k")
	b, _ := batch.tat("k")
	assert.Equal(t, a, b)
}

func TestTestAndUpdate_ConcurrentAdmissions(t *testing.T) {
	t.Parallel()

	const (
		callers = 200
		burst   = 25
	)
	ctx := context.Background()
	g := gcra.New(gcra.Must(gcra.PerHour(burst)))
	store := newMapStore()

	var wg sync.WaitGroup
	var allowed, denied atomic.Int64
	wg.Add(callers)
	for range callers {
		go func() {
			defer wg.Done()
			_, err := gcra.TestAndUpdate(ctx, g, nanos.Nanos(0), "k", store, 0)
			if err == nil {
				allowed.Add(1)
			} else {
				denied.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(burst), allowed.Load())
	assert.Equal(t, int64(callers-burst), denied.Load())
}

func TestStateSnapshot(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := oneSecondBurstFive(t)
	g := gcra.New(q)
	store := newMapStore()

	snap, err := gcra.TestAndUpdate(ctx, g, nanos.Nanos(0), "k", store, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), snap.RemainingBurstCapacity())
	assert.Equal(t, time.Second, snap.ResetAfter())
	assert.Equal(t, sec(2), snap.Tat())
	assert.Equal(t, q, snap.Quota())

	// After a long idle period the admitted cell is not counted against the burst.
	snap, err = gcra.TestAndUpdate(ctx, g, nanos.Nanos(0), "k", store, sec(60))
	require.NoError(t, err)
	assert.Equal(t, uint32(5), snap.RemainingBurstCapacity())
	assert.Equal(t, time.Duration(0), snap.ResetAfter())
}
