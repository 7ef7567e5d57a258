package limiter

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/manenim/gcra-limiter/pkg/gcra"
	"github.com/manenim/gcra-limiter/pkg/nanos"
)

// InMemoryState holds the state of a single, unkeyed limiter in one atomic
// word. Decisions are installed with a compare-and-swap loop, so it never
// blocks.
//
// Zero encodes "never charged"; a stored arrival time is always at least one
// cell weight and therefore never zero.
type InMemoryState struct {
	tat atomic.Uint64
}

// NewInMemoryState returns an empty unkeyed state.
func NewInMemoryState() *InMemoryState {
	return &InMemoryState{}
}

func (s *InMemoryState) MeasureAndReplace(_ context.Context, _ gcra.NotKeyed, f func(nanos.Nanos, bool) (nanos.Nanos, error)) error {
	return compareAndSwap(&s.tat, f)
}

func compareAndSwap(cell *atomic.Uint64, f func(nanos.Nanos, bool) (nanos.Nanos, error)) error {
	for {
		prev := cell.Load()
		next, err := f(nanos.Nanos(prev), prev != 0)
		if err != nil {
			return err
		}
		if cell.CompareAndSwap(prev, uint64(next)) {
			return nil
		}
	}
}

// HashMapState is an in-process keyed state guarded by a single mutex.
//
// It is safe for concurrent use by multiple goroutines, but its state is local
// to the process and is not shared across replicas. Use RedisState when you
// need a single global limit across multiple instances.
type HashMapState[K comparable] struct {
	mu   sync.Mutex
	tats map[K]nanos.Nanos
}

// NewHashMapState constructs a HashMapState with empty state.
func NewHashMapState[K comparable]() *HashMapState[K] {
	return &HashMapState[K]{
		tats: make(map[K]nanos.Nanos),
	}
}

func (m *HashMapState[K]) MeasureAndReplace(_ context.Context, key K, f func(nanos.Nanos, bool) (nanos.Nanos, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tat, exists := m.tats[key]
	next, err := f(tat, exists)
	if err != nil {
		return err
	}
	m.tats[key] = next
	return nil
}

// Len returns the number of tracked keys.
func (m *HashMapState[K]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tats)
}

// RetainRecent drops every key whose theoretical arrival time is not after
// now, which must be measured from the limiter's start (see
// RateLimiter.Elapsed). It returns the number of keys removed.
//
// Eviction is conservative, not lossless. A dropped key starts over as one
// never seen, whose first cell counts as already charged, so its next burst
// is one cell smaller than that of an idle key that was kept. It never admits
// more than the kept key would.
func (m *HashMapState[K]) RetainRecent(now nanos.Nanos) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, tat := range m.tats {
		if tat <= now {
			delete(m.tats, key)
			removed++
		}
	}
	return removed
}

// SyncMapState is an in-process keyed state without a global lock: each key
// owns an atomic cell updated with a compare-and-swap loop. It suits large key
// sets under heavy parallel access to distinct keys.
type SyncMapState[K comparable] struct {
	cells sync.Map
}

// NewSyncMapState constructs an empty SyncMapState.
func NewSyncMapState[K comparable]() *SyncMapState[K] {
	return &SyncMapState[K]{}
}

func (m *SyncMapState[K]) MeasureAndReplace(_ context.Context, key K, f func(nanos.Nanos, bool) (nanos.Nanos, error)) error {
	v, ok := m.cells.Load(key)
	if !ok {
		v, _ = m.cells.LoadOrStore(key, new(atomic.Uint64))
	}
	return compareAndSwap(v.(*atomic.Uint64), f)
}

// Len returns the number of tracked keys.
func (m *SyncMapState[K]) Len() int {
	n := 0
	m.cells.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

var (
	_ gcra.StateStore[gcra.NotKeyed] = (*InMemoryState)(nil)
	_ gcra.StateStore[string]        = (*HashMapState[string])(nil)
	_ gcra.StateStore[string]        = (*SyncMapState[string])(nil)
)
