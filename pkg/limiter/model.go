package limiter

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/manenim/gcra-limiter/pkg/gcra"
)

type Namespace string

// Identity is who is being rate-limited.
type Identity struct {
	Namespace Namespace
	Key       string
}

func (id Identity) String() string {
	return string(id.Namespace) + ":" + id.Key
}

// Limit is a rate expressed as Rate cells per Period with bursts of up to
// Burst cells. A zero Burst means Burst = Rate.
type Limit struct {
	Rate   int64
	Period time.Duration
	Burst  int64
}

// Quota converts l into a gcra.Quota replenishing one cell every
// Period/Rate.
func (l Limit) Quota() (gcra.Quota, error) {
	if l.Rate <= 0 {
		return gcra.Quota{}, fmt.Errorf("%w: rate must be positive, got %d", gcra.ErrInvalidQuota, l.Rate)
	}
	if l.Period <= 0 {
		return gcra.Quota{}, fmt.Errorf("%w: period must be positive, got %v", gcra.ErrInvalidQuota, l.Period)
	}
	burst := l.Burst
	if burst == 0 {
		burst = l.Rate
	}
	if burst < 0 || burst > math.MaxUint32 {
		return gcra.Quota{}, fmt.Errorf("%w: burst out of range, got %d", gcra.ErrInvalidQuota, burst)
	}
	q, err := gcra.WithPeriod(l.Period / time.Duration(l.Rate))
	if err != nil {
		return gcra.Quota{}, err
	}
	return q.AllowBurst(uint32(burst))
}

// Decision is the outcome of Allow in a form suited to rate-limit headers.
type Decision struct {
	Allow bool
	// Limit is the burst size of the quota.
	Limit int64
	// Remaining is the number of cells that could still be admitted right now.
	Remaining int64
	// RetryAfter is zero when allowed; otherwise the time until the request
	// could conform.
	RetryAfter time.Duration
	// ResetTime is the wall-clock time at which the key's burst is full again
	// when allowed, or time.Now()+RetryAfter when denied.
	ResetTime time.Time
}

// Allower is the narrow interface the middleware package depends on.
type Allower[K comparable] interface {
	Allow(ctx context.Context, key K) (Decision, error)
}
