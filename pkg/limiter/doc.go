// Package limiter provides local and distributed rate limiting based on the
// Generic Cell Rate Algorithm implemented in package gcra.
//
// The primary entry point is RateLimiter:
//
//	l, _ := limiter.NewMemoryLimiter(gcra.Must(gcra.PerSecond(10)))
//	dec, err := l.Allow(ctx, id)
//
// The returned Decision contains whether the request is allowed, how many
// cells could still be admitted right away, and timing hints for callers that
// want to set rate-limit headers (for example, Retry-After).
//
// # Overview
//
// GCRA tracks a single timestamp per key, the theoretical arrival time (TAT):
// the moment at which the key's bucket would be empty again if no further
// cells arrived. A cell arriving at now conforms if
//
//	now >= TAT - tau
//
// where tau is the burst size times the replenish interval. A conforming cell
// moves the TAT to max(TAT, now) + t. A non-conforming cell changes nothing
// and the caller learns the earliest moment a retry can succeed.
//
// Because the whole state is one number, a decision is a read-modify-write on
// a single value, which every backend below can perform atomically.
//
// # Core Types
//
// Limit defines the policy in the familiar rate/period/burst form and converts
// to a gcra.Quota:
//
//   - Rate: cells replenished per Period (for example, 10 per second)
//   - Period: the time window Rate is measured over
//   - Burst: maximum number of cells admitted back to back (defaults to Rate)
//
// Identity defines "who" is being rate-limited. It is split into:
//
//   - Namespace: a logical grouping (for example, "user", "ip", "api_key")
//   - Key: the identifier within that namespace (for example, "user_123")
//
// # Backends
//
// State lives behind gcra.StateStore. This package provides:
//
//   - InMemoryState: one atomic word for an unkeyed limiter (see NewDirect).
//   - HashMapState: a mutex-guarded map. NewMemoryLimiter uses it.
//   - SyncMapState: a lock-free map of atomic cells for very large key sets.
//   - RedisState: a distributed store using optimistic WATCH/MULTI
//     transactions, safe to share across many application instances.
//     NewRedisLimiter uses it.
//
// In-process state is local to the process and does not enforce a global
// limit across replicas.
//
// # Context and Error Policy
//
// Every decision accepts a context.Context and is bounded by WithTimeout.
// RedisState passes the context through to Redis.
//
// A rejected cell is not a failure. CheckKey reports it as a *gcra.NotUntil
// error (errors.Is(err, gcra.ErrRateLimited)), and Allow reports it as a
// Decision with Allow set to false. Any other error means the decision could
// not be made at all, and the caller decides whether to deny traffic (protect
// the backend) or allow it (maximize availability).
//
// # Configuration
//
// Limiters are configured using the Functional Options pattern:
//
//	l, _ := NewRedisLimiter(client, quota,
//		WithPrefix("myapp:rate:"),
//		WithTimeout(2*time.Second),
//		WithRecorder(myMetrics),
//	)
//
// Supported options:
//
//   - WithPrefix(string): Sets the Redis key prefix (default "limiter:").
//   - WithTimeout(time.Duration): Bounds each decision (NewRedisLimiter
//     defaults to 5s).
//   - WithRecorder(MetricsRecorder): Injects a custom metrics backend.
//   - WithJitter(gcra.Jitter): Spreads out the retries of waiting callers.
//   - WithMaxRetries(int): Bounds optimistic transaction retries (default 16).
//   - WithExpiryOrigin(time.Time): Lets Redis expire keys whose bucket is full.
package limiter
