package limiter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/manenim/gcra-limiter/pkg/clock"
	"github.com/manenim/gcra-limiter/pkg/gcra"
	"github.com/manenim/gcra-limiter/pkg/nanos"
)

// Keys longer than this are replaced by their hash.
const maxRawKeyLen = 64

// RedisState keeps one theoretical arrival time per key in Redis, stored as a
// decimal count of nanoseconds since the limiter's origin.
//
// Every decision runs in an optimistic WATCH/MULTI transaction. A transaction
// that loses to a concurrent writer is retried with a fresh reading, so many
// application instances can share a single budget per key.
type RedisState[K comparable] struct {
	client       redis.UniversalClient
	prefix       string
	maxRetries   int
	expiryOrigin time.Time
}

// NewRedisState wraps client. Recognized options are WithPrefix,
// WithMaxRetries and WithExpiryOrigin.
func NewRedisState[K comparable](client redis.UniversalClient, opts ...Option) *RedisState[K] {
	o := buildOptions(opts)
	return &RedisState[K]{
		client:       client,
		prefix:       o.prefix,
		maxRetries:   o.maxRetries,
		expiryOrigin: o.expiryOrigin,
	}
}

// Key returns the Redis key holding the state of key.
func (s *RedisState[K]) Key(key K) string {
	k := fmt.Sprint(key)
	if len(k) > maxRawKeyLen {
		k = strconv.FormatUint(xxhash.Sum64String(k), 16)
	}
	return s.prefix + k
}

func (s *RedisState[K]) MeasureAndReplace(ctx context.Context, key K, f func(nanos.Nanos, bool) (nanos.Nanos, error)) error {
	rkey := s.Key(key)

	var decisionErr error
	txf := func(tx *redis.Tx) error {
		decisionErr = nil

		tat, ok, err := s.load(ctx, tx, rkey)
		if err != nil {
			return err
		}
		next, err := f(tat, ok)
		if err != nil {
			decisionErr = err
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rkey, strconv.FormatUint(next.AsUint64(), 10), 0)
			if !s.expiryOrigin.IsZero() {
				pipe.PExpireAt(ctx, rkey, s.expiryOrigin.Add(next.Duration()))
			}
			return nil
		})
		return err
	}

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, rkey)
		switch {
		case err == nil:
			return nil
		case decisionErr != nil && err == decisionErr:
			return err
		case errors.Is(err, redis.TxFailedErr):
			log.Debug().Str("key", rkey).Int("attempt", attempt).Msg("redis state transaction conflict, retrying")
			continue
		default:
			log.Error().Err(err).Str("key", rkey).Msg("redis state update failed")
			return fmt.Errorf("redis state %s: %w", rkey, err)
		}
	}

	log.Warn().Str("key", rkey).Int("attempts", s.maxRetries).Msg("redis state gave up under contention")
	return fmt.Errorf("%w: key %s after %d attempts", ErrStateContention, rkey, s.maxRetries)
}

func (s *RedisState[K]) load(ctx context.Context, tx *redis.Tx, rkey string) (nanos.Nanos, bool, error) {
	v, err := tx.Get(ctx, rkey).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	tat, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %q", ErrInvalidRedisValue, v)
	}
	return nanos.Nanos(tat), true, nil
}

// RedisLimiter is a distributed limiter keyed by Identity.
type RedisLimiter = RateLimiter[Identity, clock.Instant]

// NewRedisLimiter constructs a limiter whose state lives in Redis.
//
// Time is measured on the wall clock from the Unix epoch so that every
// instance sharing the Redis keyspace agrees on the origin, and keys expire
// as soon as their bucket is full again. An expired key restarts with one cell
// less burst than an idle in-memory key would keep. Decisions time out after
// 5s unless WithTimeout says otherwise.
func NewRedisLimiter(client redis.UniversalClient, q gcra.Quota, opts ...Option) (*RedisLimiter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	opts = append([]Option{
		WithTimeout(defaultRedisTimeout),
		WithExpiryOrigin(time.Unix(0, 0)),
	}, opts...)

	state := NewRedisState[Identity](client, opts...)
	return NewWithStart[Identity, clock.Instant](q, state, clock.SystemClock{}, clock.UnixEpoch(), opts...)
}

var _ gcra.StateStore[Identity] = (*RedisState[Identity])(nil)
