package limiter

import (
	"time"

	"github.com/manenim/gcra-limiter/pkg/gcra"
)

const (
	defaultPrefix       = "limiter:"
	defaultRedisTimeout = 5 * time.Second
	defaultMaxRetries   = 16
)

type options struct {
	prefix       string
	timeout      time.Duration
	recorder     MetricsRecorder
	jitter       gcra.Jitter
	maxRetries   int
	expiryOrigin time.Time
}

func defaultOptions() options {
	return options{
		prefix:     defaultPrefix,
		recorder:   &NoOpMetricsRecorder{},
		maxRetries: defaultMaxRetries,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures limiters and state stores.
type Option func(*options)

// WithPrefix sets the key prefix used by RedisState (default "limiter:").
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithTimeout bounds every decision, including the round trip to the state
// store. Zero disables the timeout. NewRedisLimiter defaults to 5s.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithRecorder injects a metrics backend.
func WithRecorder(r MetricsRecorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithJitter adds a random delay to the retry times used by UntilKeyReady.
func WithJitter(j gcra.Jitter) Option {
	return func(o *options) {
		o.jitter = j
	}
}

// WithMaxRetries bounds how often RedisState retries a decision that lost an
// optimistic transaction to a concurrent writer (default 16).
func WithMaxRetries(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxRetries = n
		}
	}
}

// WithExpiryOrigin makes RedisState expire each key once its theoretical
// arrival time has passed, interpreting stored values as offsets from origin.
// An expired key starts over as one never charged, which costs it at most one
// cell of burst and never admits more. It is only correct when the limiter
// measures time from the same origin; NewRedisLimiter sets it to the Unix
// epoch.
func WithExpiryOrigin(origin time.Time) Option {
	return func(o *options) {
		o.expiryOrigin = origin
	}
}
