// Package middleware enforces limiter decisions on HTTP handlers and gRPC
// servers.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/manenim/gcra-limiter/pkg/limiter"
)

// KeyFunc extracts the rate-limited key from a request. Requests for which it
// returns false are not limited.
type KeyFunc[K comparable] func(r *http.Request) (K, bool)

// HTTP returns middleware admitting one cell per request.
//
// Every limited response carries X-RateLimit-Limit and X-RateLimit-Remaining.
// A denied request gets 429 with Retry-After in whole seconds, rounded up.
func HTTP[K comparable](l limiter.Allower[K], keyFunc KeyFunc[K], opts ...Option) func(http.Handler) http.Handler {
	if keyFunc == nil {
		panic("middleware.HTTP: keyFunc is required")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, ok := keyFunc(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			dec, err := l.Allow(r.Context(), key)
			if err != nil {
				if cfg.failOpen {
					log.Warn().Err(err).Str("path", r.URL.Path).Msg("rate limiter failed, letting request through")
					next.ServeHTTP(w, r)
					return
				}
				cfg.errorHandler(w, r, err)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(dec.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(dec.Remaining, 10))

			if !dec.Allow {
				w.Header().Set("Retry-After", strconv.FormatInt(RetryAfterSeconds(dec.RetryAfter), 10))
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RetryAfterSeconds renders d as a Retry-After value: whole seconds, rounded
// up, never less than one.
func RetryAfterSeconds(d time.Duration) int64 {
	s := int64(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
