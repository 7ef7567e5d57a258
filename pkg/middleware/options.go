package middleware

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

type config struct {
	failOpen     bool
	errorHandler func(w http.ResponseWriter, r *http.Request, err error)
}

func defaultConfig() *config {
	return &config{
		errorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Error().Err(err).Str("path", r.URL.Path).Msg("rate limiter unavailable")
			http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		},
	}
}

// Option configures HTTP and gRPC rate limiting.
type Option func(*config)

// WithFailOpen lets requests through when the limiter cannot reach a
// decision. The default is to reject them.
func WithFailOpen() Option {
	return func(c *config) {
		c.failOpen = true
	}
}

// WithErrorHandler replaces the 503 response written when the limiter fails
// and fail-open is off. It has no effect on gRPC.
func WithErrorHandler(fn func(w http.ResponseWriter, r *http.Request, err error)) Option {
	return func(c *config) {
		if fn != nil {
			c.errorHandler = fn
		}
	}
}
