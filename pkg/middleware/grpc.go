package middleware

import (
	"context"
	"strconv"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/manenim/gcra-limiter/pkg/limiter"
)

// RetryAfterMetadataKey is the response header carrying the retry delay in
// seconds on rejected calls.
const RetryAfterMetadataKey = "retry-after"

// GRPCKeyFunc extracts the rate-limited key from an incoming call. Calls for
// which it returns false are not limited.
type GRPCKeyFunc[K comparable] func(ctx context.Context, fullMethod string) (K, bool)

// UnaryServerInterceptor admits one cell per unary call. Denied calls fail
// with codes.ResourceExhausted; limiter failures with codes.Unavailable unless
// WithFailOpen is set.
func UnaryServerInterceptor[K comparable](l limiter.Allower[K], keyFunc GRPCKeyFunc[K], opts ...Option) grpc.UnaryServerInterceptor {
	if keyFunc == nil {
		panic("middleware.UnaryServerInterceptor: keyFunc is required")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		key, ok := keyFunc(ctx, info.FullMethod)
		if !ok {
			return handler(ctx, req)
		}

		dec, err := l.Allow(ctx, key)
		if err != nil {
			if cfg.failOpen {
				log.Warn().Err(err).Str("method", info.FullMethod).Msg("rate limiter failed, letting call through")
				return handler(ctx, req)
			}
			log.Error().Err(err).Str("method", info.FullMethod).Msg("rate limiter unavailable")
			return nil, status.Error(codes.Unavailable, "rate limiter unavailable")
		}

		if !dec.Allow {
			seconds := RetryAfterSeconds(dec.RetryAfter)
			_ = grpc.SetHeader(ctx, metadata.Pairs(RetryAfterMetadataKey, strconv.FormatInt(seconds, 10)))
			return nil, status.Errorf(codes.ResourceExhausted, "rate limit exceeded, retry in %ds", seconds)
		}

		return handler(ctx, req)
	}
}
