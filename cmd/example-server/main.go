package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/manenim/gcra-limiter/internal/config"
	"github.com/manenim/gcra-limiter/pkg/limiter"
	"github.com/manenim/gcra-limiter/pkg/middleware"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		envFile string
		addr    string
	)

	cmd := &cobra.Command{
		Use:   "example-server",
		Short: "HTTP server demonstrating GCRA rate limiting",
		Long: `example-server answers /ping, rate limited per client IP.

Configuration is read from the environment (and an optional .env file):
  LIMITER_BACKEND   memory or redis (default memory)
  REDIS_URL         redis connection URL for the redis backend
  LIMIT_RATE        requests replenished per LIMIT_PERIOD
  LIMIT_PERIOD      e.g. 1s, 1m
  LIMIT_BURST       requests admitted back to back
  LOG_LEVEL         zerolog level (default info)
  LOG_FORMAT        json or console

Prometheus metrics are served on /metrics.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var files []string
			if envFile != "" {
				files = append(files, envFile)
			}
			cfg, err := config.Load(files...)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			setupLogging(cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "path to a .env file (default: ./.env if present)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides ADDR")
	return cmd
}

func setupLogging(cfg config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

func run(ctx context.Context, cfg config.Config) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	quota, err := cfg.Limit().Quota()
	if err != nil {
		return err
	}
	opts := []limiter.Option{
		limiter.WithPrefix(cfg.Prefix),
		limiter.WithTimeout(cfg.Timeout),
		limiter.WithRecorder(limiter.NewPrometheusRecorder(reg)),
	}

	var l limiter.Allower[limiter.Identity]
	switch cfg.Backend {
	case config.BackendRedis:
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(redisOpts)
		defer client.Close()

		rl, err := limiter.NewRedisLimiter(client, quota, opts...)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		l = rl
	default:
		ml, err := limiter.NewMemoryLimiter(quota, opts...)
		if err != nil {
			return err
		}
		go sweep(ctx, ml, cfg.SweepInterval)
		l = ml
	}

	var mwOpts []middleware.Option
	if cfg.FailOpen {
		mwOpts = append(mwOpts, middleware.WithFailOpen())
	}

	mux := http.NewServeMux()
	mux.Handle("/ping", middleware.HTTP(l, middleware.ByRemoteIP("ip"), mwOpts...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Pong!\n"))
	})))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           requestID(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.Addr).
			Str("backend", cfg.Backend).
			Stringer("quota", quota).
			Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// sweep periodically forgets clients whose budget has fully recovered.
func sweep(ctx context.Context, ml *limiter.MemoryLimiter, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := ml.Sweep(); n > 0 {
				log.Debug().Int("removed", n).Int("tracked", ml.Len()).Msg("swept idle clients")
			}
		}
	}
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rw, r)

		ev := log.Debug()
		if rw.status == http.StatusTooManyRequests {
			ev = log.Info()
		}
		ev.Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Int("status", rw.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
