package ratelimit

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"request-guard/middleware/ratelimit/application"
	"request-guard/middleware/ratelimit/domain"
	"request-guard/middleware/ratelimit/infra"
)

type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	// Pool substitui o semáforo padrão de Max vagas, se definido.
	Pool   domain.SlotPool
	Logger *slog.Logger
}

// ConcurrencyMiddleware limita requisições simultâneas. Com Max <= 0 e sem Pool, é no-op.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Pool == nil && opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	if opts.Pool == nil {
		opts.Pool = infra.NewSlotPool(opts.Max)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	svc := application.ConcurrencyService{
		Pool:           opts.Pool,
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, err := svc.Acquire(r.Context())
			if err != nil {
				if errors.Is(err, domain.ErrClientGone) {
					// ninguém para receber a resposta
					return
				}
				logger.Warn("concurrency limit reached",
					"path", r.URL.Path,
					"in_flight", opts.Pool.InFlight(),
					"capacity", opts.Pool.Capacity())
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(opts.RejectStatus)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":   "too_many_concurrent_requests",
					"message": http.StatusText(opts.RejectStatus),
				})
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
