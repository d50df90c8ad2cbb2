package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"request-guard/middleware/ratelimit"
	"request-guard/middleware/ratelimit/application"
	"request-guard/middleware/ratelimit/domain"
	"request-guard/middleware/ratelimit/infra"
)

func main() {
	// Exemplo: injetando o guard diretamente no seu webserver (sem proxy)
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	store := infra.SharedStore()
	monitor := infra.SharedMonitor()
	events := infra.SharedEventLog()
	defer infra.DestroyAll()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	store.StartJanitor(ctx)

	// login mais apertado que o padrão, com um listener próprio
	policies := application.DefaultPolicies()
	login := policies[domain.PolicyAuthLogin]
	login.MaxRequests = 3
	login.OnLimitReached = func(d domain.RequestDescriptor, dec domain.Decision) {
		logger.Warn("login throttled", "key", dec.Key, "retry_after", dec.RetryAfter)
	}
	policies[domain.PolicyAuthLogin] = login

	svc := application.Service{
		Store:      store,
		Classifier: application.NewClassifier(policies),
		Monitor:    monitor,
		Events:     application.SecurityEvents{Log: events},
		Logger:     logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("POST /api/auth/signin", func(w http.ResponseWriter, r *http.Request) {
		svc.Events.AuthFailure(ratelimit.DescriptorFromRequest(r, true), r.FormValue("email"), "invalid credentials")
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
	})
	mux.Handle("/admin/", http.StripPrefix("/admin", ratelimit.AdminRouter(ratelimit.Admin{
		Store:   store,
		Monitor: monitor,
		Events:  events,
		Logger:  logger,
	})))

	h := http.Handler(mux)
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{Max: 50, Logger: logger})(h)
	h = ratelimit.Middleware(ratelimit.Options{
		Service:               svc,
		TrustForwardedHeaders: true,
	})(h)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
