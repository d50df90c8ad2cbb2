package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"request-guard/middleware/ratelimit"
	"request-guard/middleware/ratelimit/application"
	"request-guard/middleware/ratelimit/domain"
	"request-guard/middleware/ratelimit/infra"

	"github.com/alecthomas/kong"
	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", file, err)
			os.Exit(1)
		}
	}

	var cfg config
	kong.Parse(&cfg,
		kong.Name("gateway"),
		kong.Description("Reverse proxy guarded by per-route sliding window rate limits."),
		kong.UsageOnError(),
	)

	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("gateway stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config, logger *slog.Logger) error {
	target, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return fmt.Errorf("invalid UPSTREAM_URL: %w", err)
	}

	policies := application.DefaultPolicies()
	if cfg.PolicyFile != "" {
		if policies, err = application.LoadPolicies(cfg.PolicyFile); err != nil {
			return err
		}
	}
	policies = application.WithWhitelist(policies, cfg.Whitelist)

	var alertHook domain.AlertHook
	if cfg.AlertWebhook != "" {
		alertHook = webhookAlert(cfg.AlertWebhook, logger)
	}
	alerts := infra.NewThrottledAlert(alertHook, cfg.AlertEvery, cfg.AlertBurst, logger)

	store := infra.Shared(infra.SharedStoreKey, func() *infra.WindowStore {
		return infra.NewWindowStore(infra.WithSweepEvery(cfg.SweepEvery))
	})
	monitor := infra.Shared(infra.SharedMonitorKey, func() *infra.Monitor {
		return infra.NewMonitor(
			infra.WithMonitorLogger(logger),
			infra.WithCounterRetention(cfg.CounterRetention),
		)
	})
	events := infra.Shared(infra.SharedEventLogKey, func() *infra.EventLog {
		return infra.NewEventLog(
			infra.WithEnvironment(cfg.Environment),
			infra.WithEventLogger(logger),
			infra.WithAlertHook(alerts.Hook()),
		)
	})
	defer infra.DestroyAll()

	var sink domain.ActivitySink
	if cfg.StatsEnabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.StatsRedisAddr,
			Password: cfg.StatsRedisPassword,
			DB:       cfg.StatsRedisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancel()
		if err != nil {
			return fmt.Errorf("redis stats ping: %w", err)
		}

		sink = infra.NewRedisActivitySink(rdb,
			infra.WithSinkPrefix(cfg.StatsPrefix),
			infra.WithSinkTTL(cfg.StatsTTL),
			infra.WithSinkBucket(cfg.StatsBucket),
			infra.WithSinkTrackAddresses(cfg.StatsTrackKeys),
		)
	}

	secEvents := application.SecurityEvents{Log: events}
	svc := application.Service{
		Store:      store,
		Classifier: application.NewClassifier(policies),
		Monitor:    monitor,
		Events:     secEvents,
		Sink:       sink,
		Logger:     logger,
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("proxy error", "path", r.URL.Path, "error", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	var slots domain.SlotPool
	if cfg.ConcurrencyMax > 0 {
		slots = infra.NewSlotPool(cfg.ConcurrencyMax)
	}

	root := chi.NewRouter()
	if cfg.RateEnabled {
		root.Use(ratelimit.Middleware(ratelimit.Options{
			Service:               svc,
			TrustForwardedHeaders: cfg.TrustXFF,
			ExcludePaths:          cfg.ExcludePaths,
		}))
	}
	root.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	root.Method(http.MethodPost, "/csp-report", ratelimit.CSPReportHandler(secEvents, cfg.TrustXFF))
	root.Handle("/*", ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Pool:           slots,
		AcquireTimeout: cfg.ConcurrencyTimeout,
		Logger:         logger,
	})(proxy))

	srv := newServer(cfg.ListenAddr, root)

	var adminSrv *http.Server
	if cfg.AdminAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			infra.NewCollector(store, monitor, events).TrackSlots(slots),
		)

		admin := chi.NewRouter()
		admin.Mount("/admin", ratelimit.AdminRouter(ratelimit.Admin{
			Store:   store,
			Monitor: monitor,
			Events:  events,
			Logger:  logger,
		}))
		admin.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		adminSrv = newServer(cfg.AdminAddr, admin)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store.StartJanitor(ctx)
	monitor.StartJanitor(ctx, cfg.PruneEvery)

	logger.Info("gateway listening", "addr", cfg.ListenAddr, "upstream", target.String())
	logger.Info("rate limit", "enabled", cfg.RateEnabled, "policy_file", cfg.PolicyFile,
		"trust_xff", cfg.TrustXFF, "whitelist", cfg.Whitelist, "sweep_every", store.SweepEvery())
	logger.Info("rate stats", "enabled", cfg.StatsEnabled, "redis_addr", cfg.StatsRedisAddr,
		"bucket", cfg.StatsBucket, "ttl", cfg.StatsTTL, "track_keys", cfg.StatsTrackKeys)
	logger.Info("concurrency", "max", cfg.ConcurrencyMax, "acquire_timeout", cfg.ConcurrencyTimeout)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serve(srv) })
	if adminSrv != nil {
		logger.Info("admin listening", "addr", cfg.AdminAddr)
		g.Go(func() error { return serve(adminSrv) })
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		if adminSrv != nil {
			err = errors.Join(err, adminSrv.Shutdown(shutdownCtx))
		}
		return err
	})

	return g.Wait()
}

func newServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
}

func serve(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve %s: %w", srv.Addr, err)
	}
	return nil
}
