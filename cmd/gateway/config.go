package main

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"
)

// config é preenchido pelo kong a partir de flags e variáveis de ambiente
// (o .env é carregado antes, via godotenv).
type config struct {
	ListenAddr  string `name:"listen-addr" env:"LISTEN_ADDR" default:":8080" help:"Address the guarded proxy listens on."`
	UpstreamURL string `name:"upstream-url" env:"UPSTREAM_URL" required:"" help:"Upstream base URL."`
	AdminAddr   string `name:"admin-addr" env:"ADMIN_ADDR" default:"127.0.0.1:9090" help:"Admin API and /metrics listener (empty disables)."`
	Environment string `name:"environment" env:"ENVIRONMENT" default:"development" help:"Environment tag written on security events."`

	RateEnabled  bool     `name:"rate-enabled" env:"RATE_ENABLED" default:"true" negatable:"" help:"Enable the rate limit guard."`
	PolicyFile   string   `name:"policy-file" env:"POLICY_FILE" type:"path" help:"YAML file overriding the default policy table."`
	Whitelist    []string `name:"whitelist" env:"RATE_WHITELIST" sep:"," help:"Addresses never limited, in every bucket."`
	TrustXFF     bool     `name:"trust-xff" env:"TRUST_XFF" default:"false" help:"Trust X-Forwarded-For / X-Real-IP / CF-Connecting-IP."`
	ExcludePaths []string `name:"exclude-paths" env:"RATE_EXCLUDE_PATHS" sep:"," default:"/healthz" help:"Paths that bypass the guard (trailing * = prefix)."`

	SweepEvery       time.Duration `name:"sweep-every" env:"RATE_SWEEP_EVERY" default:"5m" help:"Sliding window sweep interval."`
	CounterRetention time.Duration `name:"counter-retention" env:"RATE_COUNTER_RETENTION" default:"24h" help:"Idle monitor counters older than this are pruned."`
	PruneEvery       time.Duration `name:"prune-every" env:"RATE_PRUNE_EVERY" default:"10m" help:"Monitor prune interval."`

	ConcurrencyMax     int           `name:"concurrency-max" env:"CONCURRENCY_MAX" default:"100" help:"Max in-flight upstream requests (0 disables)."`
	ConcurrencyTimeout time.Duration `name:"concurrency-timeout" env:"CONCURRENCY_TIMEOUT" default:"0s" help:"Max wait for a concurrency slot (0 waits for the client)."`

	AlertWebhook string        `name:"alert-webhook" env:"ALERT_WEBHOOK_URL" help:"URL receiving critical security events as JSON."`
	AlertEvery   time.Duration `name:"alert-every" env:"ALERT_EVERY" default:"1m" help:"Min interval between critical alerts after the burst."`
	AlertBurst   int           `name:"alert-burst" env:"ALERT_BURST" default:"5" help:"Critical alerts allowed immediately."`

	StatsEnabled       bool          `name:"stats-enabled" env:"RATE_STATS_ENABLED" default:"false" help:"Mirror attempts into Redis."`
	StatsRedisAddr     string        `name:"stats-redis-addr" env:"RATE_STATS_REDIS_ADDR" help:"Redis address for the activity mirror."`
	StatsRedisPassword string        `name:"stats-redis-password" env:"RATE_STATS_REDIS_PASSWORD" help:"Redis password."`
	StatsRedisDB       int           `name:"stats-redis-db" env:"RATE_STATS_REDIS_DB" default:"0" help:"Redis database."`
	StatsPrefix        string        `name:"stats-prefix" env:"RATE_STATS_PREFIX" default:"ratelimit:stats" help:"Redis key prefix."`
	StatsTTL           time.Duration `name:"stats-ttl" env:"RATE_STATS_TTL" default:"24h" help:"TTL of time-bucketed Redis keys."`
	StatsBucket        string        `name:"stats-bucket" env:"RATE_STATS_BUCKET" default:"minute" enum:"minute,none" help:"Time bucket granularity."`
	StatsTrackKeys     bool          `name:"stats-track-keys" env:"RATE_STATS_TRACK_KEYS" default:"false" help:"Also count per client address (high cardinality)."`

	LogLevel  string `name:"log-level" env:"LOG_LEVEL" default:"info" enum:"debug,info,warn,error" help:"Log level."`
	LogFormat string `name:"log-format" env:"LOG_FORMAT" default:"text" enum:"text,json" help:"Log format."`
}

// Validate é chamado pelo kong depois do parse.
func (c *config) Validate() error {
	if c.StatsEnabled && strings.TrimSpace(c.StatsRedisAddr) == "" {
		return errors.New("RATE_STATS_REDIS_ADDR is required when RATE_STATS_ENABLED=true")
	}
	if c.ConcurrencyMax < 0 {
		return errors.New("CONCURRENCY_MAX must be >= 0")
	}
	if c.AlertBurst <= 0 {
		return errors.New("ALERT_BURST must be > 0")
	}
	return nil
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(h)
}
