package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/darrenwatt/truthy/internal/config"
	"github.com/darrenwatt/truthy/internal/db"
	"github.com/darrenwatt/truthy/internal/discord"
	"github.com/darrenwatt/truthy/internal/feed"
	"github.com/darrenwatt/truthy/internal/format"
	"github.com/darrenwatt/truthy/internal/media"
	"github.com/darrenwatt/truthy/internal/metrics"
	"github.com/darrenwatt/truthy/internal/monitor"
	"github.com/darrenwatt/truthy/internal/ops"
	"github.com/darrenwatt/truthy/internal/store"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	// .env is optional; environment variables win either way.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ---- database ----
	// Startup failures abort before the loop starts; once running, the
	// process never exits on steady-state errors.
	ctx := context.Background()
	pool, err := db.Open(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	repo := store.NewPgPostRepository(pool)
	client := feed.NewClient(cfg, logger.Named("feed"))
	formatter := format.New(cfg.PostType, cfg.FeedUsername)
	relay := media.NewRelay(cfg.RequestTimeout)
	webhook := discord.NewWebhook(
		cfg.WebhookURL, cfg.WebhookUsername,
		cfg.RateCalls, cfg.RatePeriod, cfg.RequestTimeout,
		logger.Named("discord"),
	)

	onFetched, onSkipped, onDelivered, onFailed, onCycle := m.MonitorHooks()
	mon := monitor.New(
		client, repo, formatter, relay, webhook,
		cfg.PollInterval,
		monitor.Hooks{
			OnFetched:   onFetched,
			OnSkipped:   onSkipped,
			OnDelivered: onDelivered,
			OnFailed:    onFailed,
			OnCycle:     onCycle,
		},
		logger.Named("monitor"),
	)

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- ops HTTP surface ----
	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: ops.NewRouter(pool, reg, logger.Named("ops")),
	}
	go func() {
		logger.Info("ops server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server error", zap.Error(err))
		}
	}()

	// ---- poll loop ----
	logger.Info("starting feed monitor",
		zap.String("instance", cfg.FeedInstance),
		zap.String("account", cfg.FeedUsername),
	)
	if err := mon.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("monitor stopped unexpectedly", zap.Error(err))
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("ops server shutdown error", zap.Error(err))
	}
	logger.Info("stopped cleanly")
}
