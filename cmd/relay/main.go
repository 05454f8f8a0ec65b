package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"rss_relay/internal/benefits"
	"rss_relay/internal/config"
	"rss_relay/internal/delivery"
	"rss_relay/internal/maintenance"
	"rss_relay/internal/model"
	"rss_relay/internal/platform"
	"rss_relay/internal/platform/discord"
	"rss_relay/internal/platform/telegram"
	"rss_relay/internal/ratelimit"
	"rss_relay/internal/scheduler"
	"rss_relay/internal/storage"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	mux, err := newMux(cfg, log)
	if err != nil {
		log.Error("create platform clients", "error", err)
		os.Exit(1)
	}

	limiter := ratelimit.New()
	resolver := benefits.NewResolver(cfg.Benefits)
	manager := delivery.NewManager(mux, log,
		delivery.WithRate(cfg.DeliveryRatePerSec, int(cfg.DeliveryRatePerSec)+1),
		delivery.WithWorkers(cfg.DeliveryWorkers),
		delivery.WithWebhookInvalidator(store),
	)
	pipeline := delivery.NewPipeline(limiter, manager, log)

	sched := scheduler.New(store, resolver, pipeline, manager, log)
	sched.SetTickInterval(cfg.PollInterval)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	maint := maintenance.New(store, mux, resolver, log)
	maint.SetQuotaPruner(limiter)
	if err := maint.Start(ctx, cfg.PruneSchedule); err != nil {
		log.Error("start maintenance", "error", err)
		os.Exit(1)
	}

	log.Info("starting relay",
		"platforms", mux.Platforms(),
		"poll_interval", cfg.PollInterval,
		"supporters", cfg.Benefits.EnableSupporters,
	)

	sched.Run(ctx)

	maint.Stop()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer waitCancel()
	if err := manager.Wait(waitCtx); err != nil {
		log.Warn("pending deliveries dropped", "pending", manager.Pending(), "error", err)
	}

	log.Info("relay stopped")
}

func newMux(cfg *config.Config, log *slog.Logger) (*platform.Mux, error) {
	mux := platform.NewMux()
	if cfg.DiscordBotToken != "" {
		c, err := discord.New(cfg.DiscordBotToken, log)
		if err != nil {
			return nil, err
		}
		mux.Register(model.PlatformDiscord, c)
	}
	if cfg.TelegramBotToken != "" {
		c, err := telegram.New(cfg.TelegramBotToken, log)
		if err != nil {
			return nil, err
		}
		mux.Register(model.PlatformTelegram, c)
	}
	return mux, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
