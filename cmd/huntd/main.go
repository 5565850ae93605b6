// Command huntd is the web-page change monitoring daemon. It schedules
// mission evaluations, persists observed content in SQLite and exposes
// an HTTP API for managing missions and users.
//
// Usage:
//
//	huntd -config huntd.yaml      # run with config file
//	huntd -db huntd.db            # run with defaults
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/veillant/huntd/config"
	"github.com/veillant/huntd/dbopen"
	"github.com/veillant/huntd/fetch"
	"github.com/veillant/huntd/hunter"
	"github.com/veillant/huntd/missions"
	"github.com/veillant/huntd/notify"
	"github.com/veillant/huntd/schedule"
	"github.com/veillant/huntd/users"
)

func main() {
	configPath := flag.String("config", "", "path to huntd.yaml config file")
	dbPath := flag.String("db", "", "path to SQLite database (overrides config)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *dbPath); err != nil {
		logger.Error("huntd: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, dbPath string) error {
	cfg, err := resolveConfig(configPath, dbPath)
	if err != nil {
		return err
	}

	db, err := dbopen.Open(cfg.DBPath,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(missions.Schema),
		dbopen.WithSchema(users.Schema),
	)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	missionStore := missions.NewStore(db)
	userStore := users.NewStore(db)

	fetcher := fetch.NewCache(fetch.New(fetch.Config{
		Timeout:   time.Duration(cfg.Fetch.Timeout),
		MaxBytes:  cfg.Fetch.MaxBytes,
		UserAgent: cfg.Fetch.UserAgent,
	}), time.Duration(cfg.Fetch.CacheTTL))

	engine := hunter.NewEngine(missionStore, fetcher, logger)
	notifier, err := buildNotifier(cfg, logger)
	if err != nil {
		return err
	}

	sched := schedule.New(missionStore, engine, notifier, schedule.Config{
		Interval:    time.Duration(cfg.Scheduler.Interval),
		Concurrency: cfg.Scheduler.Concurrency,
	}, logger)
	go sched.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           newServer(missionStore, userStore, engine, notifier, cfg.API.TokenHash, logger).routes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("huntd: server starting", "addr", cfg.API.Addr, "db", cfg.DBPath)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("huntd: server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("huntd: shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("huntd: shutdown", "error", err)
	}
	logger.Info("huntd: stopped")
	return nil
}

func resolveConfig(configPath, dbPath string) (*config.Config, error) {
	var cfg *config.Config
	if configPath != "" {
		var err error
		cfg, err = config.LoadFile(configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	return cfg, nil
}

func buildNotifier(cfg *config.Config, logger *slog.Logger) (hunter.Notifier, error) {
	switch cfg.Notify.Kind {
	case "webhook":
		opts := []notify.WebhookOption{notify.WithLogger(logger)}
		if cfg.Notify.Retries > 0 {
			opts = append(opts, notify.WithRetries(cfg.Notify.Retries))
		}
		return notify.NewWebhook(cfg.Notify.URL, opts...), nil
	case "stdout", "":
		return notify.NewStdout(os.Stdout), nil
	}
	return nil, fmt.Errorf("unknown notify kind %q", cfg.Notify.Kind)
}
