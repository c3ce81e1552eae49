package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/xyseins/bs-monitor/internal/api"
	"github.com/xyseins/bs-monitor/internal/browser"
	"github.com/xyseins/bs-monitor/internal/config"
	"github.com/xyseins/bs-monitor/internal/monitor"
	"github.com/xyseins/bs-monitor/internal/notify"
	"github.com/xyseins/bs-monitor/internal/scraper"
	"github.com/xyseins/bs-monitor/internal/store"
)

func main() {
	_ = godotenv.Load() // .env is optional

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := newLogger(cfg.Logging)
	logger.Info("starting seller monitor",
		"sources", len(cfg.Monitor.SellerURLs),
		"interval", cfg.Monitor.CheckInterval,
		"store", cfg.Store.Backend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := browser.New(&browser.Options{
		Headless:       cfg.Browser.Headless,
		Timeout:        cfg.Monitor.PageTimeout,
		UserAgent:      cfg.Browser.UserAgent,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
		Locale:         cfg.Browser.Locale,
		TimezoneID:     cfg.Browser.TimezoneID,
	})
	if err != nil {
		logger.Error("failed to start browser", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	st, cleanup, err := newStore(cfg.Store)
	if err != nil {
		logger.Error("failed to create store", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	notifier, err := newNotifier(cfg.Notifier, logger)
	if err != nil {
		logger.Error("failed to create notifier", "error", err)
		os.Exit(1)
	}

	extractor := scraper.NewExtractor(b, logger)
	fetcher := scraper.NewRetryingFetcher(extractor, cfg.Monitor.MaxAttempts, cfg.Monitor.RetryDelay, logger)
	engine := monitor.NewEngine(fetcher, st, notifier, cfg.Monitor.SellerURLs, logger)

	if cfg.Status.Addr != "" {
		startStatusServer(ctx, cfg.Status.Addr, engine, logger)
	}

	if err := run(ctx, engine, cfg.Monitor.CheckInterval, logger); err != nil {
		logger.Error("monitor stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// run executes one cycle immediately, then on every tick until the context
// is cancelled. A persistence failure is fatal: corrupted state needs an
// operator, and re-running would only storm the notification sink.
func run(ctx context.Context, engine *monitor.Engine, interval time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := engine.RunCycle(ctx); err != nil && !errors.Is(err, monitor.ErrCycleInFlight) {
			if store.IsPersistence(err) {
				return err
			}
			logger.Error("check cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func newStore(cfg config.StoreConfig) (store.Store, func(), error) {
	switch cfg.Backend {
	case "redis":
		rs := store.NewRedisStore(cfg.RedisAddr, cfg.RedisDB, cfg.RedisKey)
		return rs, func() { rs.Close() }, nil
	default:
		return store.NewFileStore(cfg.FilePath), func() {}, nil
	}
}

func newNotifier(cfg config.NotifierConfig, logger *slog.Logger) (notify.Notifier, error) {
	if cfg.Type == "log" {
		return notify.NewLogNotifier(logger), nil
	}
	return notify.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID)
}

func startStatusServer(ctx context.Context, addr string, engine *monitor.Engine, logger *slog.Logger) {
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewRouter(api.NewHandlers(engine, logger)),
	}

	go func() {
		logger.Info("status server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server failed", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("status server shutdown failed", "error", err)
		}
	}()
}
