package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/linkshield/api"
	"github.com/use-agent/linkshield/api/handler"
	"github.com/use-agent/linkshield/app"
	"github.com/use-agent/linkshield/cache"
	"github.com/use-agent/linkshield/config"
	"github.com/use-agent/linkshield/webhook"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("linkshield starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"maxPages", cfg.Browser.MaxPages,
	)

	// ── 3. Initialise browser, engines and scanner ─────────────────
	rt, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to initialise scanner", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	// ── 4. Initialise cache and batch manager ──────────────────────
	cc := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
	defer cc.Stop()
	batches := handler.NewBatches(rt.Scanner, webhook.NewSender(), cfg.Batch.Concurrency, cfg.Batch.JobTTL)
	defer batches.Stop()

	// ── 5. Setup router ─────────────────────────────────────────────
	startTime := time.Now()
	router := api.NewRouter(rt.Scanner, rt.Scraper, batches, cfg, cc, startTime)

	// ── 6. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Scans can take a full page timeout; give them that long to finish.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Scraper.DefaultTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// rt.Close() runs via defer and kills Chrome.
	slog.Info("linkshield stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
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

	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(os.Stdout, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(h))
}
