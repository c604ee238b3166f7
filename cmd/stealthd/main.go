package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/stealthmode/api"
	"github.com/use-agent/stealthmode/browser"
	"github.com/use-agent/stealthmode/config"
	"github.com/use-agent/stealthmode/stats"
	"github.com/use-agent/stealthmode/store"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("stealthd starting",
		"addr", cfg.Server.Addr(),
		"mode", cfg.Server.Mode,
		"maxSessions", cfg.Browser.MaxSessions,
		"siteHosts", cfg.Engine.SiteHosts,
	)

	// ── 3. Open the settings / stats store ──────────────────────────
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		slog.Error("failed to open store", "path", cfg.Store.Path, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.EnsureDefaults(context.Background()); err != nil {
		slog.Error("failed to write defaults", "error", err)
		os.Exit(1)
	}

	// ── 4. Stats bus: recorder always, webhook when configured ──────
	bus := stats.NewBus()
	recorder := stats.NewRecorder(db.Stats(), slog.Default())
	if err := recorder.Sync(context.Background()); err != nil {
		slog.Warn("failed to load stats totals", "error", err)
	}
	bus.Subscribe(recorder)

	var hook *stats.Webhook
	if cfg.Webhook.URL != "" {
		hook = stats.NewWebhook(cfg.Webhook.URL, cfg.Webhook.Secret, cfg.Webhook.Timeout, slog.Default())
		bus.Subscribe(hook)
		slog.Info("stats webhook enabled", "url", cfg.Webhook.URL)
	}

	// ── 5. Launch the browser ───────────────────────────────────────
	mgr, err := browser.New(cfg.Browser, cfg.Engine, browser.Options{
		Settings: db.Settings(),
		Notifier: bus,
		Logger:   slog.Default(),
	})
	if err != nil {
		slog.Error("failed to launch browser", "error", err)
		os.Exit(1)
	}

	// ── 6. Setup router ─────────────────────────────────────────────
	router := api.NewRouter(api.Deps{
		Sessions: mgr,
		Fetcher:  browser.NewFetcher(cfg.Browser.DefaultProxy, cfg.Browser.FetchTimeout),
		Settings: db.Settings(),
		Recorder: recorder,
	}, cfg, time.Now())

	// ── 7. Start HTTP server ────────────────────────────────────────
	srv := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 8. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// Stops every runner, so no stats event is published after this.
	mgr.Close()
	if hook != nil {
		hook.Wait()
	}
	slog.Info("stealthd stopped")
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

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
