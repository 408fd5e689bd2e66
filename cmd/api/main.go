package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nikhilbhutani/docextract/internal/api"
	"github.com/nikhilbhutani/docextract/internal/api/handlers"
	"github.com/nikhilbhutani/docextract/internal/app"
	"github.com/nikhilbhutani/docextract/internal/cache"
	"github.com/nikhilbhutani/docextract/internal/config"
	"github.com/nikhilbhutani/docextract/internal/queue"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	a.RunRelay(ctx)

	views := cache.NewViewCache(cache.NewCache(a.Redis), 0)
	go views.RunInvalidator(ctx, a.Bus)

	queueClient := queue.NewClient(cfg.Redis)
	defer queueClient.Close()

	checks := map[string]handlers.Check{
		"redis": func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() },
	}
	if a.DB != nil {
		checks["database"] = a.DB.Ping
	}

	// Setup router
	router := api.NewRouter(cfg, api.Deps{
		Repo:    a.Repo,
		Schemas: a.Registry,
		Types:   a.Registry.Types,
		Views:   views,
		Queue:   queueClient,
		Files:   a.SharePoint,
		Filter:  a.Discovery,
		Bus:     a.Bus,
		LLM:     a.LLM,
		Checks:  checks,
	})
	handler := router.Setup(ctx)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}
