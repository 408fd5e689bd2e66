package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/docextract/internal/app"
	"github.com/nikhilbhutani/docextract/internal/config"
	"github.com/nikhilbhutani/docextract/internal/queue"
	"github.com/nikhilbhutani/docextract/internal/queue/workers"
)

const concurrency = 10

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

	queueClient := queue.NewClient(cfg.Redis)
	defer queueClient.Close()

	srv := asynq.NewServer(
		queue.RedisOpt(cfg.Redis),
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			BaseContext: func() context.Context { return ctx },
			// Runs still going after this are requeued and start over on the next worker.
			ShutdownTimeout: cfg.OCR.PollTimeout,
		},
	)

	registry := queue.NewHandlersRegistry()

	// A rescan only lists the drive; each new file gets its own task.
	registry.Register(queue.TypeDriveReconcile, workers.NewReconcileWorker(a.NewDiscovery(queueClient.Starter())))
	registry.Register(queue.TypeDocumentProcess, workers.NewProcessWorker(a.Orchestrator))
	registry.Register(queue.TypeDocumentReprocess, workers.NewReprocessWorker(a.Orchestrator))

	// Periodic rescan picks up files whose notifications were missed.
	scheduler := asynq.NewScheduler(queue.RedisOpt(cfg.Redis), nil)
	if cfg.Pipeline.RescanInterval > 0 {
		task, err := queue.NewDriveReconcileTask(cfg.SharePoint.InputsDriveID)
		if err != nil {
			slog.Error("build rescan task", "error", err)
			os.Exit(1)
		}
		cronspec := "@every " + cfg.Pipeline.RescanInterval.String()
		if _, err := scheduler.Register(cronspec, task,
			asynq.Unique(cfg.Pipeline.RescanInterval),
			asynq.Timeout(queue.ReconcileTimeout),
		); err != nil {
			slog.Error("register rescan", "error", err)
			os.Exit(1)
		}
		if err := scheduler.Start(); err != nil {
			slog.Error("scheduler error", "error", err)
			os.Exit(1)
		}
		defer scheduler.Shutdown()
	}

	slog.Info("starting worker", "concurrency", concurrency, "task_types", registry.Types())
	if err := srv.Start(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	// Shutdown drains in-flight runs, so the base context must outlive it.
	srv.Shutdown()
	stop()
	slog.Info("worker stopped")
}
