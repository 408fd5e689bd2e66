// Package app assembles the components shared by the API server and the worker.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/docextract/internal/config"
	"github.com/nikhilbhutani/docextract/internal/discovery"
	"github.com/nikhilbhutani/docextract/internal/document"
	"github.com/nikhilbhutani/docextract/internal/events"
	"github.com/nikhilbhutani/docextract/internal/extraction"
	"github.com/nikhilbhutani/docextract/internal/llm"
	"github.com/nikhilbhutani/docextract/internal/ocr"
	"github.com/nikhilbhutani/docextract/internal/pipeline"
	"github.com/nikhilbhutani/docextract/internal/sharepoint"
)

type App struct {
	Cfg          *config.Config
	DB           *pgxpool.Pool // nil when running on the memory store
	Redis        *redis.Client
	Bus          *events.Bus
	Relay        *events.RedisRelay
	Repo         *document.Repository
	Registry     *extraction.Registry
	LLM          llm.Gateway
	SharePoint   *sharepoint.Client
	Orchestrator *pipeline.Orchestrator
	Discovery    *discovery.Gateway
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	store, db, err := document.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unavailable", "error", err)
	}

	registry, err := extraction.LoadRegistry(cfg.Pipeline.SchemasDir)
	if err != nil {
		if db != nil {
			db.Close()
		}
		rdb.Close()
		return nil, fmt.Errorf("load schemas: %w", err)
	}

	bus := events.NewBus(nil)
	repo := document.NewRepository(store, bus)
	gateway := llm.NewGateway(cfg.LLM)
	sp := sharepoint.NewClient(cfg.SharePoint)
	ocrClient := ocr.NewClient(cfg.OCR.BaseURL)

	engine := extraction.NewEngine(gateway, registry, extraction.Options{
		Provider:       cfg.LLM.DefaultProvider,
		ClassifyModel:  cfg.LLM.ClassifyModel,
		ExtractModel:   cfg.LLM.ExtractModel,
		ContextLimit:   cfg.LLM.ContextLimit,
		ResponseTokens: cfg.LLM.ResponseTokens,
	})

	orchestrator := pipeline.NewOrchestrator(pipeline.Deps{
		Repo: repo,
		OCR:  ocrClient,
		Poller: ocr.NewPoller(ocrClient, ocr.Options{
			Timeout:  cfg.OCR.PollTimeout,
			Interval: cfg.OCR.PollInterval,
		}),
		Engine:  engine,
		Schemas: registry,
		Pusher:  sp,
	}, pipeline.Options{
		SourceApp:             cfg.OCR.SourceApp,
		GenerateSearchablePDF: cfg.OCR.GenerateSearchablePDF,
	})

	disc := newDiscovery(cfg, sp, repo, orchestrator)

	return &App{
		Cfg:          cfg,
		DB:           db,
		Redis:        rdb,
		Bus:          bus,
		Relay:        events.NewRedisRelay(rdb, nil),
		Repo:         repo,
		Registry:     registry,
		LLM:          gateway,
		SharePoint:   sp,
		Orchestrator: orchestrator,
		Discovery:    disc,
	}, nil
}

// NewDiscovery builds a discovery gateway that hands new files to starter
// instead of the in-process orchestrator.
func (a *App) NewDiscovery(starter discovery.Starter) *discovery.Gateway {
	return newDiscovery(a.Cfg, a.SharePoint, a.Repo, starter)
}

func newDiscovery(cfg *config.Config, sp *sharepoint.Client, repo *document.Repository, starter discovery.Starter) *discovery.Gateway {
	return discovery.NewGateway(sp, repo, starter, discovery.Options{
		ClientState: cfg.Webhook.ClientState,
		Concurrency: cfg.Pipeline.RescanConcurrency,
	})
}

// RunRelay bridges the local bus with other processes until ctx is done.
func (a *App) RunRelay(ctx context.Context) {
	go a.Relay.Forward(ctx, a.Bus)
	go func() {
		if err := a.Relay.Listen(ctx, a.Bus); err != nil {
			slog.Warn("event relay stopped", "error", err)
		}
	}()
}

func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
	a.Redis.Close()
}
