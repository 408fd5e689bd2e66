package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/docextract/internal/api/handlers"
	"github.com/nikhilbhutani/docextract/internal/api/middleware"
	"github.com/nikhilbhutani/docextract/internal/auth"
	"github.com/nikhilbhutani/docextract/internal/config"
	"github.com/nikhilbhutani/docextract/internal/document"
	"github.com/nikhilbhutani/docextract/internal/events"
	"github.com/nikhilbhutani/docextract/internal/llm"
	"github.com/nikhilbhutani/docextract/internal/models"
)

// Queue is the part of the task queue the HTTP surface enqueues into.
type Queue interface {
	EnqueueDriveReconcile(ctx context.Context, driveID string) error
	EnqueueReprocess(ctx context.Context, ext models.ExternalID) error
}

type Deps struct {
	Repo    *document.Repository
	Schemas document.SchemaLookup
	Types   func() []string
	Views   handlers.ViewCache // optional
	Queue   Queue
	Files   handlers.FileDownloader
	Filter  handlers.NotificationFilter
	Bus     *events.Bus
	LLM     llm.Gateway
	Checks  map[string]handlers.Check
}

type Router struct {
	mux  *chi.Mux
	cfg  *config.Config
	deps Deps
	jwt  *auth.JWTMiddleware
}

func NewRouter(cfg *config.Config, deps Deps) *Router {
	return &Router{
		mux:  chi.NewRouter(),
		cfg:  cfg,
		deps: deps,
		jwt:  auth.NewJWTMiddleware(cfg.Auth.JWTSecret),
	}
}

// Setup mounts every route. Background helpers stop when ctx is done.
func (rt *Router) Setup(ctx context.Context) http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(rt.cfg.Server.AllowedOrigins))

	rl := middleware.NewRateLimiter(ctx, 100, 200)

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.deps.Checks)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	// Graph authenticates itself with the subscription client state, not a JWT.
	webhookH := handlers.NewWebhookHandler(rt.deps.Filter, rt.deps.Queue)
	r.Route("/api/sharepoint/webhook", func(r chi.Router) {
		r.Get("/", webhookH.Validate)
		r.Post("/", webhookH.Notify)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(rl.Limit)
		r.Use(rt.jwt.Authenticate)

		// Document routes
		docH := handlers.NewDocumentHandler(handlers.DocumentDeps{
			Repo:          rt.deps.Repo,
			Schemas:       rt.deps.Schemas,
			Views:         rt.deps.Views,
			Queue:         rt.deps.Queue,
			Files:         rt.deps.Files,
			InputsDriveID: rt.cfg.SharePoint.InputsDriveID,
		})
		r.Route("/documents", func(r chi.Router) {
			r.Get("/", docH.List)
			r.Get("/export", docH.Export)
			r.Handle("/ws", events.WebsocketHandler(rt.deps.Bus, rt.cfg.Server.AllowedOrigins))
			r.Get("/sharepoint/{itemId}", docH.GetBySharePointItem)
			r.Get("/{id}", docH.Get)
			r.Get("/{id}/view", docH.View)
			r.Get("/{id}/searchable-pdf", docH.SearchablePDF)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(auth.RoleReviewer))
				r.Patch("/{id}/field", docH.UpdateField)
				r.Post("/{id}/reprocess", docH.Reprocess)
			})
		})

		// LLM routes
		modelsH := handlers.NewModelsHandler(rt.deps.LLM, rt.deps.Types)
		r.Get("/llm/models", modelsH.List)
	})

	return r
}
