package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/workshop-crew/app"
	"github.com/upb/workshop-crew/handlers"
	"github.com/upb/workshop-crew/middleware"
	"github.com/upb/workshop-crew/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	cfg := deps.Config
	logger := deps.Logger

	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", chimw.RequestIDHeader},
		ExposedHeaders:   []string{chimw.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	var providerNames []string
	if deps.Providers != nil {
		providerNames = deps.Providers.ListProviders()
	}

	health := handlers.NewHealthHandler(deps.HealthChecker(), providerNames, logger)
	status := handlers.NewStatusHandler(app.Version, cfg.Environment, deps.DB != nil, deps.Routing)
	runs := handlers.NewRunHandler(deps.Routing, deps.RunStore(), cfg.Server.WriteTimeout, logger)

	// Health check endpoints
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", status.HandleStatus)

		r.Route("/runs", func(r chi.Router) {
			if deps.AuthMiddleware != nil {
				r.Use(deps.AuthMiddleware.RequireAuth)
			}
			r.Post("/", runs.HandleCreateRun)
			r.Get("/", runs.HandleListRuns)
			r.Get("/{id}", runs.HandleGetRun)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	return r
}
