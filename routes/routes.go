package routes

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sanazindustrial/PROFGINE-sub004/app"
	"github.com/sanazindustrial/PROFGINE-sub004/handlers"
	"github.com/sanazindustrial/PROFGINE-sub004/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// adminTimeout bounds non-streaming admin requests. The chat route has no
// router-level timeout because responses stream for as long as the backend does.
const adminTimeout = 30 * time.Second

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestContext)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", handlers.ProviderHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	var inventory handlers.ProviderInventory
	if deps.Registry != nil {
		inventory = deps.Registry
	}
	var sqlDB *sql.DB
	if deps.DB != nil {
		sqlDB = deps.DB.DB
	}
	health := handlers.NewHealthHandler(sqlDB, inventory, deps.Config.Environment, deps.Logger)

	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", health.HandleStatus)

		if deps.Orchestrator == nil || deps.AdminService == nil {
			return
		}

		chat := handlers.NewChatHandler(deps.Orchestrator, deps.Logger)
		var stats handlers.StatsSource
		if deps.Metrics != nil {
			stats = deps.Metrics
		}
		adminHandler := handlers.NewAdminHandler(deps.AdminService, stats, deps.Logger)

		r.Group(func(r chi.Router) {
			requireAuth(r, deps)
			r.Post("/chat", chat.HandleChat)
			r.With(chimw.Timeout(adminTimeout)).Get("/providers", adminHandler.HandleListProviders)
		})

		r.Route("/admin/ai", func(r chi.Router) {
			requireAuth(r, deps)
			if deps.AuthMiddleware != nil {
				r.Use(deps.AuthMiddleware.RequireRole(deps.Config.Auth.AdminRole))
			}
			r.Use(chimw.Timeout(adminTimeout))

			r.Get("/config", adminHandler.HandleGetConfig)
			r.Put("/config", adminHandler.HandlePutConfig)
			r.Patch("/config", adminHandler.HandlePatchConfig)
			r.Get("/config/history", adminHandler.HandleConfigHistory)
			r.Get("/dispatches", adminHandler.HandleRecentDispatches)
			r.Get("/stats", adminHandler.HandleStats)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not_found","message":"endpoint not found"}`))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = w.Write([]byte(`{"error":"method_not_allowed","message":"method not allowed"}`))
	})

	return otelhttp.NewHandler(r, deps.Config.Observability.ServiceName)
}

// requireAuth guards a route group when a token validator is configured.
// Without one (JWT_SECRET unset, development only) the group is open.
func requireAuth(r chi.Router, deps *app.Dependencies) {
	if deps.AuthMiddleware != nil {
		r.Use(deps.AuthMiddleware.RequireAuth)
	}
}
