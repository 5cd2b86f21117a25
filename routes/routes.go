package routes

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/upb/auth-control-plane/backend/app"
	"github.com/upb/auth-control-plane/backend/handlers"
	"github.com/upb/auth-control-plane/backend/models"
	"github.com/upb/auth-control-plane/backend/services/throttle"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// The readiness probe reports not ready while the pool is absent
	var db *sql.DB
	if deps.DB != nil {
		db = deps.DB.DB
	}

	authHandler := handlers.NewAuthHandler(deps.RotationService, deps.AuditService, deps.Metrics, deps.Logger)
	userHandler := handlers.NewUserHandler(deps.UserService, deps.AuditService, deps.Metrics, deps.Logger)
	adminHandler := handlers.NewAdminHandler(deps.UserService, deps.AuditService, deps.Metrics, deps.Logger)
	healthHandler := handlers.NewHealthHandler(db, deps.Logger)

	// Health check endpoints
	r.Get("/healthz", healthHandler.HandleHealth)
	r.Get("/readyz", healthHandler.HandleReadiness)

	// Prometheus metrics
	if deps.Config.Observability.MetricsEnabled {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes. The registration path keeps its trailing slash.
		r.Post("/users/", userHandler.HandleRegister)

		// Credential endpoints, throttled per client
		r.With(deps.ThrottleMiddleware.Limit(throttle.ScopeLogin)).
			Post("/token", authHandler.HandleLogin)
		r.With(deps.ThrottleMiddleware.Limit(throttle.ScopeRefresh)).
			Post("/refresh", authHandler.HandleRefresh)

		// Routes requiring a valid access token
		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Post("/logout", authHandler.HandleLogout)
			r.Get("/me", authHandler.HandleMe)
		})

		// User administration (require admin role)
		r.Route("/admin/users", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Use(deps.AuthMiddleware.RequireRole(models.RoleAdmin))
			r.Get("/", adminHandler.HandleListUsers)
			r.Post("/", adminHandler.HandleCreateUser)
			r.Delete("/", adminHandler.HandleDeleteUsersByPattern)
			r.Patch("/{id}/role", adminHandler.HandleChangeRole)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}
