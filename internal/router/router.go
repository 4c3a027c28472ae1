package router

import (
	"net/http"

	"keysaccounting-api/internal/handler"
	"keysaccounting-api/internal/middleware"
	"keysaccounting-api/internal/model"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler         *handler.Handler
	LendingHandler  *handler.LendingHandler
	EmployeeHandler *handler.EmployeeHandler
	AdminHandler    *handler.AdminHandler
	Permissions     middleware.PermissionChecker
	AuthMiddleware  func(http.Handler) http.Handler
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-API-Key", middleware.EmployeeIDHeader},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// PUBLIC routes (no auth required)
	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}
	r.Handle("/metrics", promhttp.Handler())

	user := middleware.RequireRole(cfg.Permissions, model.RoleUser, model.RoleSecurity)
	security := middleware.RequireRole(cfg.Permissions, model.RoleSecurity)
	admin := middleware.RequireRole(cfg.Permissions, model.RoleAdmin)

	// AUTHENTICATED routes
	r.Group(func(r chi.Router) {
		if cfg.AuthMiddleware != nil {
			r.Use(cfg.AuthMiddleware)
		}

		r.Route("/api/v1", func(r chi.Router) {
			// Health check endpoints
			if cfg.Handler != nil {
				r.Get("/health", cfg.Handler.Health)
				r.Get("/ready", cfg.Handler.Ready)
			}

			r.Route("/employees", func(r chi.Router) {
				if cfg.EmployeeHandler != nil {
					r.Post("/", cfg.EmployeeHandler.Register)
				}
				if cfg.LendingHandler != nil {
					r.With(user).Get("/me/keys", cfg.LendingHandler.MyKeys)
					r.With(security).Get("/history", cfg.LendingHandler.EmployeeHistory)
				}
			})

			if cfg.LendingHandler != nil {
				h := cfg.LendingHandler

				r.Route("/keys", func(r chi.Router) {
					r.With(user).Get("/", h.FindKeys)
					r.With(user).Get("/{key}", h.GetKey)
					r.With(user).Get("/{key}/history", h.KeyHistory)
					r.With(security).Post("/{key}/return", h.ReturnKey)
				})

				r.Route("/requests", func(r chi.Router) {
					r.With(user).Post("/", h.CreateRequest)
					r.With(security).Get("/", h.ListRequests)
					r.With(security).Post("/{key}/approve", h.Approve)
					r.With(security).Post("/{key}/deny", h.Deny)
				})

				r.Route("/loans", func(r chi.Router) {
					r.Use(security)
					r.Get("/outstanding", h.Outstanding)
					r.Get("/overdue", h.Overdue)
				})
			}

			// Admin endpoints
			if cfg.AdminHandler != nil {
				r.With(admin).Get("/admin/stats", cfg.AdminHandler.GetStats)
			}
		})
	})

	return r
}
