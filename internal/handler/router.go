package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/citafacil/citafacil/internal/middleware"
)

// RouterConfig collects the handlers and middleware settings for NewRouter.
type RouterConfig struct {
	Handler       *Handler
	Health        *HealthHandler
	Auth          *AuthHandler
	Appointments  *AppointmentHandler
	Elaborate     *ElaborateHandler
	Notifications *NotificationsHandler
	// Metrics is optional.
	Metrics *MetricsHandler

	Session            middleware.SessionConfig
	ElaborationLimiter *middleware.RateLimiter
	CORS               middleware.CORSConfig
	MaxBodySize        int64
	Development        bool
	Logger             *slog.Logger
}

// NewRouter configures the chi router with all routes and middleware.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recoverer(cfg.Logger))
	r.Use(middleware.Security(cfg.Development))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.MaxBodySize(cfg.MaxBodySize))

	r.Get("/healthz", cfg.Health.Healthz)
	r.Get("/readyz", cfg.Health.Readyz)
	if cfg.Metrics != nil {
		r.Get("/metrics", cfg.Metrics.Metrics)
	}
	r.Get("/", cfg.Handler.Index)

	requireSession := middleware.RequireSession(cfg.Session)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/slots", cfg.Handler.Slots)
		r.Get("/notifications", cfg.Notifications.Drain)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", cfg.Auth.Register)
			r.Post("/login", cfg.Auth.Login)
			r.With(requireSession).Post("/logout", cfg.Auth.Logout)
			r.With(requireSession).Get("/session", cfg.Auth.Session)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireSession)

			r.Route("/appointments", func(r chi.Router) {
				r.Get("/", cfg.Appointments.List)
				r.Post("/", cfg.Appointments.Create)
				r.Delete("/{id}", cfg.Appointments.Delete)
			})

			elaborate := http.HandlerFunc(cfg.Elaborate.Elaborate)
			if cfg.ElaborationLimiter != nil {
				r.With(middleware.RateLimit(cfg.ElaborationLimiter, cfg.Logger)).Post("/elaborate", elaborate)
			} else {
				r.Post("/elaborate", elaborate)
			}
		})
	})

	r.NotFound(cfg.Handler.NotFound)
	r.MethodNotAllowed(cfg.Handler.MethodNotAllowed)

	return r
}
