package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/mstgnz/paysettle/handler"
	"github.com/mstgnz/paysettle/infra/middle"
	"github.com/mstgnz/paysettle/infra/response"
	v1 "github.com/mstgnz/paysettle/router/v1"
)

// Handlers are the HTTP handlers mounted by New
type Handlers struct {
	Notification *handler.NotificationHandler
	Admin        *handler.AdminHandler
	Health       *handler.HealthHandler
}

// Options tune the middleware stack
type Options struct {
	APIKey                  string
	NotificationIPWhitelist string
	AllowedOrigins          []string
	RateLimiter             *middle.RateLimiter
	MaxBodyBytes            int64
	RequestTimeout          time.Duration
}

// New builds the application router.
// The gateway notification endpoint and /health are public; /v1 requires the API key.
func New(h Handlers, opts Options) http.Handler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middle.RequestLoggingMiddleware())
	r.Use(middle.PanicRecoveryMiddleware())
	r.Use(middleware.Timeout(opts.RequestTimeout))
	r.Use(middle.SecurityHeadersMiddleware())
	r.Use(middle.RequestValidationMiddleware(opts.MaxBodyBytes))

	r.Get("/health", h.Health.CheckHealth)

	r.Route("/notifications", func(r chi.Router) {
		r.Use(middle.IPWhitelistMiddleware(opts.NotificationIPWhitelist))
		r.Post("/safetypay", h.Notification.HandleNotification)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
		if opts.RateLimiter != nil {
			r.Use(middle.RateLimitMiddleware(opts.RateLimiter))
		}
		r.Use(middle.AuthMiddleware(opts.APIKey))

		v1.Routes(r, h.Admin)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, "Not Found", nil)
	})

	return r
}
