package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"secure.share/emergency/config"
	"secure.share/emergency/internal/auth"
	"secure.share/emergency/internal/emergency"
)

type Deps struct {
	Service  *emergency.Service
	Sessions *auth.Sessions
	Config   *config.Config
	Logger   *slog.Logger
}

// SetupRouter builds the HTTP surface. Background work started here (rate
// limiter cleanup) stops when ctx is done.
func SetupRouter(ctx context.Context, d Deps) *chi.Mux {
	h := NewHandler(d.Service, d.Logger)
	cfg := d.Config

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(RequestID)
	r.Use(Logger(d.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	// CORS
	r.Use(CORS(CORSConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         86400,
	}))

	// Health
	r.Get("/health", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		if cfg.RateLimit.Enabled {
			apiLimiter := NewRateLimiter(ctx, cfg.RateLimit.RequestsPerMin, time.Minute)
			r.Use(apiLimiter.Middleware)
		}
		r.Use(JSONOnly)

		r.Route("/emergency", func(r chi.Router) {
			r.Use(RequireSession(d.Sessions))

			r.Get("/", h.Overview)
			r.Post("/", h.RequestAccess)

			r.Get("/contacts", h.ListContacts)
			r.Post("/contacts", h.CreateContact)
			r.Patch("/contacts", h.UpdateContact)

			r.Get("/{id}", h.GetAccess)
			r.Delete("/{id}", h.DeleteAccess)
			if cfg.RateLimit.Enabled {
				respondLimiter := NewRateLimiter(ctx, cfg.RateLimit.RespondPerMin, time.Minute)
				r.With(respondLimiter.Middleware).Post("/{id}", h.Respond)
			} else {
				r.Post("/{id}", h.Respond)
			}
		})
	})

	return r
}
