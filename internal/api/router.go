package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sungwon/batch-messenger/internal/auth"
)

// Deps are the collaborators of the HTTP surface. Progress is optional;
// without it the progress route is not registered. MediaDir, when set, is
// served under /media for the local media store.
type Deps struct {
	Log            zerolog.Logger
	JWT            *auth.JWTService
	Limiter        *auth.LoginLimiter
	Validate       *validator.Validate
	Users          UserStore
	Sessions       SessionStore
	Runtimes       SessionRuntimes
	Batches        BatchSubmitter
	Messages       MessageReader
	Progress       ProgressReader
	Checks         []Check
	MaxUploadBytes int64
	MediaDir       string
}

// NewRouter creates a chi.Mux with all routes, middleware, and handlers configured.
func NewRouter(d Deps) *chi.Mux {
	if d.Validate == nil {
		d.Validate = validator.New()
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(CorrelationIDMiddleware)
	r.Use(LoggingMiddleware(d.Log))
	r.Use(RecoverMiddleware(d.Log))
	r.Use(MetricsMiddleware)

	// Health endpoints (no auth required)
	r.Get("/healthz", HealthzHandler())
	r.Get("/readyz", ReadyzHandler(d.Checks...))
	r.Handle("/metrics", promhttp.Handler())

	if d.MediaDir != "" {
		r.Handle("/media/*", http.StripPrefix("/media/", http.FileServer(http.Dir(d.MediaDir))))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", LoginHandler(d.Users, d.JWT, d.Limiter, d.Validate))

		r.Group(func(r chi.Router) {
			r.Use(auth.JWTAuth(d.JWT))

			// Sessions
			r.Post("/sessions", CreateSessionHandler(d.Sessions, d.Runtimes))
			r.Get("/sessions/me", GetSessionHandler(d.Sessions, d.Runtimes))
			r.Delete("/sessions/me", LogoutSessionHandler(d.Sessions, d.Runtimes))

			// Messages
			r.Post("/messages/batch", SubmitBatchHandler(d.Batches, d.Validate, d.MaxUploadBytes))
			r.Get("/messages", ListMessagesHandler(d.Messages))
			if d.Progress != nil {
				r.Get("/messages/batches/{batchId}/progress", BatchProgressHandler(d.Progress, d.Sessions))
			}
			r.Get("/messages/{id}", GetMessageHandler(d.Messages))
		})
	})

	return r
}
