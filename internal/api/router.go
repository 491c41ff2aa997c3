package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/genflow/internal/api/middleware"
)

// RouterConfig lists the handlers served by NewRouter. Nil handlers are not
// mounted; a nil Auth leaves the task routes open.
type RouterConfig struct {
	Tasks   *TaskHandler
	Proxy   *ProxyHandler
	Webhook *WebhookHandler
	Auth    *middleware.AuthMiddleware
	Logger  *slog.Logger
}

// NewRouter builds the HTTP routes.
func NewRouter(cfg RouterConfig) chi.Router {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewRequestIDMiddleware(cfg.Logger))
	r.Use(middleware.CORS)
	r.Use(chimiddleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		if cfg.Tasks != nil {
			r.Group(func(r chi.Router) {
				if cfg.Auth != nil {
					r.Use(cfg.Auth.Authenticate)
				}
				r.Post("/tasks", cfg.Tasks.CreateTask)
				r.Get("/tasks", cfg.Tasks.ListTasks)
				r.Get("/tasks/{id}", cfg.Tasks.GetTask)
				r.Patch("/tasks/{id}", cfg.Tasks.UpdateTask)
				r.Put("/tasks/{id}", cfg.Tasks.UpdateTask)
				r.Delete("/tasks/{id}", cfg.Tasks.DeleteTask)
			})
		}

		if cfg.Webhook != nil {
			r.Post("/webhook", cfg.Webhook.Receive)
		}

		if cfg.Proxy != nil {
			r.Post("/proxy/predictions", cfg.Proxy.StartPrediction)
			r.Get("/proxy/predictions/{id}", cfg.Proxy.GetPrediction)
		}
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			cfg.Logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
