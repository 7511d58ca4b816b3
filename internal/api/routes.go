package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/textflare/dispatch/internal/pkg/httputil"
	"github.com/textflare/dispatch/internal/worker"
)

// SetupRoutes configures the API router: standard middleware, CORS, the
// health endpoint, and every handler group mounted under /api/v1.
func SetupRoutes(campaigns *CampaignAPI, templates *TemplateAPI, webhooks *WebhookAPI, scheduler *worker.Scheduler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (no auth, no versioning)
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		body := map[string]interface{}{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
		}
		if scheduler != nil {
			body["scheduler"] = scheduler.Stats()
		}
		httputil.OK(w, body)
	})

	r.Route("/api/v1", func(r chi.Router) {
		campaigns.RegisterRoutes(r)
		templates.RegisterRoutes(r)
		webhooks.RegisterRoutes(r)
	})

	return r
}
