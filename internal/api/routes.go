package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/engage/internal/auth"
)

// SetupRoutes configures all routes. Everything under /api requires a
// bearer token; the webhook and health probes do not.
func SetupRoutes(h *Handlers, health *HealthChecker, verifier *auth.Verifier, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if health != nil {
		r.Get("/health", health.HandleHealth)
		r.Get("/health/live", health.HandleLiveness)
		r.Get("/health/ready", health.HandleReadiness)
	}

	r.Post("/webhooks/ses/notification", h.HandleSESNotification)

	r.Route("/api", func(r chi.Router) {
		if verifier != nil {
			r.Use(verifier.Middleware)
		}

		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", h.ListCampaigns)
			r.Post("/", h.CreateCampaign)
			r.Get("/{id}", h.GetCampaign)
			r.Put("/{id}", h.UpdateCampaign)
			r.Delete("/{id}", h.DeleteCampaign)
			r.Post("/{id}/send", h.SendCampaign)
			r.Post("/{id}/preview", h.PreviewCampaign)
		})

		r.Route("/subscribers", func(r chi.Router) {
			r.Get("/", h.ListSubscribers)
			r.Post("/", h.CreateSubscriber)
			r.Get("/{id}", h.GetSubscriber)
		})

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", h.ListTemplates)
			r.Post("/", h.CreateTemplate)
			r.Get("/{id}", h.GetTemplate)
		})

		r.Post("/email/send", h.SendEmail)

		r.Get("/analytics/stats", h.GetStats)
		r.Get("/analytics/events", h.ListEvents)
		r.Get("/activity", h.ListActivity)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, "not found")
	})

	return r
}
