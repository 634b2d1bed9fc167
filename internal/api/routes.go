// Package api exposes the HTTP control surface: campaign lifecycle,
// recommendation queries, and the inbound event webhook.
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the router.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Route("/campaigns", func(r chi.Router) {
			r.Post("/", h.StartCampaign)
			r.Get("/{id}", h.CampaignStatus)
			r.Post("/{id}/pause", h.PauseCampaign)
			r.Post("/{id}/resume", h.ResumeCampaign)
			r.Post("/{id}/stop", h.StopCampaign)
		})

		r.Get("/recommendations", h.Recommend)
		r.Post("/events", h.IngestEvent)
	})

	return r
}
