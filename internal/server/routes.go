package server

import (
	"github.com/go-chi/chi/v5"

	"github.com/floorlens/floorlens/internal/server/handlers"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	s.router.Get("/health", handlers.HealthHandler)
	s.router.Get("/health/live", handlers.LivenessHandler)
	s.router.Get("/health/ready", handlers.ReadinessHandler)

	s.router.Get("/version", handlers.VersionHandler)

	// Metrics endpoint (in server package to access HandleError)
	s.router.Get("/metrics", MetricsHandler)

	s.router.Route("/api/v1", func(r chi.Router) {
		if s.deps.Positions != nil {
			triggers := &handlers.PositionsHandler{
				Positions: s.deps.Positions,
				Persister: s.deps.Persister,
			}
			r.Mount("/triggers", triggers.Routes())
		}

		if s.deps.Alerts != nil {
			alerts := &handlers.AlertsHandler{Alerts: s.deps.Alerts}
			r.Mount("/alerts", alerts.Routes())
		}

		if s.deps.Limiter != nil {
			limits := &handlers.RateLimitsHandler{Limiter: s.deps.Limiter}
			r.Mount("/rate-limits", limits.Routes())
		}

		events := &handlers.EventsHandler{Events: s.deps.Events}
		r.Get("/events", events.List)
	})
}
