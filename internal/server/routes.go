package server

import (
	"os"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/licitalens/licitalens/internal/observability"
	"github.com/licitalens/licitalens/internal/server/handlers"
	servermw "github.com/licitalens/licitalens/internal/server/middleware"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	// Health endpoints
	if s.deps.Health != nil {
		s.router.Get("/health", s.deps.Health.HealthHandler)
		s.router.Get("/health/live", s.deps.Health.LivenessHandler)
		s.router.Get("/health/ready", s.deps.Health.ReadinessHandler)
		s.router.Get("/health/startup", s.deps.Health.StartupHandler)
	}

	// Version endpoint
	s.router.Get("/version", handlers.VersionHandler)

	// Metrics endpoint (in server package to access HandleError)
	s.router.Get("/metrics", MetricsHandler)

	// Gateway API
	s.router.Route("/api/v1", func(r chi.Router) {
		if s.deps.Relay != nil {
			r.Get("/search/stream", handlers.NewStreamHandler(s.deps.Relay).ServeHTTP)
		}
		if s.deps.Coordinator != nil {
			r.Post("/search", handlers.NewSearchHandler(s.deps.Coordinator).ServeHTTP)
		}
		if s.deps.Backend != nil {
			auth := handlers.NewAuthHandler(s.deps.Backend)
			r.With(servermw.RateLimit(s.deps.LoginLimiter, "login")).
				Post("/auth/login", auth.Login)
			r.With(servermw.RateLimit(s.deps.RegisterLimiter, "register")).
				Post("/auth/register", auth.Register)
		}
	})

	// Admin signal endpoint (optional, requires LICITALENS_ADMIN_TOKEN)
	s.registerAdminEndpoint()
}

// registerAdminEndpoint optionally registers the admin signal endpoint
func (s *Server) registerAdminEndpoint() {
	adminToken := os.Getenv("LICITALENS_ADMIN_TOKEN")
	logger := observability.ServerLogger

	if adminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (no LICITALENS_ADMIN_TOKEN set)")
		}
		return
	}

	// HTTP signal handler with bearer token auth and rate limiting
	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: adminToken,
		RateLimit: 10,  // 10 requests per minute
		RateBurst: 5,   // burst size
		Manager:   nil, // use default global manager
	})

	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.String("auth", "bearer token"),
			zap.String("rate_limit", "10/min, burst 5"))
		logger.Warn("Admin endpoint enabled - ensure this server is not exposed to public internet")
	}
}
