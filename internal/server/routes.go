package server

import (
	"go.uber.org/zap"

	"github.com/parleyhq/parley/internal/observability"
	"github.com/parleyhq/parley/internal/server/handlers"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	// Dispatch pipeline
	if s.deps.Engine != nil {
		messages := &handlers.MessagesHandler{Engine: s.deps.Engine}
		s.router.Post("/v1/messages", messages.ServeHTTP)
	}

	// Health endpoints
	if s.deps.Health != nil {
		s.router.Get("/health", s.deps.Health.HealthHandler)
		s.router.Get("/health/live", s.deps.Health.LivenessHandler)
		s.router.Get("/health/ready", s.deps.Health.ReadinessHandler)
	}

	// Version endpoint
	s.router.Get("/version", handlers.VersionHandler)

	// Metrics endpoint (in server package to access HandleError)
	s.router.Get("/metrics", MetricsHandler)

	// Admin reload endpoint (optional, requires a configured token)
	s.registerAdminEndpoint()
}

// registerAdminEndpoint optionally registers the config reload endpoint
func (s *Server) registerAdminEndpoint() {
	logger := observability.ServerLogger

	if s.deps.ReloadToken == "" || s.deps.Reload == nil {
		if logger != nil {
			logger.Debug("Admin reload endpoint disabled (no admin.reload_token set)")
		}
		return
	}

	reload := &handlers.ReloadHandler{
		Token:  s.deps.ReloadToken,
		Reload: s.deps.Reload,
	}
	s.router.Post("/admin/reload", reload.ServeHTTP)

	if logger != nil {
		logger.Info("Admin reload endpoint enabled",
			zap.String("path", "/admin/reload"),
			zap.String("auth", "bearer token"))
		logger.Warn("Admin endpoint enabled - ensure this server is not exposed to public internet")
	}
}
