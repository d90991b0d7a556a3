package server

import (
	"github.com/proapi/proapi/internal/routing"
	"github.com/proapi/proapi/internal/server/middleware"
	v1 "github.com/proapi/proapi/internal/server/v1"
)

func (s *Server) SetupRoutes() {
	s.router.Use(middleware.Tracing(ServiceName))
	s.router.Use(middleware.CORS())
	s.router.Use(middleware.ErrorHandler(s.logger))

	healthHandler := v1.NewHealthHandler()
	s.router.GET("/health", healthHandler.Health)

	limiter := middleware.NewRateLimiter(
		s.config.RateLimit.RequestsPerSecond,
		s.config.RateLimit.Burst,
		s.logger,
	)

	auth := middleware.Auth(func() *routing.Snapshot { return s.service.Snapshot() })

	chatHandler := v1.NewChatHandler(s.service)
	modelHandler := v1.NewModelHandler(s.service)

	api := s.router.Group("/v1")
	api.Use(auth)
	api.Use(limiter.Middleware())
	{
		api.POST("/chat/completions", chatHandler.CreateCompletion)
		api.GET("/models", modelHandler.ListModels)
	}

	// bare alias kept for clients that omit the version prefix
	compat := s.router.Group("")
	compat.Use(auth)
	compat.Use(limiter.Middleware())
	{
		compat.POST("/chat/completions", chatHandler.CreateCompletion)
	}

	if s.config.Server.AdminServer {
		adminHandler := v1.NewAdminHandler(s.service, s.loader, s.repo, s.logger)

		s.router.GET("/reload_config", auth, adminHandler.Reload)

		admin := s.router.Group("/v1/admin")
		admin.Use(auth)
		{
			admin.GET("/reload", adminHandler.Reload)
			if s.repo != nil {
				admin.GET("/logs", adminHandler.RecentLogs)
				admin.GET("/logs/:id", adminHandler.LogByID)
				admin.GET("/stats", adminHandler.DailyStats)
			}
		}
	}
}
