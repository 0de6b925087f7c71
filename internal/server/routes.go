package server

import (
	"github.com/openaicompat/bedrock-gateway/internal/server/middleware"
	v1 "github.com/openaicompat/bedrock-gateway/internal/server/v1"
)

func (s *Server) setupRoutes() {
	healthHandler := v1.NewHealthHandler()
	s.router.GET("/health", healthHandler.Health)

	readyHandler := v1.NewReadyHandler(s.deps.Store, s.deps.Resolver)
	s.router.GET("/ready", readyHandler.Ready)

	api := s.router.Group("/v1")
	api.Use(middleware.Auth(s.deps.Authenticator, s.deps.Config))
	api.Use(middleware.RateLimit(s.deps.RateLimiter, s.deps.Config))
	{
		chatHandler := v1.NewChatHandler(s.deps.Service, s.deps.Usage)
		api.POST("/chat/completions", chatHandler.CreateCompletion)

		modelsHandler := v1.NewModelsHandler(s.deps.Service)
		api.GET("/models", modelsHandler.ListModels)
	}
}
