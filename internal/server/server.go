package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openaicompat/bedrock-gateway/internal/config"
	"github.com/openaicompat/bedrock-gateway/internal/gateway"
	"github.com/openaicompat/bedrock-gateway/internal/gateway/authn"
	"github.com/openaicompat/bedrock-gateway/internal/gateway/ratelimit"
	"github.com/openaicompat/bedrock-gateway/internal/gateway/resolver"
	"github.com/openaicompat/bedrock-gateway/internal/gateway/usage"
	"github.com/openaicompat/bedrock-gateway/internal/server/middleware"
	"github.com/openaicompat/bedrock-gateway/internal/store"
)

// Deps bundles everything the route wiring needs, built once in main
// and threaded through unchanged for the life of the process.
type Deps struct {
	Config        *config.Config
	Logger        *zap.Logger
	Service       *gateway.Service
	Usage         *usage.Recorder
	Authenticator *authn.Authenticator
	RateLimiter   *ratelimit.Limiter
	Store         store.KeyStore
	Resolver      *resolver.Resolver
}

type Server struct {
	router *gin.Engine
	deps   Deps
}

func New(deps Deps) *Server {
	if deps.Config.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.Tracing("bedrock-gateway"))
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Logger(deps.Logger))
	engine.Use(middleware.CORS())
	engine.Use(middleware.ErrorHandler(deps.Logger))

	s := &Server{router: engine, deps: deps}
	s.setupRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}
