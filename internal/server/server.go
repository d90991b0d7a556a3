package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/proapi/proapi/internal/config"
	"github.com/proapi/proapi/internal/gateway"
	"github.com/proapi/proapi/internal/server/middleware"
	"github.com/proapi/proapi/internal/server/validator"
	"github.com/proapi/proapi/internal/store"
	"go.uber.org/zap"
)

// ServiceName tags traces and access logs.
const ServiceName = "proapi"

type Server struct {
	router  *gin.Engine
	config  *config.Config
	logger  *zap.Logger
	service *gateway.Service
	loader  *config.Loader
	repo    store.Repository
}

func New(cfg *config.Config, logger *zap.Logger, service *gateway.Service, loader *config.Loader, repo store.Repository) *Server {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	validator.Init()

	engine := gin.New()
	engine.Use(middleware.Recovery(logger))
	engine.Use(middleware.Logger(logger))

	s := &Server{
		router:  engine,
		config:  cfg,
		logger:  logger,
		service: service,
		loader:  loader,
		repo:    repo,
	}

	s.SetupRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}
