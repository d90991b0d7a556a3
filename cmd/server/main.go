package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/proapi/proapi/internal/analytics"
	"github.com/proapi/proapi/internal/config"
	"github.com/proapi/proapi/internal/gateway"
	"github.com/proapi/proapi/internal/httpclient"
	"github.com/proapi/proapi/internal/platform/logger"
	"github.com/proapi/proapi/internal/platform/otel"
	"github.com/proapi/proapi/internal/routing"
	"github.com/proapi/proapi/internal/server"
	"github.com/proapi/proapi/internal/store"
	"github.com/proapi/proapi/internal/store/cache"
	"github.com/proapi/proapi/internal/store/sqlite"

	// import dialects to trigger init() registration
	_ "github.com/proapi/proapi/internal/upstream/claude"
	_ "github.com/proapi/proapi/internal/upstream/cloudflare"
	_ "github.com/proapi/proapi/internal/upstream/cohere"
	_ "github.com/proapi/proapi/internal/upstream/gemini"
	_ "github.com/proapi/proapi/internal/upstream/merlin"
	_ "github.com/proapi/proapi/internal/upstream/openai"
	_ "github.com/proapi/proapi/internal/upstream/vertex"
)

func main() {
	logger.Initialize(logger.DefaultConfig())
	log := logger.Get()
	defer logger.Sync()

	go checkForUpdates(log)

	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = "config.yaml"
	}

	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := otel.InitTracer(server.ServiceName, log, os.Stdout)
	if err != nil {
		log.Fatal("failed to init tracing", zap.Error(err))
	}
	defer func() {
		_ = shutdownTracer(context.Background())
	}()

	// request log persistence is optional; without a db path the
	// ingestor is a no-op
	var repo store.Repository
	ingestor := analytics.NewNopIngestor()
	if cfg.Server.DBPath != "" {
		repo, err = sqlite.NewSQLiteStorage(cfg.Server.DBPath)
		if err != nil {
			log.Fatal("failed to open sqlite store", zap.Error(err))
		}
		defer func() {
			_ = repo.Close()
		}()
		ingestor = analytics.NewIngestor(log, repo)
	}
	ingestor.Start(ctx)
	defer ingestor.Stop()

	var respCache cache.Service
	if cfg.Server.DBCache {
		if cfg.Server.RedisAddr != "" {
			respCache, err = cache.NewRedisCache(cfg.Server.RedisAddr)
			if err != nil {
				log.Fatal("failed to connect to redis", zap.Error(err))
			}
		} else {
			respCache = cache.NewMemoryCache()
		}
	}

	service := gateway.NewService(
		log,
		routing.NewHolder(routing.NewSnapshot(cfg)),
		ingestor,
		respCache,
		httpclient.Default,
	)

	// hot reload on manifest change
	loader.Watch(func(next *config.Config) {
		service.Reload(next)
	})

	srv := server.New(cfg, log, service, loader, repo)

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("addr", addr), zap.String("env", cfg.Server.Env))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}
