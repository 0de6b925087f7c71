package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/openaicompat/bedrock-gateway/internal/config"
	"github.com/openaicompat/bedrock-gateway/internal/gateway"
	"github.com/openaicompat/bedrock-gateway/internal/gateway/authn"
	"github.com/openaicompat/bedrock-gateway/internal/gateway/cache"
	"github.com/openaicompat/bedrock-gateway/internal/gateway/media"
	"github.com/openaicompat/bedrock-gateway/internal/gateway/ratelimit"
	"github.com/openaicompat/bedrock-gateway/internal/gateway/resolver"
	"github.com/openaicompat/bedrock-gateway/internal/gateway/translate"
	"github.com/openaicompat/bedrock-gateway/internal/gateway/upstream"
	"github.com/openaicompat/bedrock-gateway/internal/gateway/usage"
	"github.com/openaicompat/bedrock-gateway/internal/buildinfo"
	platformlogger "github.com/openaicompat/bedrock-gateway/internal/platform/logger"
	"github.com/openaicompat/bedrock-gateway/internal/platform/otel"
	"github.com/openaicompat/bedrock-gateway/internal/server"
	"github.com/openaicompat/bedrock-gateway/internal/server/validator"
	"github.com/openaicompat/bedrock-gateway/internal/store/sqlite"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	platformlogger.Initialize(platformlogger.Config{
		Level:       envOr("LOG_LEVEL", "info"),
		Format:      envOr("LOG_FORMAT", "console"),
		EnableColor: cfg.Server.Env != "production",
	})
	logger := platformlogger.Get()
	defer platformlogger.Sync()

	shutdownTracer, err := otel.InitTracer("bedrock-gateway", logger, os.Stderr)
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(ctx)
	}()

	go buildinfo.CheckForUpdates(context.Background(), "openaicompat/bedrock-gateway", logger)

	gin.SetMode(gin.ReleaseMode)
	validator.InitValidator()

	keyStore, err := sqlite.New(cfg.Store.DSN, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer keyStore.Close()

	res := resolver.New(keyStore.ModelMappings(), 60*time.Second)
	authenticator := authn.New(keyStore.APIKeys(), cfg.MasterAPIKey)
	if cfg.Redis.RedisEnabled {
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.RedisAddr,
			Password: cfg.Redis.RedisPassword,
			DB:       cfg.Redis.RedisDB,
		})
		authenticator.WithCache(cache.NewRedis(rdb, "bedrock-gateway:apikey:"))
	}
	limiter := ratelimit.New()

	reaperStop := make(chan struct{})
	go limiter.RunReaper(time.Minute, reaperStop)
	defer close(reaperStop)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	upstreamClient, err := upstream.New(ctx, cfg.AWSRegion,
		upstream.WithMaxRetries(cfg.MaxRetries),
		upstream.WithRetryBaseDelay(cfg.RetryBaseDelay),
		upstream.WithUnaryTimeout(cfg.UnaryTimeout),
		upstream.WithStreamTimeout(cfg.StreamTimeout),
	)
	cancel()
	if err != nil {
		logger.Fatal("failed to build upstream client", zap.Error(err))
	}

	reqTranslator := translate.NewRequestTranslator(media.New(), cfg.EnableVision, cfg.EnableToolUse, cfg.EnableExtendedThinking)
	respTranslator := translate.NewResponseTranslator(func() int64 { return time.Now().Unix() })
	gatewaySvc := gateway.New(res, reqTranslator, respTranslator, upstreamClient)
	usageRecorder := usage.New(keyStore.Usage(), logger)

	srv := server.New(server.Deps{
		Config:        cfg,
		Logger:        logger,
		Service:       gatewaySvc,
		Usage:         usageRecorder,
		Authenticator: authenticator,
		RateLimiter:   limiter,
		Store:         keyStore,
		Resolver:      res,
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.StreamTimeout + 30*time.Second,
	}

	go func() {
		logger.Sugar().Infof("listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
