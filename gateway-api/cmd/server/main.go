package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/gateway-api/internal/config"
	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/gateway-api/internal/httpapi"
	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/gateway-api/internal/proxy"
	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/gateway-api/internal/routing"
	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/envconfig"
	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/logging"
	sharedserver "github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/server"
)

func main() {
	ctx := context.Background()
	if err := envconfig.Load(); err != nil {
		panic(fmt.Errorf("env file error: %w", err))
	}
	logger := logging.NewLogger("gateway-api")

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Errorf("config error: %w", err))
	}

	source, closeSource, err := newSplitSource(ctx, cfg, logger)
	if err != nil {
		panic(fmt.Errorf("split source error: %w", err))
	}
	defer closeSource()

	provider := config.NewProvider(source, logger).WithReadTimeout(cfg.SplitReadTimeout)
	if percent, err := provider.Refresh(ctx); err != nil {
		logger.Warn("initial split read failed, using default", slog.Int("percent", percent), slog.Any("error", err))
	} else {
		logger.Info("initial split loaded", slog.Int("percent", percent), slog.String("source", cfg.SplitSource))
	}

	gateway := httpapi.NewGateway(
		provider,
		routing.NewEngine(routing.NewDrawer(), cfg.OrderPathPrefix),
		proxy.NewForwarder(nil),
		httpapi.Targets{Order: cfg.OrderURL, UserV1: cfg.UserV1URL, UserV2: cfg.UserV2URL},
		logger,
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpapi.Router(gateway),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	adminSrv := &http.Server{
		Addr:              ":" + cfg.AdminPort,
		Handler:           httpapi.AdminRouter(gateway),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sharedserver.Run(gctx, srv, logger)
	})
	g.Go(func() error {
		return sharedserver.Run(gctx, adminSrv, logger.With(slog.String("listener", "admin")))
	})
	if err := g.Wait(); err != nil {
		panic(err)
	}
}

func newSplitSource(ctx context.Context, cfg config.Config, logger *slog.Logger) (config.SplitSource, func(), error) {
	switch cfg.SplitSource {
	case config.SplitSourceRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			// Keep serving on the default split; the provider retries on every request.
			logger.Warn("redis ping failed", slog.String("addr", cfg.RedisAddr), slog.Any("error", err))
		}
		return config.NewRedisSplitSource(client, cfg.SplitKey), func() { _ = client.Close() }, nil
	case config.SplitSourceFile:
		return config.NewFileSplitSource(cfg.SplitFile), func() {}, nil
	case config.SplitSourceGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("storage client: %w", err)
		}
		return config.NewGCSSplitSource(client, cfg.SplitBucket, cfg.SplitObject), func() { _ = client.Close() }, nil
	case config.SplitSourceStatic:
		return config.NewStaticSplitSource(cfg.SplitPercent), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported split source %q", cfg.SplitSource)
	}
}
