package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/order-service/internal/config"
	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/order-service/internal/consumer"
	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/order-service/internal/httpapi"
	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/order-service/internal/order"
	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/envconfig"
	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/logging"
	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/pubsub"
	sharedserver "github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/server"
	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/supervisor"
)

func main() {
	if err := envconfig.Load(); err != nil {
		panic(fmt.Errorf("env file error: %w", err))
	}
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Errorf("config error: %w", err))
	}

	logger := logging.NewLogger("order-service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var repo order.Repository
	switch cfg.DataStore {
	case "memory":
		repo = order.NewMemoryRepository()
	default:
		client, err := firestore.NewClient(ctx, cfg.GCPProjectID)
		if err != nil {
			panic(fmt.Errorf("firestore client: %w", err))
		}
		defer client.Close()
		repo = order.NewFirestoreRepository(client, cfg.Firestore.Collection)
	}

	orderService := order.NewService(repo, logger)

	router := sharedserver.NewRouter("order-service", func(r chi.Router) {
		httpapi.RegisterRoutes(r, orderService, logger)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	if cfg.Broker.Driver == pubsub.DriverMemory && cfg.Broker.Memory == nil {
		// Workers share one exchange; create it before they start.
		cfg.Broker.Memory = pubsub.NewMemoryExchange()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sharedserver.Run(gctx, srv, logger)
	})

	for i := 0; i < cfg.Consumer.Workers; i++ {
		name := fmt.Sprintf("%s-%d", cfg.Consumer.Name, i)
		workerLogger := logger.With(slog.String("consumer", name))

		g.Go(func() error {
			// A broken consumer restarts on its own and never takes the HTTP server down.
			return supervisor.Run(gctx, "user-events-"+name, func(ctx context.Context) error {
				sub, err := pubsub.NewSubscriber(ctx, &cfg.Broker, pubsub.TopicUserEvents, cfg.Consumer.Queue, name, workerLogger)
				if err != nil {
					return fmt.Errorf("subscribe: %w", err)
				}
				c := consumer.New(sub, orderService, workerLogger)
				defer c.Close()
				return c.Run(ctx)
			}, supervisor.DefaultPolicy(), workerLogger)
		})
	}

	logger.Info("order service configured",
		slog.String("datastore", cfg.DataStore),
		slog.String("broker", string(cfg.Broker.Driver)),
		slog.Int("consumerWorkers", cfg.Consumer.Workers),
	)
	if err := g.Wait(); err != nil {
		panic(err)
	}
}
