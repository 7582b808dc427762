package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/go-chi/chi/v5"

	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/envconfig"
	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/events"
	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/logging"
	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/pubsub"
	sharedserver "github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/server"

	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/user-service/internal/config"
	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/user-service/internal/httpapi"
	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/user-service/internal/user"
)

func main() {
	ctx := context.Background()
	if err := envconfig.Load(); err != nil {
		panic(fmt.Errorf("env file error: %w", err))
	}
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Errorf("config error: %w", err))
	}

	serviceName := "user-service-" + cfg.Version
	logger := logging.NewLogger(serviceName)

	var repo user.Repository
	switch cfg.DataStore {
	case "memory":
		repo = user.NewMemoryRepository()
	default:
		client, err := firestore.NewClient(ctx, cfg.GCPProjectID)
		if err != nil {
			panic(fmt.Errorf("firestore client: %w", err))
		}
		defer client.Close()
		repo = user.NewFirestoreRepository(client, cfg.Firestore.Collection)
	}

	broker, err := pubsub.NewPublisher(ctx, &cfg.Broker, logger)
	if err != nil {
		panic(fmt.Errorf("broker error: %w", err))
	}
	defer broker.Close()

	userService := user.NewService(repo, events.NewPublisher(broker, logger), user.Version(cfg.Version), logger)

	router := sharedserver.NewRouter(serviceName, func(r chi.Router) {
		httpapi.RegisterRoutes(r, userService, logger)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("user service configured",
		slog.String("version", cfg.Version),
		slog.String("datastore", cfg.DataStore),
		slog.String("broker", string(cfg.Broker.Driver)),
	)
	if err := sharedserver.Run(ctx, srv, logger); err != nil {
		panic(err)
	}
}
