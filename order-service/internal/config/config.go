package config

import (
	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/envconfig"
	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/pubsub"
)

type Config struct {
	Port         string `validate:"required"`
	GCPProjectID string `validate:"required_if=DataStore firestore"`
	DataStore    string `validate:"oneof=firestore memory"`
	Firestore    FirestoreConfig
	Consumer     ConsumerConfig
	Broker       pubsub.Config `validate:"-"`
}

type FirestoreConfig struct {
	EmulatorHost string
	Collection   string `validate:"required"`
}

type ConsumerConfig struct {
	Workers int    `validate:"gte=1,lte=64"`
	Queue   string `validate:"required"`
	// Name identifies this process within the consumer group.
	Name string `validate:"required"`
}

func Load() (Config, error) {
	cfg := Config{
		Port:         envconfig.Get("PORT", "8080"),
		GCPProjectID: envconfig.Get("GCP_PROJECT_ID", "orders-dev"),
		DataStore:    envconfig.Get("DATASTORE", "firestore"),
		Firestore: FirestoreConfig{
			EmulatorHost: envconfig.Get("FIRESTORE_EMULATOR_HOST", ""),
			Collection:   envconfig.Get("ORDERS_COLLECTION", "orders"),
		},
		Consumer: ConsumerConfig{
			Workers: envconfig.GetInt("CONSUMER_WORKERS", 1),
			Queue:   envconfig.Get("CONSUMER_QUEUE", pubsub.QueueOrderUserEvents),
			Name:    envconfig.Get("CONSUMER_NAME", envconfig.Get("HOSTNAME", "order-service")),
		},
		Broker: pubsub.ConfigFromEnv(),
	}
	if err := envconfig.Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Broker.Validate()
}
