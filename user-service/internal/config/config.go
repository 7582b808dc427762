package config

import (
	"strings"

	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/envconfig"
	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/pubsub"
)

type Config struct {
	Port         string `validate:"required"`
	Version      string `validate:"oneof=v1 v2"`
	GCPProjectID string `validate:"required_if=DataStore firestore"`
	DataStore    string `validate:"oneof=firestore memory"`
	Firestore    FirestoreConfig
	Broker       pubsub.Config `validate:"-"`
}

type FirestoreConfig struct {
	EmulatorHost string
	Collection   string `validate:"required"`
}

func Load() (Config, error) {
	cfg := Config{
		Port:         envconfig.Get("PORT", "8080"),
		Version:      strings.ToLower(envconfig.Get("USER_SERVICE_VERSION", "v1")),
		GCPProjectID: envconfig.Get("GCP_PROJECT_ID", "orders-dev"),
		DataStore:    envconfig.Get("DATASTORE", "firestore"),
		Firestore: FirestoreConfig{
			EmulatorHost: envconfig.Get("FIRESTORE_EMULATOR_HOST", ""),
			Collection:   envconfig.Get("USERS_COLLECTION", "users"),
		},
		Broker: pubsub.ConfigFromEnv(),
	}
	if err := envconfig.Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Broker.Validate()
}
