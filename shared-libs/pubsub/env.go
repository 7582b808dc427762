package pubsub

import (
	"strings"
	"time"

	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/envconfig"
)

// ConfigFromEnv reads the broker settings shared by every service:
// BROKER_DRIVER, REDIS_ADDR, REDIS_PASSWORD, REDIS_DB, REDIS_STREAM_MAXLEN,
// REDIS_CLAIM_MIN_IDLE_SECONDS and KAFKA_BROKERS.
func ConfigFromEnv() Config {
	return Config{
		Driver: Driver(strings.ToLower(envconfig.Get("BROKER_DRIVER", string(DriverRedis)))),
		Redis: RedisConfig{
			Addr:         envconfig.Get("REDIS_ADDR", "localhost:6379"),
			Password:     envconfig.Get("REDIS_PASSWORD", ""),
			DB:           envconfig.GetInt("REDIS_DB", 0),
			MaxLen:       int64(envconfig.GetInt("REDIS_STREAM_MAXLEN", 100000)),
			ClaimMinIdle: time.Duration(envconfig.GetInt("REDIS_CLAIM_MIN_IDLE_SECONDS", 30)) * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers: envconfig.GetList("KAFKA_BROKERS", []string{"localhost:9092"}),
		},
	}
}
