package pubsub

import (
	"context"
	"fmt"
	"log/slog"
)

// Driver selects the broker implementation.
type Driver string

const (
	DriverRedis  Driver = "redis"
	DriverKafka  Driver = "kafka"
	DriverMemory Driver = "memory"
)

// Config selects and configures a broker driver.
type Config struct {
	Driver Driver
	Redis  RedisConfig
	Kafka  KafkaConfig
	// Memory is shared between the publisher and subscribers of one process. A new exchange is
	// created when nil, so events never leave the process.
	Memory *MemoryExchange
}

// Validate reports missing driver settings.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis address required when broker driver=%s", c.Driver)
		}
	case DriverKafka:
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka brokers required when broker driver=%s", c.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unsupported broker driver: %s", c.Driver)
	}
	return nil
}

func (c *Config) memory() *MemoryExchange {
	if c.Memory == nil {
		c.Memory = NewMemoryExchange()
	}
	return c.Memory
}

// NewPublisher builds a Publisher for the configured driver. An unreachable broker is not an
// error here: publishing is best effort and the client reconnects on the next publish.
func NewPublisher(ctx context.Context, cfg *Config, logger *slog.Logger) (Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Driver {
	case DriverRedis:
		client := newRedisClient(cfg.Redis)
		if err := pingRedis(ctx, client); err != nil {
			logger.Warn("broker unreachable at startup, events will be dropped until it returns",
				slog.String("addr", cfg.Redis.Addr),
				slog.Any("error", err),
			)
		}
		return NewRedisPublisher(client, cfg.Redis), nil
	case DriverKafka:
		return NewKafkaPublisher(cfg.Kafka, logger), nil
	default:
		return cfg.memory(), nil
	}
}

// NewSubscriber connects a Subscriber consuming queue, bound to topic, identified as consumer.
func NewSubscriber(ctx context.Context, cfg *Config, topic, queue, consumer string, logger *slog.Logger) (Subscriber, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Driver {
	case DriverRedis:
		client, err := NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return NewRedisSubscriber(client, cfg.Redis, topic, queue, consumer, logger), nil
	case DriverKafka:
		return NewKafkaSubscriber(cfg.Kafka, topic, queue, logger), nil
	default:
		return cfg.memory().Subscriber(topic, queue), nil
	}
}
