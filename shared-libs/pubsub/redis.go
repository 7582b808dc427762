package pubsub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis Streams mapping: a topic is a stream, a queue is a consumer group on that stream.
// Unacked entries stay in the group's pending list and are reclaimed with XAUTOCLAIM once
// they have been idle for ClaimMinIdle, which is how Nack(requeue) turns into a redelivery.
const (
	redisBodyField = "body"
	redisKeyField  = "key"
)

// RedisConfig configures the Redis connection and stream behaviour.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// MaxLen caps each stream (approximate trimming). Zero disables trimming.
	MaxLen int64
	// Block is how long XREADGROUP waits for new entries.
	Block time.Duration
	// ClaimMinIdle is how long a pending entry waits before it is redelivered.
	ClaimMinIdle time.Duration
	// BatchSize bounds entries fetched per read.
	BatchSize int64
}

func (c RedisConfig) withDefaults() RedisConfig {
	if c.Block <= 0 {
		c.Block = 2 * time.Second
	}
	if c.ClaimMinIdle <= 0 {
		c.ClaimMinIdle = 30 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 16
	}
	return c
}

// NewRedisClient opens a pooled client and verifies connectivity.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := newRedisClient(cfg)
	if err := pingRedis(ctx, client); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func newRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        20,
		MinIdleConns:    2,
		PoolTimeout:     4 * time.Second,
		ConnMaxIdleTime: 5 * time.Minute,
		ConnMaxLifetime: 30 * time.Minute,
		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	})
}

func pingRedis(ctx context.Context, client *redis.Client) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

type redisPublisher struct {
	client redis.UniversalClient
	maxLen int64
}

// NewRedisPublisher publishes with XADD.
func NewRedisPublisher(client redis.UniversalClient, cfg RedisConfig) Publisher {
	return &redisPublisher{client: client, maxLen: cfg.MaxLen}
}

func (p *redisPublisher) Publish(ctx context.Context, topic, key string, body []byte) error {
	args := &redis.XAddArgs{
		Stream: topic,
		Values: map[string]any{redisKeyField: key, redisBodyField: body},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", topic, err)
	}
	return nil
}

func (p *redisPublisher) Close() error {
	return p.client.Close()
}

type redisSubscriber struct {
	client   redis.UniversalClient
	stream   string
	group    string
	consumer string
	cfg      RedisConfig
	logger   *slog.Logger
}

// NewRedisSubscriber consumes queue (a consumer group) on topic (a stream) as consumer.
func NewRedisSubscriber(client redis.UniversalClient, cfg RedisConfig, topic, queue, consumer string, logger *slog.Logger) Subscriber {
	return &redisSubscriber{
		client:   client,
		stream:   topic,
		group:    queue,
		consumer: consumer,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

func (s *redisSubscriber) Receive(ctx context.Context, h Handler) error {
	if err := s.declare(ctx); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := s.reclaim(ctx, h); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.group,
			Consumer: s.consumer,
			Streams:  []string{s.stream, ">"},
			Count:    s.cfg.BatchSize,
			Block:    s.cfg.Block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("xreadgroup %s/%s: %w", s.stream, s.group, err)
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				h(ctx, s.delivery(msg, false))
			}
		}
	}
}

// declare creates the consumer group at the stream tail, like binding a new queue to an exchange.
func (s *redisSubscriber) declare(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.stream, s.group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s on %s: %w", s.group, s.stream, err)
	}
	return nil
}

func (s *redisSubscriber) reclaim(ctx context.Context, h Handler) error {
	msgs, _, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   s.stream,
		Group:    s.group,
		Consumer: s.consumer,
		MinIdle:  s.cfg.ClaimMinIdle,
		Start:    "0-0",
		Count:    s.cfg.BatchSize,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("xautoclaim %s/%s: %w", s.stream, s.group, err)
	}
	for _, msg := range msgs {
		h(ctx, s.delivery(msg, true))
	}
	return nil
}

func (s *redisSubscriber) delivery(msg redis.XMessage, redelivered bool) Delivery {
	ack := func(ctx context.Context) error {
		return s.client.XAck(ctx, s.stream, s.group, msg.ID).Err()
	}
	nack := func(ctx context.Context, requeue bool) error {
		if requeue {
			// Left pending; XAUTOCLAIM hands it out again after ClaimMinIdle.
			return nil
		}
		return ack(ctx)
	}
	return NewDelivery(msg.ID, fieldString(msg.Values, redisKeyField), []byte(fieldString(msg.Values, redisBodyField)), redelivered, ack, nack)
}

func (s *redisSubscriber) Close() error {
	return s.client.Close()
}

func fieldString(values map[string]any, field string) string {
	switch v := values[field].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}
