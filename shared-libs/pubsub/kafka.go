package pubsub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Kafka mapping: a topic is a topic, a queue is a consumer group. Kafka has no per-message
// negative acknowledgement, so Nack(requeue) re-appends the message with a redelivery header
// and then commits the original offset.
const kafkaRedeliveredHeader = "x-redelivered"

// KafkaConfig configures the Kafka driver.
type KafkaConfig struct {
	Brokers []string
}

func newKafkaWriter(brokers []string, logger *slog.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            3,
		WriteTimeout:           10 * time.Second,
		ReadTimeout:            10 * time.Second,
		AllowAutoTopicCreation: true,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...), slog.String("component", "kafka-writer"))
		}),
	}
}

type kafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher publishes through a synchronous kafka.Writer. Messages are keyed so
// events for one user land on one partition.
func NewKafkaPublisher(cfg KafkaConfig, logger *slog.Logger) Publisher {
	return &kafkaPublisher{writer: newKafkaWriter(cfg.Brokers, logger)}
}

func (p *kafkaPublisher) Publish(ctx context.Context, topic, key string, body []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{Topic: topic, Key: []byte(key), Value: body})
	if err != nil {
		return fmt.Errorf("write to %s: %w", topic, err)
	}
	return nil
}

func (p *kafkaPublisher) Close() error {
	return p.writer.Close()
}

type kafkaSubscriber struct {
	reader *kafka.Reader
	writer *kafka.Writer
	topic  string
}

// NewKafkaSubscriber consumes topic in consumer group queue.
func NewKafkaSubscriber(cfg KafkaConfig, topic, queue string, logger *slog.Logger) Subscriber {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        queue,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        2 * time.Second,
		StartOffset:    kafka.LastOffset,
		CommitInterval: 0,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...), slog.String("component", "kafka-reader"))
		}),
	})
	return &kafkaSubscriber{reader: reader, writer: newKafkaWriter(cfg.Brokers, logger), topic: topic}
}

func (s *kafkaSubscriber) Receive(ctx context.Context, h Handler) error {
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("fetch from %s: %w", s.topic, err)
		}
		h(ctx, s.delivery(msg))
	}
}

func (s *kafkaSubscriber) delivery(msg kafka.Message) Delivery {
	id := kafkaDeliveryID(msg)
	ack := func(ctx context.Context) error {
		return s.reader.CommitMessages(ctx, msg)
	}
	nack := func(ctx context.Context, requeue bool) error {
		if requeue {
			if err := s.writer.WriteMessages(ctx, requeueMessage(s.topic, msg)); err != nil {
				// Not committed, so the group will see it again after a rebalance.
				return fmt.Errorf("requeue %s: %w", id, err)
			}
		}
		return s.reader.CommitMessages(ctx, msg)
	}
	return NewDelivery(id, string(msg.Key), msg.Value, isRedelivered(msg.Headers), ack, nack)
}

func kafkaDeliveryID(msg kafka.Message) string {
	return fmt.Sprintf("%d/%d", msg.Partition, msg.Offset)
}

// requeueMessage is the copy appended to topic when msg is nacked with requeue. The key is kept
// so the retry lands on the same partition.
func requeueMessage(topic string, msg kafka.Message) kafka.Message {
	return kafka.Message{
		Topic:   topic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: []kafka.Header{{Key: kafkaRedeliveredHeader, Value: []byte(kafkaDeliveryID(msg))}},
	}
}

func isRedelivered(headers []kafka.Header) bool {
	for _, header := range headers {
		if header.Key == kafkaRedeliveredHeader {
			return true
		}
	}
	return false
}

func (s *kafkaSubscriber) Close() error {
	return errors.Join(s.reader.Close(), s.writer.Close())
}
