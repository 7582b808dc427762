// Package consumer applies user change events to the orders that denormalize user data.
package consumer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/events"
	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/pubsub"
)

// Outcome is the terminal state of one message.
type Outcome string

const (
	// Acknowledged messages were applied, or had nothing to apply.
	Acknowledged Outcome = "acknowledged"
	// Requeued messages failed transiently and will be delivered again.
	Requeued Outcome = "requeued"
	// Dropped messages are malformed and will never succeed.
	Dropped Outcome = "dropped"
)

const defaultApplyTimeout = 15 * time.Second

var messagesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "consumer_messages_total",
		Help: "User change events processed by the order service, by outcome.",
	},
	[]string{"outcome"},
)

// Applier writes a user's changed fields onto that user's orders.
type Applier interface {
	ApplyUserChange(ctx context.Context, userID string, fields events.UpdateFields) (int, error)
}

// Consumer drains one subscription. Each Consumer handles one message at a time.
type Consumer struct {
	sub          pubsub.Subscriber
	applier      Applier
	logger       *slog.Logger
	applyTimeout time.Duration
}

func New(sub pubsub.Subscriber, applier Applier, logger *slog.Logger) *Consumer {
	return &Consumer{sub: sub, applier: applier, logger: logger, applyTimeout: defaultApplyTimeout}
}

// Handle validates and applies one message body. It never touches the broker.
func (c *Consumer) Handle(ctx context.Context, body []byte) Outcome {
	event, err := events.DecodeUserChanged(body)
	if err != nil {
		c.logger.Warn("dropping malformed user change event", slog.Any("error", err))
		return Dropped
	}

	fields := event.Fields()
	if fields.Empty() {
		c.logger.Info("user change event carries no fields", slog.String("userId", event.UserID))
		return Acknowledged
	}

	matched, err := c.applier.ApplyUserChange(ctx, event.UserID, fields)
	if err != nil {
		c.logger.Error("failed to apply user change, requeueing",
			slog.String("userId", event.UserID),
			slog.Any("error", err),
		)
		return Requeued
	}

	c.logger.Info("applied user change to orders",
		slog.String("userId", event.UserID),
		slog.Int("orders", matched),
		slog.Any("fields", fields.Names()),
	)
	return Acknowledged
}

// Run receives until ctx is cancelled. A message already being processed when ctx is cancelled
// is still applied and settled; only the wait for new messages is interrupted.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("consumer started")
	err := c.sub.Receive(ctx, func(ctx context.Context, d pubsub.Delivery) {
		work, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.applyTimeout)
		defer cancel()

		outcome := c.Handle(work, d.Body)
		messagesTotal.WithLabelValues(string(outcome)).Inc()

		if err := settle(work, d, outcome); err != nil && !errors.Is(err, pubsub.ErrAlreadySettled) {
			c.logger.Error("failed to settle delivery",
				slog.String("deliveryId", d.ID),
				slog.String("outcome", string(outcome)),
				slog.Any("error", err),
			)
		}
	})
	c.logger.Info("consumer stopped")
	return err
}

func settle(ctx context.Context, d pubsub.Delivery, outcome Outcome) error {
	switch outcome {
	case Requeued:
		return d.Nack(ctx, true)
	default:
		// Dropped messages are acked so they leave the queue for good.
		return d.Ack(ctx)
	}
}

// Close releases the subscription.
func (c *Consumer) Close() error {
	return c.sub.Close()
}
