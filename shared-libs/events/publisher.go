package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/pubsub"
)

const defaultPublishTimeout = 5 * time.Second

var publishTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "events_published_total",
		Help: "User change events handed to the broker, by result.",
	},
	[]string{"result"},
)

// Publisher emits user change events to the fanout topic. Publishing is fire-and-forget:
// failures are logged and counted but never returned to the caller, since the authoritative
// write has already succeeded by the time an event is published.
type Publisher struct {
	broker  pubsub.Publisher
	topic   string
	logger  *slog.Logger
	timeout time.Duration
}

// NewPublisher wires a Publisher onto the user events topic.
func NewPublisher(broker pubsub.Publisher, logger *slog.Logger) *Publisher {
	return &Publisher{
		broker:  broker,
		topic:   pubsub.TopicUserEvents,
		logger:  logger,
		timeout: defaultPublishTimeout,
	}
}

// PublishUserChanged publishes the present fields of a user mutation.
// The request context only contributes values; its cancellation does not abort the publish.
func (p *Publisher) PublishUserChanged(ctx context.Context, userID string, fields UpdateFields) {
	if fields.Empty() {
		return
	}

	body, err := json.Marshal(NewUserChanged(userID, fields))
	if err != nil {
		p.fail(userID, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	if err := p.broker.Publish(ctx, p.topic, userID, body); err != nil {
		p.fail(userID, err)
		return
	}

	publishTotal.WithLabelValues("ok").Inc()
	p.logger.Info("published user change event",
		slog.String("userId", userID),
		slog.Any("fields", fields.Names()),
		slog.String("topic", p.topic),
	)
}

func (p *Publisher) fail(userID string, err error) {
	publishTotal.WithLabelValues("error").Inc()
	p.logger.Error("failed to publish user change event",
		slog.String("userId", userID),
		slog.Any("error", err),
	)
}
