package pubsub

// Topic (fanout exchange) names used across services.
const (
	TopicUserEvents = "user.events"
)

// Queue (durable subscription) names bound to the topics above.
const (
	QueueOrderUserEvents = "order-service.user-events"
)
