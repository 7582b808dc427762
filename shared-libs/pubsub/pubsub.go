// Package pubsub abstracts the at-least-once, fanout-capable message broker.
//
// A topic behaves like a fanout exchange: every queue bound to it receives its own copy of each
// message. Queues are durable and are consumed through a Subscriber. Deliveries must be settled
// with Ack or Nack; a Nack with requeue asks the broker to deliver the message again later.
package pubsub

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrAlreadySettled is returned when a delivery is acked or nacked twice.
var ErrAlreadySettled = errors.New("delivery already settled")

// Publisher writes messages to a topic.
type Publisher interface {
	// Publish sends body to every queue bound to topic. key groups related messages
	// (drivers that partition use it, others record it).
	Publish(ctx context.Context, topic, key string, body []byte) error
	Close() error
}

// Handler processes one delivery and is responsible for settling it.
type Handler func(ctx context.Context, d Delivery)

// Subscriber consumes a single durable queue.
type Subscriber interface {
	// Receive blocks, passing deliveries to h one at a time, until ctx is cancelled (nil is
	// returned) or the underlying connection fails.
	Receive(ctx context.Context, h Handler) error
	Close() error
}

// Delivery is one message handed to a Handler.
type Delivery struct {
	ID          string
	Key         string
	Body        []byte
	Redelivered bool

	settled *atomic.Bool
	ack     func(ctx context.Context) error
	nack    func(ctx context.Context, requeue bool) error
}

// NewDelivery assembles a delivery from driver callbacks.
func NewDelivery(id, key string, body []byte, redelivered bool, ack func(context.Context) error, nack func(context.Context, bool) error) Delivery {
	return Delivery{
		ID:          id,
		Key:         key,
		Body:        body,
		Redelivered: redelivered,
		settled:     new(atomic.Bool),
		ack:         ack,
		nack:        nack,
	}
}

// Ack confirms the message was handled; it will not be delivered again.
func (d Delivery) Ack(ctx context.Context) error {
	if !d.settle() {
		return ErrAlreadySettled
	}
	if d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}

// Nack rejects the message. With requeue the broker redelivers it; without, it is discarded.
func (d Delivery) Nack(ctx context.Context, requeue bool) error {
	if !d.settle() {
		return ErrAlreadySettled
	}
	if d.nack == nil {
		return nil
	}
	return d.nack(ctx, requeue)
}

func (d Delivery) settle() bool {
	if d.settled == nil {
		return true
	}
	return d.settled.CompareAndSwap(false, true)
}
