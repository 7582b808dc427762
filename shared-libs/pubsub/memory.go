package pubsub

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
)

const memoryQueueBuffer = 1024

var errExchangeClosed = errors.New("memory exchange closed")

// MemoryExchange is an in-process fanout broker intended for tests and local development.
type MemoryExchange struct {
	mu     sync.Mutex
	queues map[string]map[string]chan memoryMessage // topic -> queue -> buffer
	seq    atomic.Uint64

	done      chan struct{}
	closeOnce sync.Once
	requeues  sync.WaitGroup
}

type memoryMessage struct {
	id          string
	key         string
	body        []byte
	redelivered bool
}

// NewMemoryExchange returns an empty exchange.
func NewMemoryExchange() *MemoryExchange {
	return &MemoryExchange{
		queues: make(map[string]map[string]chan memoryMessage),
		done:   make(chan struct{}),
	}
}

// Bind declares queue on topic. Declaring an existing binding is a no-op.
func (x *MemoryExchange) Bind(topic, queue string) {
	x.bind(topic, queue)
}

func (x *MemoryExchange) bind(topic, queue string) chan memoryMessage {
	x.mu.Lock()
	defer x.mu.Unlock()

	bound, ok := x.queues[topic]
	if !ok {
		bound = make(map[string]chan memoryMessage)
		x.queues[topic] = bound
	}
	ch, ok := bound[queue]
	if !ok {
		ch = make(chan memoryMessage, memoryQueueBuffer)
		bound[queue] = ch
	}
	return ch
}

// Depth reports how many messages wait in queue.
func (x *MemoryExchange) Depth(topic, queue string) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.queues[topic][queue])
}

// Publish copies body into every queue bound to topic. Messages for a topic without
// bindings are discarded, as with a fanout exchange.
func (x *MemoryExchange) Publish(ctx context.Context, topic, key string, body []byte) error {
	x.mu.Lock()
	targets := make([]chan memoryMessage, 0, len(x.queues[topic]))
	for _, ch := range x.queues[topic] {
		targets = append(targets, ch)
	}
	x.mu.Unlock()

	id := strconv.FormatUint(x.seq.Add(1), 10)
	for _, ch := range targets {
		msg := memoryMessage{id: id, key: key, body: append([]byte(nil), body...)}
		select {
		case ch <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close implements Publisher. Requeues still waiting for buffer space are abandoned.
func (x *MemoryExchange) Close() error {
	x.closeOnce.Do(func() { close(x.done) })
	x.requeues.Wait()
	return nil
}

// Subscriber returns a consumer of queue, binding it to topic first.
func (x *MemoryExchange) Subscriber(topic, queue string) Subscriber {
	return &memorySubscriber{x: x, ch: x.bind(topic, queue)}
}

type memorySubscriber struct {
	x  *MemoryExchange
	ch chan memoryMessage
}

func (s *memorySubscriber) Receive(ctx context.Context, h Handler) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case msg := <-s.ch:
			h(ctx, s.delivery(msg))
		}
	}
}

func (s *memorySubscriber) delivery(msg memoryMessage) Delivery {
	return NewDelivery(msg.id, msg.key, msg.body, msg.redelivered,
		func(context.Context) error { return nil },
		func(_ context.Context, requeue bool) error {
			if !requeue {
				return nil
			}
			msg.redelivered = true
			select {
			case s.ch <- msg:
				return nil
			case <-s.x.done:
				return errExchangeClosed
			default:
			}
			// Full buffer: wait in the background so the consumer loop can drain it.
			s.x.requeues.Add(1)
			go func() {
				defer s.x.requeues.Done()
				select {
				case s.ch <- msg:
				case <-s.x.done:
				}
			}()
			return nil
		},
	)
}

func (s *memorySubscriber) Close() error { return nil }
