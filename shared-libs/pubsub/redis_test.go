package pubsub

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testQueue = "order-service.user-events"

func newTestRedis(t *testing.T) (*redis.Client, RedisConfig) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := RedisConfig{
		Addr:         mr.Addr(),
		Block:        20 * time.Millisecond,
		ClaimMinIdle: 30 * time.Millisecond,
		BatchSize:    8,
		MaxLen:       1000,
	}
	client := newRedisClient(cfg)
	t.Cleanup(func() { _ = client.Close() })
	return client, cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// receiveRedis runs a subscriber until handle reports it is done, then returns Receive's result.
func receiveRedis(t *testing.T, cfg RedisConfig, handle func(ctx context.Context, d Delivery) bool) {
	t.Helper()
	sub := NewRedisSubscriber(newRedisClient(cfg), cfg, TopicUserEvents, testQueue, "c1", quietLogger())
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- sub.Receive(ctx, func(ctx context.Context, d Delivery) {
			if handle(ctx, d) {
				cancel()
			}
		})
	}()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Receive returned error: %v", err)
		}
	case <-time.After(6 * time.Second):
		t.Fatalf("Receive did not stop")
	}
	if ctx.Err() == context.DeadlineExceeded {
		t.Fatalf("timed out waiting for deliveries")
	}
}

func declareGroup(t *testing.T, client *redis.Client) {
	t.Helper()
	if err := client.XGroupCreateMkStream(context.Background(), TopicUserEvents, testQueue, "$").Err(); err != nil {
		t.Fatalf("create group: %v", err)
	}
}

func pendingCount(t *testing.T, client *redis.Client) int64 {
	t.Helper()
	pending, err := client.XPending(context.Background(), TopicUserEvents, testQueue).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	return pending.Count
}

func TestRedisPublisherAppendsKeyAndBody(t *testing.T) {
	client, cfg := newTestRedis(t)
	pub := NewRedisPublisher(client, cfg)

	if err := pub.Publish(context.Background(), TopicUserEvents, "u1", []byte(`{"userId":"u1"}`)); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	entries, err := client.XRange(context.Background(), TopicUserEvents, "-", "+").Result()
	if err != nil {
		t.Fatalf("xrange: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	if fieldString(entries[0].Values, redisKeyField) != "u1" || fieldString(entries[0].Values, redisBodyField) != `{"userId":"u1"}` {
		t.Fatalf("unexpected entry %+v", entries[0].Values)
	}
}

func TestRedisSubscriberAckClearsPending(t *testing.T) {
	client, cfg := newTestRedis(t)
	// An existing group must not stop the subscriber from starting.
	declareGroup(t, client)

	if err := NewRedisPublisher(client, cfg).Publish(context.Background(), TopicUserEvents, "u1", []byte("m1")); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	var got []Delivery
	receiveRedis(t, cfg, func(ctx context.Context, d Delivery) bool {
		if err := d.Ack(ctx); err != nil {
			t.Errorf("Ack returned error: %v", err)
		}
		got = append(got, d)
		return true
	})

	if len(got) != 1 || string(got[0].Body) != "m1" || got[0].Key != "u1" || got[0].Redelivered {
		t.Fatalf("unexpected deliveries %+v", got)
	}
	if n := pendingCount(t, client); n != 0 {
		t.Fatalf("expected no pending entries, got %d", n)
	}
}

func TestRedisSubscriberRequeueRedelivers(t *testing.T) {
	client, cfg := newTestRedis(t)
	declareGroup(t, client)

	if err := NewRedisPublisher(client, cfg).Publish(context.Background(), TopicUserEvents, "u1", []byte("m1")); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	var got []Delivery
	receiveRedis(t, cfg, func(ctx context.Context, d Delivery) bool {
		got = append(got, d)
		if !d.Redelivered {
			if err := d.Nack(ctx, true); err != nil {
				t.Errorf("Nack returned error: %v", err)
			}
			return false
		}
		if err := d.Ack(ctx); err != nil {
			t.Errorf("Ack returned error: %v", err)
		}
		return true
	})

	if len(got) != 2 {
		t.Fatalf("expected a delivery and a redelivery, got %d", len(got))
	}
	if got[0].Redelivered || !got[1].Redelivered || got[0].ID != got[1].ID {
		t.Fatalf("unexpected delivery sequence %+v", got)
	}
	if string(got[1].Body) != "m1" {
		t.Fatalf("redelivered body changed: %s", got[1].Body)
	}
	if n := pendingCount(t, client); n != 0 {
		t.Fatalf("expected no pending entries, got %d", n)
	}
}

func TestRedisSubscriberNackWithoutRequeueDiscards(t *testing.T) {
	client, cfg := newTestRedis(t)
	declareGroup(t, client)

	if err := NewRedisPublisher(client, cfg).Publish(context.Background(), TopicUserEvents, "u1", []byte("bad")); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	receiveRedis(t, cfg, func(ctx context.Context, d Delivery) bool {
		if err := d.Nack(ctx, false); err != nil {
			t.Errorf("Nack returned error: %v", err)
		}
		return true
	})

	if n := pendingCount(t, client); n != 0 {
		t.Fatalf("expected discarded entry to leave pending list, got %d", n)
	}
}

func TestRedisSubscriberDeclaresGroup(t *testing.T) {
	client, cfg := newTestRedis(t)
	sub := NewRedisSubscriber(newRedisClient(cfg), cfg, TopicUserEvents, testQueue, "c1", quietLogger()).(*redisSubscriber)
	defer sub.Close()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := sub.declare(ctx); err != nil {
			t.Fatalf("declare %d returned error: %v", i, err)
		}
	}

	// Reading through the group fails with NOGROUP unless declare created it.
	_, err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    testQueue,
		Consumer: "c2",
		Streams:  []string{TopicUserEvents, ">"},
		Count:    1,
		Block:    -1,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		t.Fatalf("group not usable: %v", err)
	}
}

func TestNewPublisherToleratesUnreachableRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := &Config{Driver: DriverRedis, Redis: RedisConfig{Addr: addr}}
	pub, err := NewPublisher(context.Background(), cfg, quietLogger())
	if err != nil {
		t.Fatalf("expected publisher despite unreachable broker, got %v", err)
	}
	defer pub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pub.Publish(ctx, TopicUserEvents, "u1", []byte("x")); err == nil {
		t.Fatalf("expected publish to fail while broker is down")
	}
}
