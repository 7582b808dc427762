package config

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisSource(t *testing.T) (*miniredis.Miniredis, *RedisSplitSource) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisSplitSource(client, "")
}

func TestRedisSplitSourceMissingKey(t *testing.T) {
	_, source := newRedisSource(t)

	if _, err := source.SplitPercent(context.Background()); err == nil {
		t.Fatalf("expected error for unset key")
	}

	provider := NewProvider(source, quietLogger())
	if got := provider.CurrentSplitPercent(context.Background()); got != DefaultSplitPercent {
		t.Fatalf("expected default %d, got %d", DefaultSplitPercent, got)
	}
}

func TestRedisSplitSourceReadWrite(t *testing.T) {
	mr, source := newRedisSource(t)
	ctx := context.Background()

	if err := source.SetSplitPercent(ctx, 70); err != nil {
		t.Fatalf("SetSplitPercent returned error: %v", err)
	}
	if raw, _ := mr.Get(DefaultSplitKey); raw != "70" {
		t.Fatalf("expected stored value 70, got %q", raw)
	}
	if got, err := source.SplitPercent(ctx); err != nil || got != 70 {
		t.Fatalf("expected 70, got %d (%v)", got, err)
	}

	// Operators may also change the key directly.
	if err := mr.Set(DefaultSplitKey, "15"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, err := source.SplitPercent(ctx); err != nil || got != 15 {
		t.Fatalf("expected 15, got %d (%v)", got, err)
	}

	if err := source.SetSplitPercent(ctx, 101); !errors.Is(err, ErrSplitOutOfRange) {
		t.Fatalf("expected ErrSplitOutOfRange, got %v", err)
	}
}

func TestRedisSplitSourceRejectsGarbage(t *testing.T) {
	mr, source := newRedisSource(t)
	if err := mr.Set(DefaultSplitKey, "seventy"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := source.SplitPercent(context.Background()); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestRedisSplitSourceUnreachable(t *testing.T) {
	mr, source := newRedisSource(t)
	if err := source.SetSplitPercent(context.Background(), 30); err != nil {
		t.Fatalf("SetSplitPercent returned error: %v", err)
	}

	provider := NewProvider(source, quietLogger())
	if got := provider.CurrentSplitPercent(context.Background()); got != 30 {
		t.Fatalf("expected 30, got %d", got)
	}

	mr.Close()
	if got := provider.CurrentSplitPercent(context.Background()); got != 30 {
		t.Fatalf("expected last known 30 after outage, got %d", got)
	}
}
