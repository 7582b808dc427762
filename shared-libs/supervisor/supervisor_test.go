package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastPolicy(maxRestarts int) Policy {
	return Policy{InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, MaxRestarts: maxRestarts}
}

func TestRunRestartsAfterPanic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	task := func(ctx context.Context) error {
		if calls.Add(1) < 3 {
			panic("receive loop blew up")
		}
		cancel()
		<-ctx.Done()
		return nil
	}

	if err := Run(ctx, "consumer", task, fastPolicy(0), quietLogger()); err != nil {
		t.Fatalf("expected nil on cancellation, got %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 runs, got %d", got)
	}
}

func TestRunGivesUpAfterMaxRestarts(t *testing.T) {
	wantErr := errors.New("broker misconfigured")
	var calls atomic.Int32
	task := func(context.Context) error {
		calls.Add(1)
		return wantErr
	}

	err := Run(context.Background(), "consumer", task, fastPolicy(2), quietLogger())
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped %v, got %v", wantErr, err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected initial run plus 2 restarts, got %d", got)
	}
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	task := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	done := make(chan error, 1)
	go func() { done <- Run(ctx, "consumer", task, DefaultPolicy(), quietLogger()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("supervisor did not stop after cancellation")
	}
}
