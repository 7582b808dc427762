// Package supervisor keeps long-running background tasks alive.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var restartsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "supervisor_task_restarts_total",
		Help: "Restarts of supervised background tasks.",
	},
	[]string{"task"},
)

// Task is a long-running unit of work. It should block until ctx is cancelled.
type Task func(ctx context.Context) error

// Policy controls restart behaviour.
type Policy struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// MaxRestarts stops supervision after that many restarts. Zero means unlimited.
	MaxRestarts int
}

// DefaultPolicy restarts forever with backoff between 1s and 30s.
func DefaultPolicy() Policy {
	return Policy{InitialBackoff: time.Second, MaxBackoff: 30 * time.Second}
}

// Run executes task until ctx is cancelled, restarting it whenever it returns or panics.
// It returns nil on cancellation and an error only once MaxRestarts is exhausted.
func Run(ctx context.Context, name string, task Task, policy Policy, logger *slog.Logger) error {
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = time.Second
	}
	if policy.MaxBackoff < policy.InitialBackoff {
		policy.MaxBackoff = policy.InitialBackoff
	}

	backoff := policy.InitialBackoff
	restarts := 0
	for {
		started := time.Now()
		err := runSafely(ctx, task)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = fmt.Errorf("task exited without error")
		}

		if policy.MaxRestarts > 0 && restarts >= policy.MaxRestarts {
			return fmt.Errorf("%s: giving up after %d restarts: %w", name, restarts, err)
		}
		restarts++
		restartsTotal.WithLabelValues(name).Inc()

		// A run that stayed up longer than the max backoff counts as healthy.
		if time.Since(started) > policy.MaxBackoff {
			backoff = policy.InitialBackoff
		}

		logger.Error("supervised task stopped, restarting",
			slog.String("task", name),
			slog.Int("restart", restarts),
			slog.Duration("backoff", backoff),
			slog.Any("error", err),
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		backoff *= 2
		if backoff > policy.MaxBackoff {
			backoff = policy.MaxBackoff
		}
	}
}

func runSafely(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return task(ctx)
}
