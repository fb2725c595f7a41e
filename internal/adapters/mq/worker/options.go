// Package worker runs bounded groups of idempotent fetch tasks with pacing.
package worker

import (
	"context"
	"time"

	"github.com/okian/mastery/pkg/logger"
)

// Option applies a configuration option to the Runner.
type Option func(*Runner)

// Sleeper pauses between slices. It returns early with ctx.Err() on cancel.
type Sleeper func(ctx context.Context, d time.Duration) error

// WithName sets the runner name used in logs and metrics.
func WithName(name string) Option {
	return func(r *Runner) {
		if name != "" {
			r.name = name
		}
	}
}

// WithLogger sets a custom logger for the runner.
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithSliceSize sets the maximum number of tasks run concurrently.
func WithSliceSize(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.sliceSize = n
		}
	}
}

// WithSleepTime sets the pause between consecutive slices.
func WithSleepTime(d time.Duration) Option {
	return func(r *Runner) {
		if d >= 0 {
			r.sleepTime = d
		}
	}
}

// WithRetryCount sets how many attempts a slice gets before it is dropped.
func WithRetryCount(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.retryCount = n
		}
	}
}

// WithSleeper replaces the pause implementation.
func WithSleeper(s Sleeper) Option {
	return func(r *Runner) {
		if s != nil {
			r.sleep = s
		}
	}
}
