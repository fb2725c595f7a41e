package worker

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/mastery/pkg/logger"
	"github.com/okian/mastery/pkg/metrics"
)

// Default runner configuration constants.
const (
	defaultSliceSize  = 10
	defaultSleepTime  = time.Second
	defaultRetryCount = 3
)

// Task is a zero-argument unit of work. Tasks may be repeated when their
// slice is retried, so they must be safe to run more than once.
type Task[T any] func(ctx context.Context) (T, error)

// Runner splits tasks into slices, runs each slice concurrently, retries a
// failed slice as a whole and pauses between slices.
type Runner struct {
	name       string
	sliceSize  int
	sleepTime  time.Duration
	retryCount int
	sleep      Sleeper
	logger     logger.Logger
}

// NewRunner creates a Runner with configuration options.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		name:       "batch",
		sliceSize:  defaultSliceSize,
		sleepTime:  defaultSleepTime,
		retryCount: defaultRetryCount,
		sleep:      sleepCtx,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.logger == nil {
		r.logger = logger.Get().Named("runner").Named(r.name)
	}

	return r
}

// Name returns the runner name.
func (r *Runner) Name() string { return r.name }

// Slices returns how many slices n tasks are split into.
func (r *Runner) Slices(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + r.sliceSize - 1) / r.sliceSize
}

// Run executes tasks slice by slice and returns the results of every slice
// that succeeded, in input order. A slice that still fails after the retry
// budget is logged and contributes nothing. The only error returned is the
// context error when ctx is canceled between slices; results gathered so far
// are returned with it.
func Run[T any](ctx context.Context, r *Runner, tasks []Task[T]) ([]T, error) {
	results := make([]T, 0, len(tasks))
	slices := r.Slices(len(tasks))

	for i := 0; i < slices; i++ {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		lo := i * r.sliceSize
		hi := min(lo+r.sliceSize, len(tasks))

		out, err := runSlice(ctx, r, tasks[lo:hi])
		if err != nil {
			metrics.RecordBatchSliceDropped(r.name)
			metrics.RecordErrorByComponent("runner", "slice_dropped")
			r.logger.Error(ctx, "slice dropped after retries",
				logger.Int("slice", i),
				logger.Int("tasks", hi-lo),
				logger.Int("attempts", r.retryCount),
				logger.Error(err),
			)
		} else {
			results = append(results, out...)
		}

		if i < slices-1 {
			if err := r.sleep(ctx, r.sleepTime); err != nil {
				return results, err
			}
		}
	}

	return results, nil
}

// runSlice runs one slice until it succeeds or the attempts are used up.
func runSlice[T any](ctx context.Context, r *Runner, tasks []Task[T]) ([]T, error) {
	var lastErr error
	for attempt := 1; attempt <= r.retryCount; attempt++ {
		start := time.Now()
		out, err := runOnce(ctx, tasks)
		metrics.RecordBatchSlice(r.name)
		metrics.RecordBatchSliceLatency(float64(time.Since(start).Milliseconds()))
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt < r.retryCount {
			metrics.RecordBatchRetry(r.name)
			r.logger.Warn(ctx, "slice failed, retrying",
				logger.Int("attempt", attempt),
				logger.Error(err),
			)
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrSliceFailed, lastErr)
}

func runOnce[T any](ctx context.Context, tasks []Task[T]) ([]T, error) {
	out := make([]T, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	for i, task := range tasks {
		g.Go(func() error {
			v, err := task(gctx)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
