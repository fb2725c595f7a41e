// Package scheduler turns cron schedules and on-demand requests into
// triggers and runs them one at a time.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/okian/mastery/internal/adapters/mq/queue"
	"github.com/okian/mastery/internal/domain/model"
	"github.com/okian/mastery/pkg/logger"
)

// JobRunner executes one triggered run. It blocks until the run ends.
type JobRunner interface {
	RunJob(ctx context.Context, t queue.Trigger) error
}

// Entry describes one scheduled job.
type Entry struct {
	Job  string    `json:"job"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
}

type schedule struct {
	job  string
	spec string
	id   cron.EntryID
}

// Driver owns the cron and the single consumer of the trigger queue.
type Driver struct {
	queue    queue.Queue
	runner   JobRunner
	location *time.Location
	now      func() time.Time
	logger   logger.Logger

	schedules   []schedule
	startupJobs []string

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewDriver creates a driver consuming q with runner.
func NewDriver(q queue.Queue, runner JobRunner, opts ...Option) *Driver {
	d := &Driver{
		queue:    q,
		runner:   runner,
		location: time.Local,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = logger.Get().Named("scheduler")
	}
	return d
}

// Start registers the schedules, enqueues the start-up jobs and starts the
// consumer. An invalid cron expression is ErrInvalidSchedule.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return nil
	}

	c := cron.New(cron.WithLocation(d.location))
	for i := range d.schedules {
		s := &d.schedules[i]
		id, err := c.AddFunc(s.spec, func() {
			d.Trigger(ctx, s.job, model.TriggerCron)
		})
		if err != nil {
			return fmt.Errorf("%w: %s %q: %w", ErrInvalidSchedule, s.job, s.spec, err)
		}
		s.id = id
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cron = c
	d.cancel = cancel
	d.done = make(chan struct{})
	d.started = true

	go d.consume(runCtx, d.done)

	for _, job := range d.startupJobs {
		d.Trigger(ctx, job, model.TriggerStartup)
	}

	c.Start()
	d.logger.Info(ctx, "scheduler started",
		logger.Int("schedules", len(d.schedules)),
		logger.Int("startup_jobs", len(d.startupJobs)),
	)
	return nil
}

// Trigger enqueues a run of job. It reports false when the queue is full or
// closed; a job that is already pending is accepted without a second run.
func (d *Driver) Trigger(ctx context.Context, job, source string) bool {
	ok := d.queue.Enqueue(ctx, queue.Trigger{Job: job, Source: source, At: d.now()})
	if !ok {
		d.logger.Warn(ctx, "trigger rejected",
			logger.String("job", job),
			logger.String("source", source),
		)
	}
	return ok
}

// Entries lists the scheduled jobs with their next activation.
func (d *Driver) Entries() []Entry {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Entry, 0, len(d.schedules))
	for _, s := range d.schedules {
		e := Entry{Job: s.job, Spec: s.spec}
		if d.cron != nil {
			e.Next = d.cron.Entry(s.id).Next
		}
		out = append(out, e)
	}
	return out
}

// Stop halts the cron, closes the queue and waits for the running job to
// return or ctx to end.
func (d *Driver) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return nil
	}
	d.started = false
	c, cancel, done := d.cron, d.cancel, d.done
	d.mu.Unlock()

	cronDone := c.Stop()
	_ = d.queue.Close()

	select {
	case <-cronDone.Done():
	case <-ctx.Done():
	}

	select {
	case <-done:
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
	cancel()

	d.logger.Info(ctx, "scheduler stopped")
	return nil
}

func (d *Driver) consume(ctx context.Context, done chan struct{}) {
	defer close(done)

	for t := range d.queue.Dequeue(ctx) {
		log := d.logger.Named(t.Job)
		log.Info(ctx, "run triggered",
			logger.String("source", t.Source),
			logger.Time("at", t.At),
		)
		if err := d.runner.RunJob(ctx, t); err != nil {
			log.Error(ctx, "run failed", logger.String("source", t.Source), logger.Error(err))
		}
	}
}
