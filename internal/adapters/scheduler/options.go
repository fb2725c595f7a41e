package scheduler

import (
	"time"

	"github.com/okian/mastery/pkg/logger"
)

// Option applies a configuration option to the Driver.
type Option func(*Driver)

// WithSchedule runs job on the five-field cron expression spec.
func WithSchedule(job, spec string) Option {
	return func(d *Driver) {
		d.schedules = append(d.schedules, schedule{job: job, spec: spec})
	}
}

// WithStartupJob enqueues job once when the driver starts.
func WithStartupJob(job string) Option {
	return func(d *Driver) {
		d.startupJobs = append(d.startupJobs, job)
	}
}

// WithLocation sets the time zone cron expressions are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(d *Driver) {
		if loc != nil {
			d.location = loc
		}
	}
}

// WithClock overrides the trigger timestamp source.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		if now != nil {
			d.now = now
		}
	}
}

// WithLogger sets the driver logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}
