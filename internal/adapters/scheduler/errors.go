package scheduler

import "errors"

// ErrInvalidSchedule reports a cron expression that cannot be parsed.
var ErrInvalidSchedule = errors.New("invalid schedule")
