package worker

import "errors"

// ErrSliceFailed wraps the last task error of a slice whose retries ran out.
var ErrSliceFailed = errors.New("slice failed")
