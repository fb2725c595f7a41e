package lock

import "errors"

// Sentinel kinds for lock errors.
var (
	ErrNotAcquired = errors.New("lock held by another run")
	ErrBackend     = errors.New("lock backend error")
)
