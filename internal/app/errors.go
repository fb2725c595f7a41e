package service

import "errors"

// Sentinel kinds for pipeline errors.
var (
	ErrPageFailed     = errors.New("ranking page failed after retries")
	ErrPageLimit      = errors.New("ranking crawl reached the page limit")
	ErrCatalogMissing = errors.New("regional catalogs unavailable")
	ErrUnknownJob     = errors.New("unknown job")
	ErrRunInProgress  = errors.New("run already in progress")
	ErrQueueFull      = errors.New("trigger queue full")
	ErrNotStarted     = errors.New("service not started")
)
