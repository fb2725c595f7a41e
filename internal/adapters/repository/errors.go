package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound     = errors.New("vehicle not found")
	ErrInvalidLimit = errors.New("invalid page size")
	ErrInvalidSort  = errors.New("unsupported sort field")
	ErrMigrate      = errors.New("schema migration failed")
)
