package repository

import (
	"time"

	"github.com/okian/mastery/pkg/logger"
)

// Option applies a configuration option to the MemStore.
type Option func(*MemStore)

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *MemStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

// PGOption applies a configuration option to the PGStore.
type PGOption func(*PGStore)

// WithPGLogger sets the logger of the Postgres store.
func WithPGLogger(l logger.Logger) PGOption {
	return func(s *PGStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithInsertChunkSize bounds how many rows go into one batch.
func WithInsertChunkSize(n int) PGOption {
	return func(s *PGStore) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}
