package service

import (
	"time"

	"github.com/okian/mastery/internal/adapters/lock"
	"github.com/okian/mastery/internal/adapters/repository"
	"github.com/okian/mastery/internal/config"
	"github.com/okian/mastery/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the process configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStore uses store instead of opening one from the configuration.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithLocker uses l instead of the configured run lock.
func WithLocker(l lock.Locker) Option {
	return func(s *Service) {
		s.locker = l
	}
}

// WithRankingFetcher replaces the ranking client.
func WithRankingFetcher(f RankingFetcher) Option {
	return func(s *Service) {
		s.ranking = f
	}
}

// WithCatalogFetcher replaces the regional catalog client.
func WithCatalogFetcher(f CatalogFetcher) Option {
	return func(s *Service) {
		s.catalogs = f
	}
}

// WithReferenceFetcher replaces the reference mirror client.
func WithReferenceFetcher(f ReferenceFetcher) Option {
	return func(s *Service) {
		s.references = f
	}
}

// WithoutScheduler starts the service without cron or trigger queue. Runs
// are then only started through Run.
func WithoutScheduler() Option {
	return func(s *Service) {
		s.scheduled = false
	}
}

// WithClock overrides the run timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
