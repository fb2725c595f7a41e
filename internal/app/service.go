// Package service wires the stores, upstream clients and pipelines of the
// mastery harvester and implements the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/mastery/internal/adapters/lock"
	"github.com/okian/mastery/internal/adapters/mq/queue"
	"github.com/okian/mastery/internal/adapters/mq/worker"
	"github.com/okian/mastery/internal/adapters/repository"
	"github.com/okian/mastery/internal/adapters/scheduler"
	"github.com/okian/mastery/internal/adapters/upstream"
	"github.com/okian/mastery/internal/config"
	"github.com/okian/mastery/internal/domain/model"
	"github.com/okian/mastery/pkg/logger"
	"github.com/okian/mastery/pkg/metrics"
)

// Stage names.
const (
	StageFetch     = "fetch"
	StageCrawl     = "crawl"
	StageReconcile = "reconcile"
	StageReference = "reference"
	StageRepair    = "repair"
)

// Service implements the API dependencies for the mastery harvester.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     repository.Store
	locker    lock.Locker
	queue     *queue.InMemoryQueue
	driver    *scheduler.Driver
	pipelines map[string]*Pipeline

	// Upstream sources
	ranking    RankingFetcher
	catalogs   CatalogFetcher
	references ReferenceFetcher

	// Resources owned by the service
	redis *redis.Client

	// Configuration
	cfg       *config.Config
	scheduled bool
	now       func() time.Time

	// State
	started  bool
	lastRuns map[string]RunResult

	// Logging
	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		scheduled: true,
		now:       time.Now,
		lastRuns:  make(map[string]RunResult),
		logger:    nil, // Will be replaced when service starts
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.cfg == nil {
		s.cfg = config.New()
	}

	return s
}

// Start initializes the stores, clients and pipelines and, unless disabled,
// the scheduler.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	// Initialize logger if not already set
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting mastery service...")

	if err := s.openStore(ctx); err != nil {
		return err
	}
	if err := s.openLocker(ctx); err != nil {
		_ = s.store.Close()
		return err
	}
	s.buildClients()
	s.buildPipelines()

	if s.scheduled {
		s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.cfg.TriggerQueueSize))
		opts := []scheduler.Option{
			scheduler.WithLogger(s.logger.Named("scheduler")),
			scheduler.WithSchedule(model.JobMastery, s.cfg.MasteryCron),
			scheduler.WithSchedule(model.JobReference, s.cfg.ReferenceCron),
		}
		if s.cfg.RunOnStart {
			opts = append(opts, scheduler.WithStartupJob(model.JobReference))
		}
		s.driver = scheduler.NewDriver(s.queue, s, opts...)
		if err := s.driver.Start(ctx); err != nil {
			s.closeResources()
			return err
		}
	}

	s.started = true
	s.logger.Info(ctx, "mastery service started",
		logger.Bool("scheduled", s.scheduled),
		logger.String("mastery_cron", s.cfg.MasteryCron),
		logger.String("reference_cron", s.cfg.ReferenceCron),
	)

	return nil
}

func (s *Service) openStore(ctx context.Context) error {
	if s.store != nil {
		return nil
	}

	if s.cfg.DatabaseURL == "" {
		s.store = repository.NewMemStore(ctx)
		s.logger.Info(ctx, "using in-memory store")
		return nil
	}

	pool, err := repository.Connect(ctx, s.cfg.DatabaseURL, s.cfg.DatabaseMaxConns)
	if err != nil {
		return err
	}
	if err := repository.Migrate(ctx, pool, s.logger.Named("migrate")); err != nil {
		pool.Close()
		return err
	}
	s.store = repository.NewPGStore(pool, repository.WithPGLogger(s.logger.Named("pgstore")))
	s.logger.Info(ctx, "using postgres store")
	return nil
}

func (s *Service) openLocker(ctx context.Context) error {
	if s.locker != nil {
		return nil
	}

	if s.cfg.RedisAddr == "" {
		s.locker = lock.NewLocalLocker()
		return nil
	}

	client, err := lock.NewRedisClient(ctx, s.cfg.RedisAddr, s.cfg.RedisPassword)
	if err != nil {
		return err
	}
	s.redis = client
	s.locker = lock.NewRedisLocker(client)
	s.logger.Info(ctx, "using redis run lock", logger.String("addr", s.cfg.RedisAddr))
	return nil
}

func (s *Service) buildClients() {
	if s.ranking != nil && s.catalogs != nil && s.references != nil {
		return
	}

	c := upstream.NewClient(
		upstream.WithTimeout(s.cfg.HTTPTimeout()),
		upstream.WithRateLimit(s.cfg.RequestsPerSecond),
		upstream.WithLogger(s.logger.Named("upstream")),
	)
	if s.ranking == nil {
		s.ranking = upstream.NewRankingClient(c, s.cfg.RankingURL, s.cfg.RankingTierFilter)
	}
	if s.catalogs == nil {
		s.catalogs = upstream.NewOfficialClient(c,
			upstream.Region{URL: s.cfg.PrimaryCatalogURL, Language: s.cfg.PrimaryLanguage},
			upstream.Region{URL: s.cfg.SecondaryCatalogURL, Language: s.cfg.SecondaryLanguage},
			s.cfg.CatalogRetryCount,
			s.cfg.PageRetryBackoff(),
		)
	}
	if s.references == nil {
		s.references = upstream.NewReferenceClient(c, s.cfg.ReferenceListURL, s.cfg.ReferenceVehicleURL)
	}
}

func (s *Service) buildPipelines() {
	crawler := NewCrawler(s.ranking, s.store, CrawlerConfig{
		PageSize:    s.cfg.RankingPageSize,
		MaxPages:    s.cfg.MaxPages,
		PageRetries: s.cfg.PageRetryCount,
		PageBackoff: s.cfg.PageRetryBackoff(),
		Now:         s.now,
	}, s.logger.Named("crawler"))
	reconciler := NewReconciler(s.catalogs, s.store, s.logger.Named("reconcile"))
	repairer := NewRepairer(s.store, s.store, s.logger.Named("repair"))
	runner := worker.NewRunner(
		worker.WithName(StageReference),
		worker.WithLogger(s.logger.Named("runner")),
		worker.WithSliceSize(s.cfg.BatchSliceSize),
		worker.WithSleepTime(s.cfg.BatchSleep()),
		worker.WithRetryCount(s.cfg.BatchRetryCount),
	)
	syncer := NewReferenceSyncer(s.references, s.store, runner, s.cfg.ReferenceVersion, s.logger.Named("reference"))

	crawl := Stage{Name: StageCrawl, Run: func(ctx context.Context, rc model.RunContext) error {
		_, err := crawler.CrawlAll(ctx, rc)
		return err
	}}
	reference := Stage{Name: StageReference, Run: func(ctx context.Context, rc model.RunContext) error {
		_, err := syncer.Sync(ctx, rc)
		return err
	}}
	repair := Stage{Name: StageRepair, Run: func(ctx context.Context, _ model.RunContext) error {
		_, err := repairer.Repair(ctx)
		return err
	}}

	s.pipelines = map[string]*Pipeline{
		model.JobMastery: NewPipeline(model.JobMastery, s.logger.Named(model.JobMastery),
			Stage{Name: StageFetch, Run: reconciler.Fetch},
			// Reconcile precedes the crawl; ranking rows then update official records.
			Stage{Name: StageReconcile, Requires: StageFetch, Run: func(ctx context.Context, rc model.RunContext) error {
				_, err := reconciler.Reconcile(ctx, rc)
				return err
			}},
			crawl,
			reference,
			repair,
		),
		model.JobReference: NewPipeline(model.JobReference, s.logger.Named(model.JobReference),
			reference,
			repair,
		),
	}
}

// Stop shuts down the scheduler and releases the store and lock backend.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	driver := s.driver
	s.mu.Unlock()

	s.logger.Info(ctx, "stopping mastery service...")

	var err error
	if driver != nil {
		err = driver.Stop(ctx)
	}

	s.mu.Lock()
	s.closeResources()
	s.mu.Unlock()

	s.logger.Info(ctx, "mastery service stopped")
	return err
}

func (s *Service) closeResources() {
	if s.store != nil {
		_ = s.store.Close()
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
}

// RunJob implements scheduler.JobRunner.
func (s *Service) RunJob(ctx context.Context, t queue.Trigger) error {
	res, err := s.Run(ctx, t.Job, t.Source)
	if err != nil {
		return err
	}
	if res.Status() != StatusOK {
		return fmt.Errorf("%s run %s finished with failed stages", t.Job, res.RunID)
	}
	return nil
}

// Run executes one run of job now, under the job's lock. A job that is
// already running elsewhere returns ErrRunInProgress.
func (s *Service) Run(ctx context.Context, job, trigger string) (RunResult, error) {
	s.mu.RLock()
	pipelines, locker := s.pipelines, s.locker
	s.mu.RUnlock()

	if pipelines == nil {
		return RunResult{}, ErrNotStarted
	}
	p, ok := pipelines[job]
	if !ok {
		return RunResult{}, fmt.Errorf("%w: %q", ErrUnknownJob, job)
	}

	lease, err := locker.TryAcquire(ctx, "run:"+job, s.cfg.LockTTL())
	if errors.Is(err, lock.ErrNotAcquired) {
		metrics.RecordRunSkipped(job)
		s.logger.Warn(ctx, "run skipped, lock held",
			logger.String("job", job),
			logger.String("trigger", trigger),
		)
		return RunResult{}, ErrRunInProgress
	}
	if err != nil {
		return RunResult{}, err
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn(ctx, "run lock release failed", logger.String("job", job), logger.Error(err))
		}
	}()

	rc := model.NewRunContext(job, trigger, s.now(), s.cfg.SnapshotBucket())
	s.logger.Info(ctx, "run started",
		logger.String("run_id", rc.RunID.String()),
		logger.String("job", job),
		logger.String("trigger", trigger),
		logger.Time("bucket", rc.Bucket),
	)

	res := p.Run(ctx, rc)
	metrics.RecordRun(job, res.Status(), res.Duration)

	s.mu.Lock()
	s.lastRuns[job] = res
	s.mu.Unlock()

	s.logger.Info(ctx, "run finished",
		logger.String("run_id", rc.RunID.String()),
		logger.String("job", job),
		logger.String("status", res.Status()),
		logger.Duration("duration", res.Duration),
	)
	return res, nil
}

// Trigger asks the scheduler for a run of job.
func (s *Service) Trigger(ctx context.Context, job, source string) error {
	if job != model.JobMastery && job != model.JobReference {
		return fmt.Errorf("%w: %q", ErrUnknownJob, job)
	}

	s.mu.RLock()
	driver := s.driver
	s.mu.RUnlock()

	if driver == nil {
		return ErrNotStarted
	}
	if !driver.Trigger(ctx, job, source) {
		return ErrQueueFull
	}
	return nil
}

// ListVehicles returns one page of the catalog and the total match count.
func (s *Service) ListVehicles(ctx context.Context, q repository.ListQuery) ([]model.VehicleRecord, int, error) {
	return s.store.List(ctx, q)
}

// History returns the snapshots of one vehicle.
func (s *Service) History(ctx context.Context, id model.VehicleID) ([]model.HistorySnapshot, error) {
	return s.store.ListHistory(ctx, id)
}

// Summary returns the catalog filter options and counts.
func (s *Service) Summary(ctx context.Context) (model.CatalogSummary, error) {
	return s.store.Summary(ctx)
}

// LastRun returns the most recent result of job, if any.
func (s *Service) LastRun(job string) (RunResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.lastRuns[job]
	return r, ok
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":   s.started,
		"scheduled": s.scheduled,
	}

	if s.started {
		if n, err := s.store.Count(ctx); err == nil {
			stats["vehicles"] = n
		}
		if s.queue != nil {
			stats["queueLength"] = s.queue.Len(ctx)
		}
		if s.driver != nil {
			stats["schedules"] = s.driver.Entries()
		}
	}

	runs := make(map[string]interface{}, len(s.lastRuns))
	for job, r := range s.lastRuns {
		runs[job] = map[string]interface{}{
			"run_id":     r.RunID.String(),
			"trigger":    r.Trigger,
			"started_at": r.StartedAt,
			"duration":   r.Duration.String(),
			"status":     r.Status(),
			"stages":     r.Stages,
		}
	}
	stats["lastRuns"] = runs

	return stats
}
