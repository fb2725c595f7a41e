package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/okian/mastery/internal/adapters/repository"
	"github.com/okian/mastery/internal/adapters/upstream"
	"github.com/okian/mastery/internal/domain/model"
	"github.com/okian/mastery/pkg/logger"
	"github.com/okian/mastery/pkg/metrics"
)

// RankingFetcher returns one page of a tier's ranking.
type RankingFetcher interface {
	FetchPage(ctx context.Context, tier model.MasteryTier, page, size int) (upstream.RankingPage, error)
}

// CrawlerConfig bounds a ranking crawl.
type CrawlerConfig struct {
	PageSize    int
	MaxPages    int
	PageRetries int
	PageBackoff time.Duration
	RowWorkers  int
	Now         func() time.Time
}

// CrawlResult summarizes the crawl of one tier.
type CrawlResult struct {
	Tier      model.MasteryTier `json:"tier"`
	Pages     int               `json:"pages"`
	Rows      int               `json:"rows"`
	Inserted  int               `json:"inserted"`
	Updated   int               `json:"updated"`
	RowErrors int               `json:"row_errors"`
}

// Crawler pages through the ranking of each tier and writes the catalog and
// history stores.
type Crawler struct {
	ranking   RankingFetcher
	catalog   repository.CatalogStore
	history   repository.HistoryStore
	reference repository.ReferenceStore
	cfg       CrawlerConfig
	logger    logger.Logger
}

// NewCrawler creates a crawler. Zero config values fall back to defaults.
func NewCrawler(ranking RankingFetcher, store repository.Store, cfg CrawlerConfig, log logger.Logger) *Crawler {
	if cfg.PageSize < 1 {
		cfg.PageSize = 40
	}
	if cfg.MaxPages < 1 {
		cfg.MaxPages = 500
	}
	if cfg.PageRetries < 1 {
		cfg.PageRetries = 1
	}
	if cfg.RowWorkers < 1 {
		cfg.RowWorkers = cfg.PageSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Crawler{
		ranking:   ranking,
		catalog:   store,
		history:   store,
		reference: store,
		cfg:       cfg,
		logger:    log,
	}
}

// CrawlAll crawls every tier concurrently. A failing tier does not stop the
// others; their errors are joined.
func (c *Crawler) CrawlAll(ctx context.Context, rc model.RunContext) ([]CrawlResult, error) {
	tiers := model.Tiers()
	results := make([]CrawlResult, len(tiers))
	errs := make([]error, len(tiers))

	var g errgroup.Group
	for i, tier := range tiers {
		g.Go(func() error {
			results[i], errs[i] = c.Crawl(ctx, rc, tier)
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}

// Crawl walks the pages of tier in order until an empty page. Rows of a page
// are processed concurrently. A page that keeps failing ends the tier with
// ErrPageFailed; passing MaxPages ends it with ErrPageLimit.
func (c *Crawler) Crawl(ctx context.Context, rc model.RunContext, tier model.MasteryTier) (CrawlResult, error) {
	res := CrawlResult{Tier: tier}
	label := strconv.Itoa(int(tier))
	log := c.logger.Named("tier_" + label)

	defer func() { metrics.UpdateCrawlPages(label, res.Pages) }()

	for page := 1; ; page++ {
		if page > c.cfg.MaxPages {
			log.Error(ctx, "page limit reached", logger.Int("max_pages", c.cfg.MaxPages))
			return res, fmt.Errorf("%w: tier %d after %d pages", ErrPageLimit, tier, c.cfg.MaxPages)
		}

		p, err := c.fetchPage(ctx, tier, page)
		if err != nil {
			metrics.RecordPageFailure(label)
			return res, fmt.Errorf("%w: tier %d page %d: %w", ErrPageFailed, tier, page, err)
		}
		metrics.RecordPageFetched(label)

		if len(p.Rows) == 0 {
			log.Info(ctx, "tier crawled",
				logger.Int("pages", res.Pages),
				logger.Int("rows", res.Rows),
				logger.Int("inserted", res.Inserted),
				logger.Int("row_errors", res.RowErrors),
			)
			return res, nil
		}

		res.Pages++
		res.Rows += len(p.Rows)
		c.processPage(ctx, rc, tier, page, p.Rows, &res, log)
		metrics.RecordRowsProcessed(label, len(p.Rows))
	}
}

func (c *Crawler) fetchPage(ctx context.Context, tier model.MasteryTier, page int) (upstream.RankingPage, error) {
	var out upstream.RankingPage
	op := func() error {
		p, err := c.ranking.FetchPage(ctx, tier, page, c.cfg.PageSize)
		if err != nil {
			if errors.Is(err, upstream.ErrInvalidTier) {
				return backoff.Permanent(err)
			}
			return err
		}
		out = p
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.cfg.PageBackoff), uint64(c.cfg.PageRetries-1)), //nolint:gosec // PageRetries >= 1
		ctx,
	)
	notify := func(err error, next time.Duration) {
		c.logger.Warn(ctx, "ranking page failed, retrying",
			logger.Int("tier", int(tier)),
			logger.Int("page", page),
			logger.Duration("backoff", next),
			logger.Error(err),
		)
	}

	err := backoff.RetryNotify(op, policy, notify)
	return out, err
}

func (c *Crawler) processPage(ctx context.Context, rc model.RunContext, tier model.MasteryTier, page int, rows []model.RankingRow, res *CrawlResult, log logger.Logger) {
	var mu sync.Mutex
	label := strconv.Itoa(int(tier))

	rowErr := func(row model.RankingRow, op string, err error) {
		metrics.RecordRowError(label)
		log.Error(ctx, "row write failed",
			logger.Int("page", page),
			logger.Int64("vehicle_id", int64(row.VehicleID)),
			logger.String("op", op),
			logger.Error(err),
		)
		mu.Lock()
		res.RowErrors++
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(c.cfg.RowWorkers)
	for idx, row := range rows {
		rank := (page-1)*c.cfg.PageSize + idx + 1

		g.Go(func() error {
			inserted, err := c.writeVehicle(ctx, rc, tier, row, rank)
			if err != nil {
				rowErr(row, "catalog", err)
				return nil
			}
			mu.Lock()
			if inserted {
				res.Inserted++
			} else {
				res.Updated++
			}
			mu.Unlock()
			return nil
		})

		g.Go(func() error {
			snap := model.NewHistorySnapshot(row.VehicleID, rc.Bucket, tier, row.Mastery)
			if err := c.history.UpsertHistory(ctx, snap); err != nil {
				rowErr(row, "history", err)
				return nil
			}
			return nil
		})
	}
	_ = g.Wait()
}

// writeVehicle updates the catalog record of row, inserting it first if it
// is new. It reports whether this call inserted the record.
func (c *Crawler) writeVehicle(ctx context.Context, rc model.RunContext, tier model.MasteryTier, row model.RankingRow, rank int) (bool, error) {
	patch := model.VehiclePatch{
		Name:       model.Ptr(row.Name),
		TankIcon:   model.Ptr(row.Icon),
		UpdateDate: model.Ptr(rc.Bucket),
	}
	patch.SetMastery(tier, row.Mastery)

	var known bool
	if tier == model.TierTop {
		rec, err := c.catalog.FindByID(ctx, row.VehicleID)
		switch {
		case err == nil:
			known = true
			patch.Rank = model.Ptr(rank)
			if rec.Rank != nil {
				patch.RankDelta = model.Ptr(*rec.Rank - rank)
			}
		case errors.Is(err, repository.ErrNotFound):
		default:
			return false, err
		}
	} else {
		ok, err := c.catalog.Exists(ctx, row.VehicleID)
		if err != nil {
			return false, err
		}
		known = ok
	}

	if known {
		err := c.catalog.UpdateByID(ctx, row.VehicleID, patch)
		if !errors.Is(err, repository.ErrNotFound) {
			return false, err
		}
	}

	inserted, err := c.insertVehicle(ctx, rc, tier, row, rank)
	if err != nil || inserted {
		return inserted, err
	}

	// Another tier inserted the vehicle first.
	if tier == model.TierTop {
		patch.Rank = model.Ptr(rank)
	}
	return false, c.catalog.UpdateByID(ctx, row.VehicleID, patch)
}

func (c *Crawler) insertVehicle(ctx context.Context, rc model.RunContext, tier model.MasteryTier, row model.RankingRow, rank int) (bool, error) {
	rec := model.VehicleRecord{ID: row.VehicleID}
	ref, err := c.reference.FindReference(ctx, row.VehicleID)
	switch {
	case err == nil:
		rec = ref.Seed()
	case errors.Is(err, repository.ErrNotFound):
		c.logger.Warn(ctx, "no reference entry for new vehicle",
			logger.Int64("vehicle_id", int64(row.VehicleID)),
		)
	default:
		return false, err
	}

	rec.Premium = true
	rec.CollectorVehicle = false
	rec.Name = row.Name
	rec.TankIcon = row.Icon
	rec.SetMastery(tier, row.Mastery)
	rec.InsertDate = c.cfg.Now().UTC()
	rec.UpdateDate = rc.Bucket
	if tier == model.TierTop {
		rec.Rank = model.Ptr(rank)
	}

	res, err := c.catalog.InsertMany(ctx, []model.VehicleRecord{rec})
	if err != nil {
		return false, err
	}
	return res.Inserted == 1, nil
}
