package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/mastery/internal/adapters/repository"
	"github.com/okian/mastery/internal/domain/catalog"
	"github.com/okian/mastery/internal/domain/model"
	"github.com/okian/mastery/pkg/logger"
)

// CatalogFetcher returns the primary and secondary regional catalogs.
type CatalogFetcher interface {
	FetchCatalogs(ctx context.Context) (primary, secondary map[model.VehicleID]model.RegionalEntry, err error)
}

// Reconciler fetches the regional catalogs and inserts the vehicles the
// canonical catalog does not know yet. Fetch and Reconcile are separate
// stages; Reconcile uses what the last Fetch of the same run returned.
type Reconciler struct {
	fetcher CatalogFetcher
	catalog repository.CatalogStore
	logger  logger.Logger

	mu        sync.Mutex
	runID     string
	primary   map[model.VehicleID]model.RegionalEntry
	secondary map[model.VehicleID]model.RegionalEntry
}

// NewReconciler creates a reconciler.
func NewReconciler(fetcher CatalogFetcher, store repository.CatalogStore, log logger.Logger) *Reconciler {
	return &Reconciler{fetcher: fetcher, catalog: store, logger: log}
}

// Fetch downloads both catalogs for the run.
func (r *Reconciler) Fetch(ctx context.Context, rc model.RunContext) error {
	primary, secondary, err := r.fetcher.FetchCatalogs(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.runID = ""
	r.primary, r.secondary = nil, nil
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCatalogMissing, err)
	}
	r.runID = rc.RunID.String()
	r.primary, r.secondary = primary, secondary

	r.logger.Info(ctx, "regional catalogs fetched",
		logger.String("run_id", r.runID),
		logger.Int("primary", len(primary)),
		logger.Int("secondary", len(secondary)),
	)
	return nil
}

// Reconcile merges the fetched catalogs and inserts the result. Existing
// records are left untouched.
func (r *Reconciler) Reconcile(ctx context.Context, rc model.RunContext) (repository.InsertResult, error) {
	r.mu.Lock()
	if r.runID != rc.RunID.String() {
		r.mu.Unlock()
		return repository.InsertResult{}, ErrCatalogMissing
	}
	primary, secondary := r.primary, r.secondary
	r.primary, r.secondary, r.runID = nil, nil, ""
	r.mu.Unlock()

	merged := catalog.Merge(primary, secondary, rc.StartedAt)
	res, err := r.catalog.InsertMany(ctx, merged)
	if err != nil {
		return res, err
	}

	r.logger.Info(ctx, "catalog reconciled",
		logger.String("run_id", rc.RunID.String()),
		logger.Int("merged", len(merged)),
		logger.Int("inserted", res.Inserted),
		logger.Int("existing", len(res.Conflicts)),
	)
	return res, nil
}
