package service

import (
	"context"
	"errors"

	"github.com/okian/mastery/internal/adapters/repository"
	"github.com/okian/mastery/internal/domain/model"
	"github.com/okian/mastery/pkg/logger"
	"github.com/okian/mastery/pkg/metrics"
)

// RepairResult summarizes one repair pass.
type RepairResult struct {
	Scanned  int `json:"scanned"`
	Repaired int `json:"repaired"`
	Missing  int `json:"missing"`
}

// Repairer fills classification fields of incomplete catalog records from
// the reference catalog.
type Repairer struct {
	catalog   repository.CatalogStore
	reference repository.ReferenceStore
	logger    logger.Logger
}

// NewRepairer creates a repairer.
func NewRepairer(catalog repository.CatalogStore, reference repository.ReferenceStore, log logger.Logger) *Repairer {
	return &Repairer{catalog: catalog, reference: reference, logger: log}
}

// Repair patches every incomplete record that has a reference entry.
// Nation, type, role and tier are taken from the reference; the secondary
// names are filled only when empty. The display name is never changed.
func (r *Repairer) Repair(ctx context.Context) (RepairResult, error) {
	var res RepairResult

	recs, err := r.catalog.FindIncomplete(ctx)
	if err != nil {
		return res, err
	}
	res.Scanned = len(recs)

	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		ref, err := r.reference.FindReference(ctx, rec.ID)
		if errors.Is(err, repository.ErrNotFound) {
			res.Missing++
			continue
		}
		if err != nil {
			return res, err
		}

		patch := repairPatch(rec, ref)
		if patch.Empty() {
			continue
		}
		if err := r.catalog.UpdateByID(ctx, rec.ID, patch); err != nil {
			return res, err
		}
		res.Repaired++
	}

	metrics.RecordRepaired(res.Repaired)
	r.logger.Info(ctx, "catalog repaired",
		logger.Int("scanned", res.Scanned),
		logger.Int("repaired", res.Repaired),
		logger.Int("missing_reference", res.Missing),
	)
	return res, nil
}

// repairPatch returns the fields of rec that ref changes.
func repairPatch(rec model.VehicleRecord, ref model.ReferenceEntry) model.VehiclePatch {
	var p model.VehiclePatch

	overwrite := func(dst **string, cur, v string) {
		if v != "" && v != cur {
			*dst = model.Ptr(v)
		}
	}
	fill := func(dst **string, cur, v string) {
		if cur == "" && v != "" {
			*dst = model.Ptr(v)
		}
	}

	overwrite(&p.Nation, rec.Nation, ref.Nation)
	overwrite(&p.Type, rec.Type, ref.Type)
	overwrite(&p.Role, rec.Role, ref.Role)
	if ref.Tier != 0 && ref.Tier != rec.Tier {
		p.Tier = model.Ptr(ref.Tier)
	}

	fill(&p.ShortName, rec.ShortName, ref.ShortName)
	fill(&p.EnName, rec.EnName, ref.EnName)
	fill(&p.EnShortName, rec.EnShortName, ref.EnShortName)
	fill(&p.TechName, rec.TechName, ref.TechName)
	return p
}
