// Package repository defines the catalog, history and reference stores and
// their in-memory and Postgres implementations.
package repository

import (
	"context"
	"math"

	"github.com/okian/mastery/internal/domain/model"
)

// Collection names used in logs and metrics.
const (
	CollectionVehicles  = "vehicles"
	CollectionHistory   = "history"
	CollectionReference = "reference"
)

// InsertResult reports a duplicate-tolerant bulk insert. Conflicts holds the
// ids that already existed and were left untouched.
type InsertResult struct {
	Inserted  int
	Conflicts []model.VehicleID
}

// ListQuery filters and pages the canonical catalog.
type ListQuery struct {
	Nation    string
	Type      string
	Tier      *int
	Premium   *bool
	Collector *bool

	Page int // 1-based
	Size int

	// Sort is a sortable field name. Empty sorts by mastery_95 descending.
	Sort      string
	Ascending bool
}

// CatalogStore provides access to canonical vehicle records.
type CatalogStore interface {
	// FindByID returns ErrNotFound if the vehicle is unknown.
	FindByID(ctx context.Context, id model.VehicleID) (model.VehicleRecord, error)
	Exists(ctx context.Context, id model.VehicleID) (bool, error)
	// InsertMany inserts every record whose id is new and reports the rest as
	// conflicts. It never aborts on a duplicate.
	InsertMany(ctx context.Context, recs []model.VehicleRecord) (InsertResult, error)
	// UpdateByID applies patch to one record. Returns ErrNotFound if absent.
	UpdateByID(ctx context.Context, id model.VehicleID, patch model.VehiclePatch) error
	// FindIncomplete returns records missing nation, type or tier.
	FindIncomplete(ctx context.Context) ([]model.VehicleRecord, error)
	List(ctx context.Context, q ListQuery) ([]model.VehicleRecord, int, error)
	Summary(ctx context.Context) (model.CatalogSummary, error)
	Count(ctx context.Context) (int, error)
}

// HistoryStore keeps one snapshot per vehicle and bucket.
type HistoryStore interface {
	// UpsertHistory merges s into the snapshot of (s.VehicleID, s.Bucket),
	// creating it if needed.
	UpsertHistory(ctx context.Context, s model.HistorySnapshot) error
	// ListHistory returns the snapshots of one vehicle ordered by bucket.
	ListHistory(ctx context.Context, id model.VehicleID) ([]model.HistorySnapshot, error)
}

// ReferenceStore keeps the reference classification catalog.
type ReferenceStore interface {
	// FindReference returns ErrNotFound if the mirror has no entry for id.
	FindReference(ctx context.Context, id model.VehicleID) (model.ReferenceEntry, error)
	InsertReferences(ctx context.Context, entries []model.ReferenceEntry) (InsertResult, error)
}

// Store is the full persistence surface of the pipeline.
type Store interface {
	CatalogStore
	HistoryStore
	ReferenceStore
	Close() error
}

// sortable lists the fields List accepts, mapped to their column names.
var sortable = map[string]string{
	"id":          "id",
	"tier":        "tier",
	"name":        "name",
	"nation":      "nation",
	"mastery_65":  "mastery_65",
	"mastery_85":  "mastery_85",
	"mastery_95":  "mastery_95",
	"rank":        "rank",
	"rank_delta":  "rank_delta",
	"update_date": "update_date",
}

const defaultSort = "mastery_95"

// normalize validates q and fills defaults.
func (q ListQuery) normalize() (ListQuery, error) {
	if q.Sort == "" {
		q.Sort = defaultSort
		q.Ascending = false
	}
	if _, ok := sortable[q.Sort]; !ok {
		return q, ErrInvalidSort
	}
	if q.Size < 1 {
		return q, ErrInvalidLimit
	}
	if q.Page < 1 {
		q.Page = 1
	}
	return q, nil
}

// offset saturates at math.MaxInt so a huge page yields an empty page.
func (q ListQuery) offset() int {
	if q.Page-1 > math.MaxInt/q.Size {
		return math.MaxInt
	}
	return (q.Page - 1) * q.Size
}

// summaryMinTier is the lowest tier counted in CatalogSummary.Total.
const summaryMinTier = 5

func summaryTiers() []int {
	tiers := make([]int, 10)
	for i := range tiers {
		tiers[i] = i + 1
	}
	return tiers
}
