package repository_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/okian/mastery/internal/adapters/repository"
	"github.com/okian/mastery/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func newMemStore(t *testing.T) *repository.MemStore {
	t.Helper()
	s := repository.NewMemStore(context.Background())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMemStore_InsertMany(t *testing.T) {
	convey.Convey("Given a store holding vehicle 1", t, func() {
		ctx := context.Background()
		s := newMemStore(t)
		_, err := s.InsertMany(ctx, []model.VehicleRecord{{ID: 1, Name: "original"}})
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("When inserting a batch that overlaps it", func() {
			res, err := s.InsertMany(ctx, []model.VehicleRecord{
				{ID: 1, Name: "duplicate"},
				{ID: 2, Name: "new"},
				{ID: 3, Name: "new"},
			})

			convey.Convey("Then the new subset is written and the conflict reported", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(res.Inserted, convey.ShouldEqual, 2)
				convey.So(res.Conflicts, convey.ShouldResemble, []model.VehicleID{1})

				rec, err := s.FindByID(ctx, 1)
				convey.So(err, convey.ShouldBeNil)
				convey.So(rec.Name, convey.ShouldEqual, "original")

				n, _ := s.Count(ctx)
				convey.So(n, convey.ShouldEqual, 3)
			})
		})
	})
}

func TestMemStore_UpdateByID(t *testing.T) {
	convey.Convey("Given a stored vehicle", t, func() {
		ctx := context.Background()
		s := newMemStore(t)
		_, _ = s.InsertMany(ctx, []model.VehicleRecord{{ID: 9, Name: "T-34"}})

		convey.Convey("When patched", func() {
			err := s.UpdateByID(ctx, 9, model.VehiclePatch{Tier: model.Ptr(5), Rank: model.Ptr(3)})

			convey.Convey("Then the patched fields change", func() {
				convey.So(err, convey.ShouldBeNil)
				rec, _ := s.FindByID(ctx, 9)
				convey.So(rec.Tier, convey.ShouldEqual, 5)
				convey.So(*rec.Rank, convey.ShouldEqual, 3)
				convey.So(rec.Name, convey.ShouldEqual, "T-34")
			})
		})

		convey.Convey("When a returned record is mutated", func() {
			rec, _ := s.FindByID(ctx, 9)
			rec.Name = "changed"

			convey.Convey("Then the store is unaffected", func() {
				again, _ := s.FindByID(ctx, 9)
				convey.So(again.Name, convey.ShouldEqual, "T-34")
			})
		})

		convey.Convey("When an unknown id is patched", func() {
			err := s.UpdateByID(ctx, 404, model.VehiclePatch{Tier: model.Ptr(5)})

			convey.Convey("Then ErrNotFound is returned", func() {
				convey.So(errors.Is(err, repository.ErrNotFound), convey.ShouldBeTrue)
			})
		})
	})
}

func TestMemStore_FindIncomplete(t *testing.T) {
	convey.Convey("Given complete and incomplete vehicles", t, func() {
		ctx := context.Background()
		s := newMemStore(t)
		_, _ = s.InsertMany(ctx, []model.VehicleRecord{
			{ID: 1, Nation: "ussr", Type: "heavyTank", Tier: 10},
			{ID: 2, Nation: "ussr", Type: "heavyTank"},
			{ID: 3, Tier: 8},
		})

		convey.Convey("Then only records missing a classification field are returned", func() {
			got, err := s.FindIncomplete(ctx)
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(got), convey.ShouldEqual, 2)
			convey.So(got[0].ID, convey.ShouldEqual, model.VehicleID(2))
			convey.So(got[1].ID, convey.ShouldEqual, model.VehicleID(3))
		})
	})
}

func TestMemStore_History(t *testing.T) {
	convey.Convey("Given a vehicle and a snapshot bucket", t, func() {
		ctx := context.Background()
		s := newMemStore(t)
		bucket := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

		convey.Convey("When the same bucket is upserted twice", func() {
			_ = s.UpsertHistory(ctx, model.NewHistorySnapshot(1, bucket, model.TierTop, 3000))
			_ = s.UpsertHistory(ctx, model.NewHistorySnapshot(1, bucket, model.TierTop, 3050))

			convey.Convey("Then one row exists with the second value", func() {
				got, err := s.ListHistory(ctx, 1)
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(got), convey.ShouldEqual, 1)
				convey.So(*got[0].Mastery95, convey.ShouldEqual, 3050)
			})
		})

		convey.Convey("When different tiers and buckets are written", func() {
			_ = s.UpsertHistory(ctx, model.NewHistorySnapshot(1, bucket.Add(time.Hour), model.TierLower, 900))
			_ = s.UpsertHistory(ctx, model.NewHistorySnapshot(1, bucket, model.TierLower, 800))
			_ = s.UpsertHistory(ctx, model.NewHistorySnapshot(1, bucket, model.TierMid, 1800))
			_ = s.UpsertHistory(ctx, model.NewHistorySnapshot(2, bucket, model.TierMid, 1))

			convey.Convey("Then tiers share a row and rows are ordered by bucket", func() {
				got, _ := s.ListHistory(ctx, 1)
				convey.So(len(got), convey.ShouldEqual, 2)
				convey.So(got[0].Bucket, convey.ShouldEqual, bucket)
				convey.So(*got[0].Mastery65, convey.ShouldEqual, 800)
				convey.So(*got[0].Mastery85, convey.ShouldEqual, 1800)
				convey.So(*got[1].Mastery65, convey.ShouldEqual, 900)
			})
		})

		convey.Convey("When many writers upsert the same bucket concurrently", func() {
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_ = s.UpsertHistory(ctx, model.NewHistorySnapshot(1, bucket, model.TierTop, i))
				}()
			}
			wg.Wait()

			convey.Convey("Then there is still a single row", func() {
				got, _ := s.ListHistory(ctx, 1)
				convey.So(len(got), convey.ShouldEqual, 1)
			})
		})
	})
}

func TestMemStore_List(t *testing.T) {
	convey.Convey("Given a small catalog", t, func() {
		ctx := context.Background()
		s := newMemStore(t)
		_, _ = s.InsertMany(ctx, []model.VehicleRecord{
			{ID: 1, Nation: "ussr", Type: "heavyTank", Tier: 10, Mastery95: model.Ptr(4000)},
			{ID: 2, Nation: "ussr", Type: "mediumTank", Tier: 10, Mastery95: model.Ptr(5000), Premium: true},
			{ID: 3, Nation: "germany", Type: "heavyTank", Tier: 8},
			{ID: 4, Nation: "germany", Type: "heavyTank", Tier: 10, Mastery95: model.Ptr(4500)},
		})

		convey.Convey("When listing with defaults", func() {
			got, total, err := s.List(ctx, repository.ListQuery{Size: 10})

			convey.Convey("Then records are ordered by mastery_95 descending with missing values last", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(total, convey.ShouldEqual, 4)
				ids := []model.VehicleID{got[0].ID, got[1].ID, got[2].ID, got[3].ID}
				convey.So(ids, convey.ShouldResemble, []model.VehicleID{2, 4, 1, 3})
			})
		})

		convey.Convey("When filtering and paging", func() {
			got, total, err := s.List(ctx, repository.ListQuery{
				Type: "heavyTank", Tier: model.Ptr(10), Sort: "id", Ascending: true, Page: 2, Size: 1,
			})

			convey.Convey("Then the total counts all matches and one page is returned", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(total, convey.ShouldEqual, 2)
				convey.So(len(got), convey.ShouldEqual, 1)
				convey.So(got[0].ID, convey.ShouldEqual, model.VehicleID(4))
			})
		})

		convey.Convey("When the page is too large to address", func() {
			got, total, err := s.List(ctx, repository.ListQuery{Page: math.MaxInt/10 + 1, Size: 40})

			convey.Convey("Then an empty page is returned", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(total, convey.ShouldEqual, 4)
				convey.So(got, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When filtering on premium", func() {
			got, total, _ := s.List(ctx, repository.ListQuery{Premium: model.Ptr(true), Size: 10})

			convey.Convey("Then only premium vehicles match", func() {
				convey.So(total, convey.ShouldEqual, 1)
				convey.So(got[0].ID, convey.ShouldEqual, model.VehicleID(2))
			})
		})

		convey.Convey("When sorting on an unknown field", func() {
			_, _, err := s.List(ctx, repository.ListQuery{Sort: "password", Size: 10})

			convey.Convey("Then ErrInvalidSort is returned", func() {
				convey.So(errors.Is(err, repository.ErrInvalidSort), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the page size is zero", func() {
			_, _, err := s.List(ctx, repository.ListQuery{})

			convey.Convey("Then ErrInvalidLimit is returned", func() {
				convey.So(errors.Is(err, repository.ErrInvalidLimit), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When summarised", func() {
			sum, err := s.Summary(ctx)

			convey.Convey("Then nations, totals and mastery counts are reported", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(sum.Nations, convey.ShouldResemble, []string{"germany", "ussr"})
				convey.So(sum.Total, convey.ShouldEqual, 4)
				convey.So(sum.HasMastery, convey.ShouldEqual, 3)
				convey.So(len(sum.Tiers), convey.ShouldEqual, 10)
				convey.So(sum.LastUpdate, convey.ShouldBeNil)
			})
		})
	})
}

func TestMemStore_Reference(t *testing.T) {
	convey.Convey("Given reference entries", t, func() {
		ctx := context.Background()
		s := newMemStore(t)

		res, err := s.InsertReferences(ctx, []model.ReferenceEntry{{ID: 1, Tier: 10}, {ID: 2, Tier: 9}})
		convey.So(err, convey.ShouldBeNil)
		convey.So(res.Inserted, convey.ShouldEqual, 2)

		convey.Convey("When inserted again", func() {
			res, err := s.InsertReferences(ctx, []model.ReferenceEntry{{ID: 1, Tier: 1}})

			convey.Convey("Then the existing entry is kept", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(res.Conflicts, convey.ShouldResemble, []model.VehicleID{1})
				e, _ := s.FindReference(ctx, 1)
				convey.So(e.Tier, convey.ShouldEqual, 10)
			})
		})

		convey.Convey("When an unknown id is looked up", func() {
			_, err := s.FindReference(ctx, 3)

			convey.Convey("Then ErrNotFound is returned", func() {
				convey.So(errors.Is(err, repository.ErrNotFound), convey.ShouldBeTrue)
			})
		})
	})
}
