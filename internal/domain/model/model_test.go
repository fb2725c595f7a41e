package model_test

import (
	"testing"
	"time"

	model "github.com/okian/mastery/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestMasteryTier(t *testing.T) {
	convey.Convey("Given the mastery tiers", t, func() {
		convey.Convey("Then every listed tier is valid and has a field name", func() {
			convey.So(model.Tiers(), convey.ShouldResemble, []model.MasteryTier{65, 85, 95})
			for _, tier := range model.Tiers() {
				convey.So(tier.Valid(), convey.ShouldBeTrue)
			}
			convey.So(model.TierTop.Field(), convey.ShouldEqual, "mastery_95")
		})

		convey.Convey("Then an unknown tier is rejected", func() {
			convey.So(model.MasteryTier(50).Valid(), convey.ShouldBeFalse)
		})
	})
}

func TestVehicleRecord(t *testing.T) {
	convey.Convey("Given a vehicle record", t, func() {
		rec := model.VehicleRecord{ID: 1, Nation: "ussr", Type: "heavyTank", Name: "IS-7"}

		convey.Convey("When tier is missing", func() {
			convey.Convey("Then it is incomplete", func() {
				convey.So(rec.Incomplete(), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When all classification fields are set", func() {
			rec.Tier = 10
			convey.Convey("Then it is complete", func() {
				convey.So(rec.Incomplete(), convey.ShouldBeFalse)
			})
		})

		convey.Convey("When a tier metric is set", func() {
			rec.SetMastery(model.TierMid, 4200)
			convey.Convey("Then only that tier reads back", func() {
				convey.So(*rec.Mastery(model.TierMid), convey.ShouldEqual, 4200)
				convey.So(rec.Mastery(model.TierTop), convey.ShouldBeNil)
			})
		})
	})
}

func TestVehiclePatch(t *testing.T) {
	convey.Convey("Given a patch with a few fields", t, func() {
		now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		rec := model.VehicleRecord{ID: 7, Name: "keep", Nation: "", Rank: model.Ptr(10)}
		patch := model.VehiclePatch{
			Nation:     model.Ptr("germany"),
			Tier:       model.Ptr(8),
			Rank:       model.Ptr(7),
			RankDelta:  model.Ptr(3),
			UpdateDate: &now,
		}
		patch.SetMastery(model.TierTop, 3100)

		convey.Convey("When applied", func() {
			patch.Apply(&rec)

			convey.Convey("Then set fields change and nil fields stay", func() {
				convey.So(rec.Name, convey.ShouldEqual, "keep")
				convey.So(rec.Nation, convey.ShouldEqual, "germany")
				convey.So(rec.Tier, convey.ShouldEqual, 8)
				convey.So(*rec.Rank, convey.ShouldEqual, 7)
				convey.So(*rec.RankDelta, convey.ShouldEqual, 3)
				convey.So(*rec.Mastery95, convey.ShouldEqual, 3100)
				convey.So(rec.UpdateDate, convey.ShouldEqual, now)
			})

			convey.Convey("Then the record does not alias patch pointers", func() {
				*patch.Rank = 99
				convey.So(*rec.Rank, convey.ShouldEqual, 7)
			})
		})

		convey.Convey("Then an empty patch reports empty", func() {
			convey.So(model.VehiclePatch{}.Empty(), convey.ShouldBeTrue)
			convey.So(patch.Empty(), convey.ShouldBeFalse)
		})
	})
}

func TestHistorySnapshot(t *testing.T) {
	convey.Convey("Given a history snapshot for the lower tier", t, func() {
		bucket := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		s := model.NewHistorySnapshot(1, bucket, model.TierLower, 1000)

		convey.Convey("When merged with a top tier write and a newer lower tier write", func() {
			s = s.Merge(model.NewHistorySnapshot(1, bucket, model.TierTop, 3000))
			s = s.Merge(model.NewHistorySnapshot(1, bucket, model.TierLower, 1100))

			convey.Convey("Then both tiers are kept and the later value wins", func() {
				convey.So(*s.Mastery65, convey.ShouldEqual, 1100)
				convey.So(*s.Mastery95, convey.ShouldEqual, 3000)
				convey.So(s.Mastery85, convey.ShouldBeNil)
			})
		})
	})
}

func TestRunContext(t *testing.T) {
	convey.Convey("Given a run started mid-hour", t, func() {
		started := time.Date(2024, 5, 1, 12, 34, 56, 0, time.UTC)

		convey.Convey("When stamped with an hourly bucket", func() {
			rc := model.NewRunContext(model.JobMastery, model.TriggerCron, started, time.Hour)

			convey.Convey("Then the bucket is the start of the hour", func() {
				convey.So(rc.Bucket, convey.ShouldEqual, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
				convey.So(rc.StartedAt, convey.ShouldEqual, started)
				convey.So(rc.Job, convey.ShouldEqual, model.JobMastery)
				convey.So(rc.RunID.String(), convey.ShouldNotBeEmpty)
			})
		})

		convey.Convey("When stamped with no bucket size", func() {
			rc := model.NewRunContext(model.JobReference, model.TriggerManual, started, 0)

			convey.Convey("Then it falls back to hourly buckets", func() {
				convey.So(rc.Bucket.Minute(), convey.ShouldEqual, 0)
			})
		})
	})
}

func TestReferenceEntrySeed(t *testing.T) {
	convey.Convey("Given a reference entry", t, func() {
		e := model.ReferenceEntry{ID: 5, Nation: "france", Type: "mediumTank", Role: "support", Tier: 9, Name: "Bat", TechName: "F_Bat"}

		convey.Convey("Then Seed copies the classification", func() {
			rec := e.Seed()
			convey.So(rec.ID, convey.ShouldEqual, model.VehicleID(5))
			convey.So(rec.Tier, convey.ShouldEqual, 9)
			convey.So(rec.TechName, convey.ShouldEqual, "F_Bat")
			convey.So(rec.Incomplete(), convey.ShouldBeFalse)
		})
	})
}
