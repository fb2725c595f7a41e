package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/mastery/internal/adapters/repository"
	service "github.com/okian/mastery/internal/app"
	"github.com/okian/mastery/internal/domain/model"
	"github.com/okian/mastery/pkg/logger"
)

var fixedNow = time.Date(2024, 5, 1, 12, 34, 56, 0, time.UTC)

func newRun() model.RunContext {
	return model.NewRunContext(model.JobMastery, model.TriggerManual, fixedNow, time.Hour)
}

func newCrawler(r service.RankingFetcher, store repository.Store, retries int) *service.Crawler {
	return service.NewCrawler(r, store, service.CrawlerConfig{
		PageSize:    40,
		MaxPages:    10,
		PageRetries: retries,
		Now:         func() time.Time { return fixedNow },
	}, logger.NewNop())
}

func TestCrawler_Pagination(t *testing.T) {
	Convey("Given a tier with two full pages", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore(ctx)
		defer store.Close()

		ranking := newFakeRanking()
		ranking.pages[model.TierLower] = [][]model.RankingRow{rows(1, 40, 500), rows(41, 40, 400)}

		Convey("When the tier is crawled", func() {
			res, err := newCrawler(ranking, store, 1).Crawl(ctx, newRun(), model.TierLower)

			Convey("Then the crawl stops at the first empty page", func() {
				So(err, ShouldBeNil)
				So(ranking.requestCount(model.TierLower), ShouldEqual, 3)
				So(res.Pages, ShouldEqual, 2)
				So(res.Rows, ShouldEqual, 80)
				So(res.Inserted, ShouldEqual, 80)
			})

			Convey("Then every row is in the catalog with its metric", func() {
				n, _ := store.Count(ctx)
				So(n, ShouldEqual, 80)
				rec, err := store.FindByID(ctx, 41)
				So(err, ShouldBeNil)
				So(*rec.Mastery65, ShouldEqual, 400)
				So(rec.Rank, ShouldBeNil)
				So(rec.UpdateDate, ShouldEqual, newRun().Bucket)
			})
		})
	})
}

func TestCrawler_Rank(t *testing.T) {
	Convey("Given a known vehicle previously ranked 10th", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore(ctx)
		defer store.Close()

		_, _ = store.InsertMany(ctx, []model.VehicleRecord{{ID: 7, Name: "old", Rank: model.Ptr(10)}})

		ranking := newFakeRanking()
		ranking.pages[model.TierTop] = [][]model.RankingRow{rows(1, 40, 900)}

		Convey("When it appears 7th in the top tier", func() {
			_, err := newCrawler(ranking, store, 1).Crawl(ctx, newRun(), model.TierTop)
			So(err, ShouldBeNil)

			Convey("Then rank and delta are recorded", func() {
				rec, _ := store.FindByID(ctx, 7)
				So(*rec.Rank, ShouldEqual, 7)
				So(*rec.RankDelta, ShouldEqual, 3)
				So(rec.Name, ShouldEqual, "vehicle-7")
			})

			Convey("Then a vehicle without a previous rank gets no delta", func() {
				rec, _ := store.FindByID(ctx, 8)
				So(*rec.Rank, ShouldEqual, 8)
				So(rec.RankDelta, ShouldBeNil)
			})
		})
	})

	Convey("Given a second page of the top tier", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore(ctx)
		defer store.Close()

		ranking := newFakeRanking()
		ranking.pages[model.TierTop] = [][]model.RankingRow{rows(1, 40, 900), rows(41, 3, 800)}

		Convey("Then ranks continue across pages", func() {
			_, err := newCrawler(ranking, store, 1).Crawl(ctx, newRun(), model.TierTop)
			So(err, ShouldBeNil)
			rec, _ := store.FindByID(ctx, 42)
			So(*rec.Rank, ShouldEqual, 42)
		})
	})
}

func TestCrawler_NewVehicle(t *testing.T) {
	Convey("Given a ranking row for an unknown vehicle", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore(ctx)
		defer store.Close()

		ranking := newFakeRanking()
		ranking.pages[model.TierMid] = [][]model.RankingRow{rows(1, 2, 300)}

		_, _ = store.InsertReferences(ctx, []model.ReferenceEntry{{
			ID: 1, Nation: "ussr", Type: "heavyTank", Role: "assault", Tier: 10,
			Name: "IS-7 ref", EnName: "IS-7", TechName: "R45_IS-7",
		}})

		Convey("When the tier is crawled", func() {
			_, err := newCrawler(ranking, store, 1).Crawl(ctx, newRun(), model.TierMid)
			So(err, ShouldBeNil)

			Convey("Then it is seeded from the reference entry", func() {
				rec, _ := store.FindByID(ctx, 1)
				So(rec.Nation, ShouldEqual, "ussr")
				So(rec.Tier, ShouldEqual, 10)
				So(rec.TechName, ShouldEqual, "R45_IS-7")
				So(rec.Name, ShouldEqual, "vehicle-1")
				So(rec.Premium, ShouldBeTrue)
				So(rec.CollectorVehicle, ShouldBeFalse)
				So(*rec.Mastery85, ShouldEqual, 300)
				So(rec.InsertDate, ShouldEqual, fixedNow)
			})

			Convey("Then a vehicle without a reference entry is inserted bare", func() {
				rec, err := store.FindByID(ctx, 2)
				So(err, ShouldBeNil)
				So(rec.Nation, ShouldBeEmpty)
				So(rec.Premium, ShouldBeTrue)
				So(rec.Incomplete(), ShouldBeTrue)
			})
		})
	})

	Convey("Given the same new vehicle in every tier", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore(ctx)
		defer store.Close()

		ranking := newFakeRanking()
		ranking.pages[model.TierLower] = [][]model.RankingRow{rows(5, 1, 100)}
		ranking.pages[model.TierMid] = [][]model.RankingRow{rows(5, 1, 200)}
		ranking.pages[model.TierTop] = [][]model.RankingRow{rows(5, 1, 300)}

		Convey("When all tiers are crawled concurrently", func() {
			results, err := newCrawler(ranking, store, 1).CrawlAll(ctx, newRun())
			So(err, ShouldBeNil)
			So(len(results), ShouldEqual, 3)

			Convey("Then one record carries all three metrics", func() {
				n, _ := store.Count(ctx)
				So(n, ShouldEqual, 1)
				rec, _ := store.FindByID(ctx, 5)
				So(*rec.Mastery65, ShouldEqual, 100)
				So(*rec.Mastery85, ShouldEqual, 200)
				So(*rec.Mastery95, ShouldEqual, 300)
				So(*rec.Rank, ShouldEqual, 1)
			})
		})
	})
}

func TestCrawler_History(t *testing.T) {
	Convey("Given two crawls in the same bucket", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore(ctx)
		defer store.Close()

		first := newFakeRanking()
		first.pages[model.TierTop] = [][]model.RankingRow{rows(3, 1, 100)}
		second := newFakeRanking()
		second.pages[model.TierTop] = [][]model.RankingRow{rows(3, 1, 120)}
		lower := newFakeRanking()
		lower.pages[model.TierLower] = [][]model.RankingRow{rows(3, 1, 50)}

		rc := newRun()
		later := model.NewRunContext(model.JobMastery, model.TriggerCron, fixedNow.Add(10*time.Minute), time.Hour)

		_, err := newCrawler(first, store, 1).Crawl(ctx, rc, model.TierTop)
		So(err, ShouldBeNil)
		_, err = newCrawler(second, store, 1).Crawl(ctx, later, model.TierTop)
		So(err, ShouldBeNil)
		_, err = newCrawler(lower, store, 1).Crawl(ctx, later, model.TierLower)
		So(err, ShouldBeNil)

		Convey("Then one snapshot holds the latest value of each tier", func() {
			hist, err := store.ListHistory(ctx, 3)
			So(err, ShouldBeNil)
			So(len(hist), ShouldEqual, 1)
			So(hist[0].Bucket, ShouldEqual, rc.Bucket)
			So(*hist[0].Mastery95, ShouldEqual, 120)
			So(*hist[0].Mastery65, ShouldEqual, 50)
			So(hist[0].Mastery85, ShouldBeNil)
		})
	})
}

func TestCrawler_Failures(t *testing.T) {
	Convey("Given a ranking endpoint that fails transiently", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore(ctx)
		defer store.Close()

		ranking := newFakeRanking()
		ranking.pages[model.TierLower] = [][]model.RankingRow{rows(1, 5, 10)}
		ranking.failures[model.TierLower] = 2

		Convey("When retries cover the failures", func() {
			res, err := newCrawler(ranking, store, 3).Crawl(ctx, newRun(), model.TierLower)

			Convey("Then the page is fetched", func() {
				So(err, ShouldBeNil)
				So(res.Rows, ShouldEqual, 5)
				So(ranking.requestCount(model.TierLower), ShouldEqual, 4)
			})
		})

		Convey("When retries run out", func() {
			_, err := newCrawler(ranking, store, 2).Crawl(ctx, newRun(), model.TierLower)

			Convey("Then the tier fails with ErrPageFailed", func() {
				So(errors.Is(err, service.ErrPageFailed), ShouldBeTrue)
				So(errors.Is(err, errUpstream), ShouldBeTrue)
				So(ranking.requestCount(model.TierLower), ShouldEqual, 2)
			})
		})
	})

	Convey("Given a ranking endpoint that never runs out of rows", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore(ctx)
		defer store.Close()

		ranking := newFakeRanking()
		ranking.endless = true

		Convey("Then the crawl ends with ErrPageLimit", func() {
			res, err := newCrawler(ranking, store, 1).Crawl(ctx, newRun(), model.TierMid)
			So(errors.Is(err, service.ErrPageLimit), ShouldBeTrue)
			So(res.Pages, ShouldEqual, 10)
		})
	})

	Convey("Given one tier that keeps failing", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore(ctx)
		defer store.Close()

		ranking := newFakeRanking()
		ranking.pages[model.TierLower] = [][]model.RankingRow{rows(1, 2, 10)}
		ranking.pages[model.TierTop] = [][]model.RankingRow{rows(1, 2, 30)}
		ranking.failures[model.TierMid] = 100

		Convey("Then the other tiers still complete", func() {
			_, err := newCrawler(ranking, store, 1).CrawlAll(ctx, newRun())
			So(errors.Is(err, service.ErrPageFailed), ShouldBeTrue)
			rec, _ := store.FindByID(ctx, 1)
			So(*rec.Mastery65, ShouldEqual, 10)
			So(*rec.Mastery95, ShouldEqual, 30)
			So(rec.Mastery85, ShouldBeNil)
		})
	})
}
