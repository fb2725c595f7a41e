package service_test

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/mastery/internal/app"
	"github.com/okian/mastery/internal/domain/model"
	"github.com/okian/mastery/pkg/logger"
)

func TestPipeline(t *testing.T) {
	Convey("Given a pipeline whose first stage fails", t, func() {
		var order []string
		var seen []model.RunContext
		stage := func(name string, err error) service.Stage {
			return service.Stage{Name: name, Run: func(_ context.Context, rc model.RunContext) error {
				order = append(order, name)
				seen = append(seen, rc)
				return err
			}}
		}

		dependent := stage("reconcile", nil)
		dependent.Requires = "fetch"
		p := service.NewPipeline(model.JobMastery, logger.NewNop(),
			stage("fetch", errors.New("catalog down")),
			stage("crawl", nil),
			dependent,
			stage("repair", nil),
		)
		So(p.Stages(), ShouldResemble, []string{"fetch", "crawl", "reconcile", "repair"})

		Convey("When it runs", func() {
			rc := newRun()
			res := p.Run(context.Background(), rc)

			Convey("Then independent stages still run in order", func() {
				So(order, ShouldResemble, []string{"fetch", "crawl", "repair"})
			})

			Convey("Then the dependent stage is skipped", func() {
				So(res.Stages[0].Status, ShouldEqual, service.StatusFailed)
				So(res.Stages[0].Error, ShouldEqual, "catalog down")
				So(res.Stages[1].Status, ShouldEqual, service.StatusOK)
				So(res.Stages[2].Status, ShouldEqual, service.StatusSkipped)
				So(res.Stages[3].Status, ShouldEqual, service.StatusOK)
				So(res.Status(), ShouldEqual, service.StatusFailed)
			})

			Convey("Then every stage sees the same run context", func() {
				So(res.RunID, ShouldEqual, rc.RunID)
				for _, s := range seen {
					So(s.RunID, ShouldEqual, rc.RunID)
					So(s.Bucket, ShouldEqual, rc.Bucket)
				}
			})
		})
	})

	Convey("Given a cancelled context", t, func() {
		ran := false
		p := service.NewPipeline(model.JobReference, logger.NewNop(), service.Stage{
			Name: "reference",
			Run: func(context.Context, model.RunContext) error {
				ran = true
				return nil
			},
		})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		Convey("Then stages are skipped", func() {
			res := p.Run(ctx, newRun())
			So(ran, ShouldBeFalse)
			So(res.Stages[0].Status, ShouldEqual, service.StatusSkipped)
		})
	})
}
