package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	service "github.com/okian/mastery/internal/app"
	"github.com/okian/mastery/internal/config"
	"github.com/okian/mastery/pkg/logger"
	"github.com/okian/mastery/pkg/metrics"
)

func TestRootCommand(t *testing.T) {
	convey.Convey("Given the root command", t, func() {
		root := newRootCommand()

		convey.Convey("Then every subcommand is registered", func() {
			names := make([]string, 0, len(root.Commands()))
			for _, c := range root.Commands() {
				names = append(names, c.Name())
			}
			convey.So(names, convey.ShouldContain, "serve")
			convey.So(names, convey.ShouldContain, "run")
			convey.So(names, convey.ShouldContain, "migrate")
		})

		convey.Convey("When migrate runs without a database", func() {
			root.SetArgs([]string{"migrate"})
			err := root.ExecuteContext(context.Background())

			convey.Convey("Then it refuses", func() {
				convey.So(errors.Is(err, errNoDatabase), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When an unknown job is run", func() {
			root.SetArgs([]string{"run", "--job", "nope", "--log-level", "error"})
			err := root.ExecuteContext(context.Background())

			convey.Convey("Then the job is rejected", func() {
				convey.So(errors.Is(err, service.ErrUnknownJob), convey.ShouldBeTrue)
			})
		})
	})
}

func TestInitMetrics(t *testing.T) {
	convey.Convey("Given a config with metric naming", t, func() {
		cfg := config.New()
		cfg.MetricsNamespace = "harvest"
		cfg.MetricsPrefix = "eu"
		cfg.MetricsRefreshS = 42
		defer metrics.Init()

		initMetrics(cfg)

		convey.Convey("Then the registry uses the configured names", func() {
			metrics.RecordHistoryUpsert()
			families, err := metrics.GetRegistry().Gather()
			convey.So(err, convey.ShouldBeNil)
			names := make([]string, 0, len(families))
			for _, f := range families {
				names = append(names, f.GetName())
			}
			convey.So(names, convey.ShouldContain, "harvest_pipeline_eu_history_upserts_total")
			convey.So(metrics.RefreshInterval(), convey.ShouldEqual, 42*time.Second)
		})
	})
}

func TestNewMux(t *testing.T) {
	convey.Convey("Given a started service without scheduler", t, func() {
		ctx := context.Background()
		cfg := config.New()
		svc := service.New(
			service.WithConfig(cfg),
			service.WithLogger(logger.NewNop()),
			service.WithoutScheduler(),
		)
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		mux := newMux(ctx, svc, cfg)

		for _, path := range []string{"/", "/healthz", "/stats", "/tanks", "/summary", "/history?id=1", "/api-docs", "/openapi.yaml"} {
			convey.Convey("Then GET "+path+" is served", func() {
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			})
		}

		convey.Convey("Then triggers report the missing scheduler", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/manual", http.NoBody))
			convey.So(w.Code, convey.ShouldEqual, http.StatusServiceUnavailable)
		})

		convey.Convey("Then service metrics can be refreshed", func() {
			convey.So(func() { updateServiceMetrics(svc) }, convey.ShouldNotPanic)
		})
	})
}
