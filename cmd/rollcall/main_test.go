package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	service "github.com/okian/rollcall/internal/app"
	"github.com/okian/rollcall/internal/config"
	"github.com/okian/rollcall/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestConfigFromEnvironment(t *testing.T) {
	convey.Convey("Given environment overrides", t, func() {
		_ = os.Setenv("ROLLCALL_ADDR", ":8081")
		_ = os.Setenv("ROLLCALL_QUEUE_SIZE", "64")
		_ = os.Setenv("ROLLCALL_WORKER_COUNT", "3")
		defer func() {
			_ = os.Unsetenv("ROLLCALL_ADDR")
			_ = os.Unsetenv("ROLLCALL_QUEUE_SIZE")
			_ = os.Unsetenv("ROLLCALL_WORKER_COUNT")
		}()

		convey.Convey("When the configuration is loaded", func() {
			cfg, err := config.Load(context.Background())
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the overrides drive the service options", func() {
				convey.So(cfg.Addr, convey.ShouldEqual, ":8081")
				opts, err := serviceOptions(cfg)
				convey.So(err, convey.ShouldBeNil)

				svc := service.New(opts...)
				stats := svc.GetStats()
				convey.So(stats["queueSize"], convey.ShouldEqual, 64)
				convey.So(stats["workerCount"], convey.ShouldEqual, 3)
			})
		})
	})
}

func TestServiceOptions(t *testing.T) {
	convey.Convey("Given a configuration with a journal", t, func() {
		cfg := config.New()
		cfg.DatabaseDSN = filepath.Join(t.TempDir(), "rollcall.db")

		convey.Convey("When the options are built and the service started", func() {
			opts, err := serviceOptions(cfg)
			convey.So(err, convey.ShouldBeNil)
			svc := service.New(opts...)
			convey.So(svc.Start(context.Background()), convey.ShouldBeNil)
			defer svc.Stop()

			convey.Convey("Then the journal is attached", func() {
				convey.So(svc.GetStats()["journal"], convey.ShouldEqual, true)
				convey.So(svc.GetStats()["publisher"], convey.ShouldEqual, false)
			})
		})

		convey.Convey("When the driver is unsupported", func() {
			cfg.DatabaseDriver = "postgres"
			_, err := serviceOptions(cfg)

			convey.Convey("Then building the options fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestMux(t *testing.T) {
	convey.Convey("Given the assembled mux over a running service", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithWorkerCount(1))
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()
		mux := newMux(ctx, svc, config.New())

		convey.Convey("When the business and documentation routes are requested", func() {
			paths := []string{"/identities", "/attendance", "/stats", "/healthz", "/openapi.yaml", "/api-docs"}

			convey.Convey("Then each answers 200", func() {
				for _, p := range paths {
					w := httptest.NewRecorder()
					mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, p, http.NoBody))
					convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				}
			})
		})
	})
}

func TestRun(t *testing.T) {
	convey.Convey("Given a configuration on an ephemeral port", t, func() {
		cfg := config.New()
		cfg.Addr = "127.0.0.1:0"
		cfg.WorkerCount = 1

		convey.Convey("When the context is cancelled", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()

			convey.Convey("Then run shuts down cleanly", func() {
				convey.So(run(ctx, cfg), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the address is invalid", func() {
			cfg.Addr = "127.0.0.1:-1"

			convey.Convey("Then run reports the listen failure", func() {
				convey.So(run(context.Background(), cfg), convey.ShouldNotBeNil)
			})
		})
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given the background metric updaters", t, func() {
		convey.Convey("When their context expires", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			svc := service.New()

			convey.Convey("Then they return without panicking", func() {
				convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
				convey.So(func() { startServiceMetricsUpdater(ctx, svc) }, convey.ShouldNotPanic)
				convey.So(updateSystemMetrics, convey.ShouldNotPanic)
			})
		})
	})
}
