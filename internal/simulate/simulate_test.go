package simulate

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/rollcall/internal/adapters/http/api"
	service "github.com/okian/rollcall/internal/app"
	"github.com/okian/rollcall/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func newServer(opts ...service.Option) (*httptest.Server, *service.Service) {
	svc := service.New(append([]service.Option{service.WithWorkerCount(2)}, opts...)...)
	So(svc.Start(context.Background()), ShouldBeNil)
	mux := http.NewServeMux()
	api.NewServer(svc).Register(context.Background(), mux)
	return httptest.NewServer(mux), svc
}

func testConfig(url, mode string) *Config {
	return &Config{
		BaseURL:    url,
		Identities: 5,
		Probes:     25,
		Dimension:  32,
		Noise:      DefaultNoise,
		Workers:    4,
		Timeout:    DefaultTimeout,
		Settle:     DefaultSettle,
		Mode:       mode,
		Location:   DefaultLocation,
		Seed:       7,
	}
}

func TestGenerator(t *testing.T) {
	Convey("Given a seeded generator", t, func() {
		gen := newGenerator(1, 64)

		Convey("Then identities are unit vectors far apart", func() {
			a, b := gen.identity(), gen.identity()
			So(norm(a), ShouldAlmostEqual, 1, 1e-9)
			So(distance(a, b), ShouldBeGreaterThan, 1)
		})

		Convey("Then samples stay close to their base", func() {
			base := gen.identity()
			So(distance(base, gen.sample(base, 0.05)), ShouldBeLessThan, 0.2)
			So(gen.sample(base, 0), ShouldResemble, base)
		})

		Convey("Then the same seed replays the same descriptors", func() {
			So(newGenerator(9, 8).identity(), ShouldResemble, newGenerator(9, 8).identity())
		})
	})
}

func TestConfigValidate(t *testing.T) {
	Convey("Given a valid config", t, func() {
		cfg := testConfig("http://localhost:9080", ModeSync)
		So(cfg.Validate(), ShouldBeNil)

		Convey("When the mode is unknown", func() {
			cfg.Mode = "batch"
			So(errors.Is(cfg.Validate(), ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("When there are no identities", func() {
			cfg.Identities = 0
			So(errors.Is(cfg.Validate(), ErrInvalidConfig), ShouldBeTrue)
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a rollcall server", t, func() {
		srv, svc := newServer(service.WithCooldown(time.Minute))
		defer srv.Close()
		defer svc.Stop()

		Convey("When probes are recognized synchronously", func() {
			stats, err := Run(context.Background(), testConfig(srv.URL, ModeSync))

			Convey("Then every probe finds its identity and is marked once", func() {
				So(err, ShouldBeNil)
				So(stats.IdentitiesEnrolled, ShouldEqual, 5)
				So(stats.ProbesSent, ShouldEqual, 25)
				So(stats.Recognized, ShouldEqual, 25)
				So(stats.AttendanceRecords, ShouldEqual, 5)
			})
		})

		Convey("When probes go through the queue", func() {
			stats, err := Run(context.Background(), testConfig(srv.URL, ModeQueue))

			Convey("Then replays are duplicates and attendance appears", func() {
				So(err, ShouldBeNil)
				So(stats.Duplicates, ShouldEqual, 25)
				So(stats.AttendanceRecords, ShouldEqual, 5)
			})
		})

		Convey("When cleanup is requested", func() {
			cfg := testConfig(srv.URL, ModeSync)
			cfg.Cleanup = true
			_, err := Run(context.Background(), cfg)
			So(err, ShouldBeNil)

			Convey("Then the server is left empty", func() {
				ids, _ := svc.ListIdentities(context.Background())
				So(ids, ShouldBeEmpty)
				recs, _ := svc.ListAttendance(context.Background())
				So(recs, ShouldBeEmpty)
			})
		})
	})

	Convey("Given a server whose threshold rejects every probe", t, func() {
		srv, svc := newServer(service.WithMatchThreshold(0.001))
		defer srv.Close()
		defer svc.Stop()

		Convey("When the simulation runs", func() {
			stats, err := Run(context.Background(), testConfig(srv.URL, ModeSync))

			Convey("Then verification fails", func() {
				So(errors.Is(err, ErrVerification), ShouldBeTrue)
				So(stats.Unrecognized, ShouldEqual, 25)
			})
		})
	})

	Convey("Given no server", t, func() {
		_, err := Run(context.Background(), testConfig("http://127.0.0.1:1", ModeSync))
		So(err, ShouldNotBeNil)
	})
}

func norm(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}

func distance(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return math.Sqrt(s)
}
