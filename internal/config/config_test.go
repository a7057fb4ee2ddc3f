package config_test

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/okian/rollcall/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.MatchMetric, convey.ShouldEqual, "euclidean")
			convey.So(cfg.MatchThreshold, convey.ShouldEqual, 0.6)
			convey.So(cfg.DedupCooldown(), convey.ShouldEqual, 5*time.Second)
			convey.So(cfg.LedgerShards, convey.ShouldEqual, 32)
			convey.So(cfg.EnrollPoses, convey.ShouldResemble, []string{"center", "left", "right", "up"})
			convey.So(cfg.EnrollSessionTTL(), convey.ShouldEqual, 10*time.Minute)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.DefaultLocation, convey.ShouldEqual, "webcam")
			convey.So(cfg.DatabaseDSN, convey.ShouldBeEmpty)
			convey.So(cfg.MQTTBroker, convey.ShouldBeEmpty)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given an otherwise valid config", t, func() {
		cfg := config.New()

		cases := []struct {
			want   string
			mutate func(c *config.Config)
		}{
			{"addr must not be empty", func(c *config.Config) { c.Addr = "" }},
			{"match_metric", func(c *config.Config) { c.MatchMetric = "manhattan" }},
			{"match_threshold must be positive", func(c *config.Config) { c.MatchThreshold = 0 }},
			{"dedup_cooldown_ms", func(c *config.Config) { c.DedupCooldownMS = -1 }},
			{"ledger_shards", func(c *config.Config) { c.LedgerShards = 0 }},
			{"enroll_poses", func(c *config.Config) { c.EnrollPoses = nil }},
			{"queue_size", func(c *config.Config) { c.QueueSize = 0 }},
			{"database_driver", func(c *config.Config) { c.DatabaseDriver = "postgres" }},
			{"log_format", func(c *config.Config) { c.LogFormat = "xml" }},
		}
		for _, tc := range cases {
			convey.Convey("When "+tc.want+" is broken", func() {
				tc.mutate(cfg)
				err := cfg.Validate()

				convey.Convey("Then validation names it", func() {
					convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
					convey.So(err.Error(), convey.ShouldContainSubstring, tc.want)
				})
			})
		}

		convey.Convey("When a zero cooldown is configured", func() {
			cfg.DedupCooldownMS = 0

			convey.Convey("Then it is allowed", func() {
				convey.So(cfg.Validate(), convey.ShouldBeNil)
			})
		})
	})
}
