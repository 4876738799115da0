package config_test

import (
	"runtime"
	"testing"

	"github.com/okian/bikeflow/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.BronzeBucket, convey.ShouldEqual, "bronze")
			convey.So(cfg.SilverBucket, convey.ShouldEqual, "silver")
			convey.So(cfg.GoldBucket, convey.ShouldEqual, "gold")
			convey.So(cfg.HistoricalBucket, convey.ShouldEqual, "historical")
			convey.So(cfg.RawExtension, convey.ShouldEqual, ".json")
			convey.So(cfg.PoorShareThreshold, convey.ShouldEqual, 0.20)
			convey.So(cfg.ScoringWorkers, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.ArchiveBucket, convey.ShouldEqual, "tripdata")
			convey.So(cfg.ArchiveMaxDepth, convey.ShouldEqual, 3)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_ThresholdFor(t *testing.T) {
	convey.Convey("Given per-source gate thresholds", t, func() {
		cfg := config.New()
		cfg.PoorShareThresholds = map[string]float64{"historical": 0.35}

		convey.Convey("Then overrides win and other sources fall back", func() {
			convey.So(cfg.ThresholdFor("historical"), convey.ShouldEqual, 0.35)
			convey.So(cfg.ThresholdFor("realtime"), convey.ShouldEqual, 0.20)
		})
	})
}
