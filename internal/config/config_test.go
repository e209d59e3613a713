package config_test

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/okian/kline/internal/config"
	"github.com/okian/kline/internal/domain/scoring"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.Points, convey.ShouldEqual, 100)
			convey.So(cfg.Store, convey.ShouldEqual, config.StoreMemory)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.BackendProvider, convey.ShouldEqual, "deepseek")
			convey.So(cfg.BackendTimeout, convey.ShouldEqual, 3*time.Minute)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then the curve and backend views carry the flat fields", func() {
			cfg.CurveVolatility = 0.5
			cfg.Points = 80
			cfg.BackendAPIKey = "secret"
			convey.So(cfg.CurveParams().Volatility, convey.ShouldEqual, 0.5)
			convey.So(cfg.CurveParams().Points, convey.ShouldEqual, 80)
			convey.So(cfg.Backend().APIKey, convey.ShouldEqual, "secret")
			convey.So(cfg.Backend().MaxTokens, convey.ShouldEqual, 8192)
		})

		convey.Convey("Then the scoring options carry the diffuse weight", func() {
			convey.So(cfg.DiffuseWeight, convey.ShouldEqual, scoring.Default().DiffuseWeight())
			cfg.DiffuseWeight = 0.6
			cfg.CurveVolatility = 0.5
			m := scoring.New(cfg.ScoringOptions()...)
			convey.So(m.DiffuseWeight(), convey.ShouldEqual, 0.6)
			convey.So(m.Curve().Volatility, convey.ShouldEqual, 0.5)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs with one bad field", t, func() {
		cases := map[string]func(*config.Config){
			"addr":            func(c *config.Config) { c.Addr = "" },
			"log_format":      func(c *config.Config) { c.LogFormat = "xml" },
			"points":          func(c *config.Config) { c.Points = 0 },
			"curve_seed":      func(c *config.Config) { c.CurveSeed = 120 },
			"curve_move_min":  func(c *config.Config) { c.CurveMoveMin, c.CurveMoveMax = 0.8, 0.2 },
			"curve":           func(c *config.Config) { c.CurveWickNoise = -1 },
			"worker_count":    func(c *config.Config) { c.WorkerCount = 0 },
			"store":           func(c *config.Config) { c.Store = "etcd" },
			"redis_addr":      func(c *config.Config) { c.Store, c.RedisAddr = config.StoreRedis, "" },
			"backend_timeout": func(c *config.Config) { c.BackendTimeout = 0 },
			"diffuse_weight":  func(c *config.Config) { c.DiffuseWeight = 1.5 },
		}
		for field, mutate := range cases {
			cfg := config.New()
			mutate(cfg)
			err := cfg.Validate()

			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, field)
		}
	})
}
