// Package config defines service configuration structures and loading hooks.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/okian/kline/internal/adapters/llm"
	"github.com/okian/kline/internal/domain/scoring"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config contains process configuration. Keys are flat so that every field
// can be set from a single KLINE_ environment variable.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Points is the length of the lifetime timeline.
	Points int `koanf:"points"`
	// RandomSeed fixes the perturbation source. Zero draws from the clock.
	RandomSeed int64 `koanf:"random_seed"`
	// YearSpan is the number of points in a year series.
	YearSpan int `koanf:"year_span"`
	// DecadeCacheSize bounds the memoized decade scores.
	DecadeCacheSize int `koanf:"decade_cache_size"`

	// Curve tunables.
	CurveSeed           float64 `koanf:"curve_seed"`
	CurveMoveMin        float64 `koanf:"curve_move_min"`
	CurveMoveMax        float64 `koanf:"curve_move_max"`
	CurveCloseNoise     float64 `koanf:"curve_close_noise"`
	CurveVolatility     float64 `koanf:"curve_volatility"`
	CurveWickNoise      float64 `koanf:"curve_wick_noise"`
	CurveYearNoise      float64 `koanf:"curve_year_noise"`
	CurveDimensionNoise float64 `koanf:"curve_dimension_noise"`
	// DiffuseWeight scales transformations whose star sits outside the
	// active palace.
	DiffuseWeight float64 `koanf:"diffuse_weight"`

	// Store selects the timeline store: memory or redis.
	Store string `koanf:"store"`
	// StoreCapacity bounds the memory store.
	StoreCapacity int           `koanf:"store_capacity"`
	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db"`
	RedisTTL      time.Duration `koanf:"redis_ttl"`
	RedisPrefix   string        `koanf:"redis_prefix"`

	// QueueSize bounds the annotation queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of annotation workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize sets how many annotated points are remembered.
	DedupeSize int `koanf:"dedupe_size"`

	// Narrative backend.
	BackendProvider         string        `koanf:"backend_provider"`
	BackendAPIKey           string        `koanf:"backend_api_key"`
	BackendBaseURL          string        `koanf:"backend_base_url"`
	BackendModel            string        `koanf:"backend_model"`
	BackendTimeout          time.Duration `koanf:"backend_timeout"`
	BackendMaxTokens        int           `koanf:"backend_max_tokens"`
	BackendTemperature      float64       `koanf:"backend_temperature"`
	BackendRateLimit        float64       `koanf:"backend_rate_limit"`
	BackendBreakerThreshold uint32        `koanf:"backend_breaker_threshold"`
}

// New creates a Config holding the defaults.
func New() *Config {
	curve := scoring.DefaultCurveParams()
	backend := llm.DefaultConfig()
	return &Config{
		LogLevel:        "info",
		LogFormat:       "text",
		Addr:            ":9080",
		Points:          curve.Points,
		YearSpan:        4,
		DecadeCacheSize: 4096,

		CurveSeed:           curve.Seed,
		CurveMoveMin:        curve.MoveMin,
		CurveMoveMax:        curve.MoveMax,
		CurveCloseNoise:     curve.CloseNoise,
		CurveVolatility:     curve.Volatility,
		CurveWickNoise:      curve.WickNoise,
		CurveYearNoise:      curve.YearNoise,
		CurveDimensionNoise: curve.DimensionNoise,
		DiffuseWeight:       scoring.Default().DiffuseWeight(),

		Store:         StoreMemory,
		StoreCapacity: 10_000,
		RedisAddr:     "localhost:6379",
		RedisTTL:      24 * time.Hour,
		RedisPrefix:   "kline:",

		QueueSize:   10_000,
		WorkerCount: runtime.NumCPU(),
		DedupeSize:  50_000,

		BackendProvider:         backend.Provider,
		BackendTimeout:          backend.Timeout,
		BackendMaxTokens:        backend.MaxTokens,
		BackendTemperature:      backend.Temperature,
		BackendRateLimit:        backend.RateLimit,
		BackendBreakerThreshold: backend.BreakerThreshold,
	}
}

// CurveParams returns the curve tunables.
func (c *Config) CurveParams() scoring.CurveParams {
	return scoring.CurveParams{
		Seed:           c.CurveSeed,
		MoveMin:        c.CurveMoveMin,
		MoveMax:        c.CurveMoveMax,
		CloseNoise:     c.CurveCloseNoise,
		Volatility:     c.CurveVolatility,
		WickNoise:      c.CurveWickNoise,
		YearNoise:      c.CurveYearNoise,
		DimensionNoise: c.CurveDimensionNoise,
		Points:         c.Points,
	}
}

// ScoringOptions returns the scoring model overrides carried by c.
func (c *Config) ScoringOptions() []scoring.Option {
	return []scoring.Option{
		scoring.WithCurveParams(c.CurveParams()),
		scoring.WithDiffuseWeight(c.DiffuseWeight),
	}
}

// Backend returns the default narrative backend config.
func (c *Config) Backend() llm.Config {
	return llm.Config{
		Provider:         c.BackendProvider,
		APIKey:           c.BackendAPIKey,
		BaseURL:          c.BackendBaseURL,
		Model:            c.BackendModel,
		Timeout:          c.BackendTimeout,
		MaxTokens:        c.BackendMaxTokens,
		Temperature:      c.BackendTemperature,
		RateLimit:        c.BackendRateLimit,
		BreakerThreshold: c.BackendBreakerThreshold,
	}
}

// Validate reports the first field that cannot be used.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return invalid("addr", "must not be empty")
	case c.LogFormat != "text" && c.LogFormat != "json":
		return invalid("log_format", "must be text or json")
	case c.Points <= 0:
		return invalid("points", "must be positive")
	case c.YearSpan <= 0:
		return invalid("year_span", "must be positive")
	case c.CurveSeed < 0 || c.CurveSeed > 100:
		return invalid("curve_seed", "must be within 0..100")
	case c.CurveMoveMin < 0 || c.CurveMoveMax < c.CurveMoveMin || c.CurveMoveMax > 1:
		return invalid("curve_move_min", "need 0 <= min <= max <= 1")
	case c.CurveCloseNoise < 0 || c.CurveVolatility < 0 || c.CurveWickNoise < 0 ||
		c.CurveYearNoise < 0 || c.CurveDimensionNoise < 0:
		return invalid("curve", "noise and volatility must not be negative")
	case c.DiffuseWeight < 0 || c.DiffuseWeight > 1:
		return invalid("diffuse_weight", "must be within 0..1")
	case c.QueueSize <= 0:
		return invalid("queue_size", "must be positive")
	case c.WorkerCount <= 0:
		return invalid("worker_count", "must be positive")
	case c.BackendTimeout <= 0:
		return invalid("backend_timeout", "must be positive")
	}
	switch strings.ToLower(c.Store) {
	case StoreMemory:
	case StoreRedis:
		if c.RedisAddr == "" {
			return invalid("redis_addr", "required for the redis store")
		}
	default:
		return invalid("store", fmt.Sprintf("unknown store %q", c.Store))
	}
	return nil
}
