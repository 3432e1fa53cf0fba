// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Keys are flat and lowercase so env vars map onto them directly.
// - External errors are wrapped with this package's sentinels.
package config

import (
	"context"
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format" validate:"omitempty,oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr" validate:"required"`

	// QueueSize bounds the in-memory pair job queue.
	QueueSize int `koanf:"queue_size" validate:"gt=0"`
	// WorkerCount sets the number of scoring workers.
	WorkerCount int `koanf:"worker_count" validate:"gt=0"`
	// DedupeSize bounds the per-batch pair de-duplication set.
	DedupeSize int `koanf:"dedupe_size" validate:"gt=0"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit" validate:"gt=0"`

	// EngineKinds lists accepted engine kinds; the first is the default.
	EngineKinds []string `koanf:"engine_kinds" validate:"min=1,dive,required"`

	// Score store backend and its connection settings.
	StoreBackend string `koanf:"store_backend" validate:"oneof=memory redis postgres"`
	RedisURL     string `koanf:"redis_url" validate:"required_if=StoreBackend redis"`
	PostgresDSN  string `koanf:"postgres_dsn" validate:"required_if=StoreBackend postgres"`

	// Resilience around the score store.
	StoreTimeoutMS          int     `koanf:"store_timeout_ms" validate:"gt=0"`
	StoreRetries            int     `koanf:"store_retries" validate:"gte=0"`
	StoreBackoffMS          int     `koanf:"store_backoff_ms" validate:"gte=0"`
	StoreWriteRate          float64 `koanf:"store_write_rate" validate:"gte=0"`
	StoreWriteBurst         int     `koanf:"store_write_burst" validate:"gte=0"`
	BreakerFailureThreshold int     `koanf:"breaker_failure_threshold" validate:"gt=0"`
	BreakerOpenTimeoutMS    int     `koanf:"breaker_open_timeout_ms" validate:"gt=0"`

	// Time layer hierarchy and scoring.
	LayerMinuteFactors         []int     `koanf:"layer_minute_factors" validate:"dive,gte=2"`
	LayerSecondFactor          int       `koanf:"layer_second_factor" validate:"gte=0"`
	ExcludeImpreciseDeepLayers bool      `koanf:"exclude_imprecise_deep_layers"`
	DepthScores                []float64 `koanf:"depth_scores" validate:"min=2,dive,gte=0"`

	// Aggregation policy.
	DecayThreshold   int     `koanf:"decay_threshold" validate:"gte=0"`
	DecayFactor      float64 `koanf:"decay_factor" validate:"gt=0,lte=1"`
	NearCeiling      float64 `koanf:"near_ceiling" validate:"gt=0,lte=1"`
	SubMaxCeiling    float64 `koanf:"sub_max_ceiling" validate:"gt=0,lt=1"`
	CorroborationMin int     `koanf:"corroboration_min" validate:"gte=1"`

	// Composite weights and tier bands (label -> lower bound).
	WeightTolerance float64            `koanf:"weight_tolerance" validate:"gt=0"`
	DefaultWeights  map[string]float64 `koanf:"default_weights" validate:"min=1"`
	Bands           map[string]float64 `koanf:"bands" validate:"min=1"`

	// Metric naming. Empty buckets keep the built-in millisecond buckets.
	MetricsNamespace string            `koanf:"metrics_namespace" validate:"required"`
	MetricsSubsystem string            `koanf:"metrics_subsystem"`
	MetricsPrefix    string            `koanf:"metrics_prefix"`
	MetricsLabels    map[string]string `koanf:"metrics_labels"`
	MetricsBucketsMS []float64         `koanf:"metrics_buckets_ms" validate:"dive,gt=0"`

	// Weight tuner bounds.
	TunerGridStep      float64 `koanf:"tuner_grid_step" validate:"gt=0,lte=1"`
	TunerMaxCandidates int     `koanf:"tuner_max_candidates" validate:"gt=0"`
	TunerMaxIterations int     `koanf:"tuner_max_iterations" validate:"gt=0"`
	// TunerThreshold switches the tuner to the accuracy metric when non-zero.
	TunerThreshold float64 `koanf:"tuner_threshold" validate:"gte=0,lte=1"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:                "info",
		LogFormat:               "text",
		Addr:                    ":9080",
		QueueSize:               100_000,
		WorkerCount:             runtime.NumCPU() * 2,
		DedupeSize:              500_000,
		MaxLeaderboardLimit:     100,
		EngineKinds:             []string{"resonance"},
		StoreBackend:            "memory",
		StoreTimeoutMS:          2000,
		StoreRetries:            2,
		StoreBackoffMS:          50,
		StoreWriteRate:          0,
		StoreWriteBurst:         0,
		BreakerFailureThreshold: 5,
		BreakerOpenTimeoutMS:    10_000,
		LayerMinuteFactors:      []int{4, 3, 5},
		LayerSecondFactor:       4,
		DepthScores:             []float64{0, 0, 0, 10, 30, 45, 60, 80, 100},
		DecayThreshold:          5,
		DecayFactor:             0.85,
		NearCeiling:             0.99,
		SubMaxCeiling:           0.97,
		CorroborationMin:        3,
		WeightTolerance:         1e-6,
		DefaultWeights: map[string]float64{
			"temporal":        0.5,
			"trait_primary":   0.3,
			"trait_secondary": 0.2,
		},
		Bands: map[string]float64{
			"exceptional": 0.85,
			"strong":      0.70,
			"moderate":    0.50,
			"weak":        0.30,
			"minimal":     0,
		},
		MetricsNamespace:   "kairos",
		MetricsSubsystem:   "affinity",
		TunerGridStep:      0.1,
		TunerMaxCandidates: 10_000,
		TunerMaxIterations: 200,
	}
}

// StoreTimeout returns the per-call store deadline.
func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutMS) * time.Millisecond
}

// StoreBackoff returns the pause between store retries.
func (c *Config) StoreBackoff() time.Duration {
	return time.Duration(c.StoreBackoffMS) * time.Millisecond
}

// BreakerOpenTimeout returns how long the breaker stays open before probing.
func (c *Config) BreakerOpenTimeout() time.Duration {
	return time.Duration(c.BreakerOpenTimeoutMS) * time.Millisecond
}
