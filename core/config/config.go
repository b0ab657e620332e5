// Package config holds the explicit configuration values passed into each
// component at construction, with layered loading from YAML files and
// environment overrides plus hot reload of a watched file.
package config

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidSampleCount     = errors.New("sample count must be positive")
	ErrInvalidSamplingTime    = errors.New("max sampling time must be positive")
	ErrInvalidWorkers         = errors.New("worker count must not be negative")
	ErrInvalidHorizon         = errors.New("horizon must be at least 1")
	ErrInvalidDiscount        = errors.New("discount factor must be in (0, 1]")
	ErrInvalidMaxActions      = errors.New("max actions must be positive")
	ErrInvalidMaxObservations = errors.New("max observations must be positive")
	ErrInvalidObservationProb = errors.New("min observation probability must be in [0, 1)")
	ErrInvalidSnapshotCache   = errors.New("snapshot cache size must be positive")
)

// Config carries every tunable option of the reasoning core.
type Config struct {
	Sampling SamplingConfig `yaml:"sampling"`
	Planner  PlannerConfig  `yaml:"planner"`
	Learner  LearnerConfig  `yaml:"learner"`
	Cache    CacheConfig    `yaml:"cache"`
}

// SamplingConfig bounds one inference call.
type SamplingConfig struct {
	// SampleCount is the trial budget per query.
	SampleCount int `yaml:"sample_count"`

	// MaxSamplingTime is the wall-clock budget per query. Trials still in
	// flight when it elapses are discarded.
	MaxSamplingTime time.Duration `yaml:"max_sampling_time"`

	// Workers bounds trial concurrency. Zero means one worker per CPU.
	Workers int `yaml:"workers"`
}

// PlannerConfig bounds the forward search.
type PlannerConfig struct {
	// Horizon is the number of decision steps to look ahead.
	Horizon int `yaml:"horizon"`

	// DiscountFactor scales utility one step further out.
	DiscountFactor float64 `yaml:"discount_factor"`

	// MaxActions caps the action branching before lookahead expansion.
	MaxActions int `yaml:"max_actions"`

	// MaxObservations caps how many predicted observations each expansion
	// considers.
	MaxObservations int `yaml:"max_observations"`

	// MinObservationProb drops predicted observations below this mass.
	MinObservationProb float64 `yaml:"min_observation_prob"`

	// Timeout bounds one full planning cycle. Zero means twice the max
	// sampling time.
	Timeout time.Duration `yaml:"timeout"`
}

// LearnerConfig bounds the reward learner.
type LearnerConfig struct {
	// SnapshotCacheSize bounds how many per-action-set state snapshots are
	// retained, evicted least-recently-used.
	SnapshotCacheSize int `yaml:"snapshot_cache_size"`
}

// CacheConfig sizes the read-through query cache.
type CacheConfig struct {
	Enabled     bool          `yaml:"enabled"`
	NumCounters int64         `yaml:"num_counters"`
	MaxCost     int64         `yaml:"max_cost"`
	BufferItems int64         `yaml:"buffer_items"`
	TTL         time.Duration `yaml:"ttl"`
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() *Config {
	return &Config{
		Sampling: SamplingConfig{
			SampleCount:     1000,
			MaxSamplingTime: 250 * time.Millisecond,
			Workers:         0,
		},
		Planner: PlannerConfig{
			Horizon:            2,
			DiscountFactor:     0.9,
			MaxActions:         100,
			MaxObservations:    3,
			MinObservationProb: 0.1,
			Timeout:            0,
		},
		Learner: LearnerConfig{
			SnapshotCacheSize: 32,
		},
		Cache: CacheConfig{
			Enabled:     true,
			NumCounters: 10_000,
			MaxCost:     1 << 16,
			BufferItems: 64,
			TTL:         5 * time.Minute,
		},
	}
}

// PlannerTimeout resolves the effective planning deadline: the configured
// timeout, or twice the max sampling time when unset. The search must never
// outlive roughly two inference calls.
func (c *Config) PlannerTimeout() time.Duration {
	if c.Planner.Timeout > 0 {
		return c.Planner.Timeout
	}
	return 2 * c.Sampling.MaxSamplingTime
}

// Validate checks every option against its documented range.
func (c *Config) Validate() error {
	if c.Sampling.SampleCount <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSampleCount, c.Sampling.SampleCount)
	}
	if c.Sampling.MaxSamplingTime <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSamplingTime, c.Sampling.MaxSamplingTime)
	}
	if c.Sampling.Workers < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, c.Sampling.Workers)
	}
	if c.Planner.Horizon < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidHorizon, c.Planner.Horizon)
	}
	if c.Planner.DiscountFactor <= 0 || c.Planner.DiscountFactor > 1 {
		return fmt.Errorf("%w: %g", ErrInvalidDiscount, c.Planner.DiscountFactor)
	}
	if c.Planner.MaxActions <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxActions, c.Planner.MaxActions)
	}
	if c.Planner.MaxObservations <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxObservations, c.Planner.MaxObservations)
	}
	if c.Planner.MinObservationProb < 0 || c.Planner.MinObservationProb >= 1 {
		return fmt.Errorf("%w: %g", ErrInvalidObservationProb, c.Planner.MinObservationProb)
	}
	if c.Learner.SnapshotCacheSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSnapshotCache, c.Learner.SnapshotCacheSize)
	}
	return nil
}
