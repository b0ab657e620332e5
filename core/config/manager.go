package config

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// Manager owns the active configuration. Loads build a fresh Config from
// defaults, file and environment, validate it, then swap it in atomically;
// readers never see a partially applied configuration.
type Manager struct {
	current   atomic.Pointer[Config]
	path      string
	watchers  []func(*Config)
	watcherMu sync.RWMutex
	stopWatch chan struct{}
	watchOnce sync.Once
}

// NewManager returns a manager seeded with defaults. The path may be empty
// when no configuration file is used.
func NewManager(path string) *Manager {
	m := &Manager{
		path:      path,
		stopWatch: make(chan struct{}),
	}
	m.current.Store(DefaultConfig())
	return m
}

// Get returns the active configuration. The returned value must be treated
// as read-only.
func (m *Manager) Get() *Config {
	return m.current.Load()
}

// Path returns the configuration file path, or empty when none is set.
func (m *Manager) Path() string {
	return m.path
}

// Load rebuilds the configuration from defaults, the configured file and
// environment overrides. An invalid result leaves the active configuration
// untouched.
func (m *Manager) Load() error {
	cfg := DefaultConfig()

	if err := m.loadYAMLFile(m.path, cfg); err != nil {
		return fmt.Errorf("config file: %w", err)
	}

	m.applyEnvironment(cfg)

	if err := cfg.Validate(); err != nil {
		return err
	}

	m.current.Store(cfg)
	m.notifyWatchers(cfg)

	return nil
}

func (m *Manager) loadYAMLFile(path string, cfg *Config) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func (m *Manager) applyEnvironment(cfg *Config) {
	if v := os.Getenv("VOLITION_SAMPLE_COUNT"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Sampling.SampleCount = n
		}
	}
	if v := os.Getenv("VOLITION_MAX_SAMPLING_TIME"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sampling.MaxSamplingTime = d
		}
	}
	if v := os.Getenv("VOLITION_WORKERS"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Sampling.Workers = n
		}
	}
	if v := os.Getenv("VOLITION_HORIZON"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Planner.Horizon = n
		}
	}
	if v := os.Getenv("VOLITION_DISCOUNT_FACTOR"); v != "" {
		if f, err := parseFloat(v); err == nil {
			cfg.Planner.DiscountFactor = f
		}
	}
	if v := os.Getenv("VOLITION_MAX_ACTIONS"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Planner.MaxActions = n
		}
	}
	if v := os.Getenv("VOLITION_MAX_OBSERVATIONS"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Planner.MaxObservations = n
		}
	}
	if v := os.Getenv("VOLITION_MIN_OBSERVATION_PROB"); v != "" {
		if f, err := parseFloat(v); err == nil {
			cfg.Planner.MinObservationProb = f
		}
	}
	if v := os.Getenv("VOLITION_PLANNER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Planner.Timeout = d
		}
	}
	if v := os.Getenv("VOLITION_SNAPSHOT_CACHE_SIZE"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Learner.SnapshotCacheSize = n
		}
	}
}

// OnChange registers a callback invoked after every successful load.
func (m *Manager) OnChange(fn func(*Config)) {
	m.watcherMu.Lock()
	m.watchers = append(m.watchers, fn)
	m.watcherMu.Unlock()
}

func (m *Manager) notifyWatchers(cfg *Config) {
	m.watcherMu.RLock()
	watchers := m.watchers
	m.watcherMu.RUnlock()

	for _, fn := range watchers {
		fn(cfg)
	}
}

// Reload re-runs Load.
func (m *Manager) Reload() error {
	return m.Load()
}

// Close stops any file watching started with Watch. Safe to call multiple
// times.
func (m *Manager) Close() error {
	m.watchOnce.Do(func() {
		close(m.stopWatch)
	})
	return nil
}

func parseInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

func parseFloat(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(s, "%f", &f)
	return f, err
}
