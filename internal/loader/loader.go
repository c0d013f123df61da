// Package loader handles configuration file loading, validation, and application.
//
// This package is responsible for:
//   - Loading YAML configuration files
//   - Expanding environment variables
//   - Applying ATMOLOG_* overrides
//   - Applying reloaded configuration to a running daemon
package loader

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xtxerr/atmolog/internal/errors"
	"github.com/xtxerr/atmolog/internal/logging"
)

// Environment overrides.
const (
	EnvCapacity       = "ATMOLOG_CAPACITY"
	EnvSampleInterval = "ATMOLOG_SAMPLE_INTERVAL"
	EnvWindowMax      = "ATMOLOG_WINDOW_MAX"
	EnvDataDir        = "ATMOLOG_DATA_DIR"
	EnvListen         = "ATMOLOG_LISTEN"
)

// =============================================================================
// Load
// =============================================================================

// Load loads configuration from a YAML file. An empty path yields the
// defaults. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := DefaultConfig()
		if err := applyEnv(cfg, os.LookupEnv); err != nil {
			return nil, err
		}
		if err := Validate(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data, os.LookupEnv)
}

// Parse parses YAML after expanding ${VAR} references with lookup.
func Parse(data []byte, lookup func(string) (string, bool)) (*Config, error) {
	expanded := os.Expand(string(data), func(name string) string {
		v, _ := lookup(name)
		return v
	})

	// Start with defaults
	cfg := DefaultConfig()

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("%w: parse config: %v", errors.ErrInvalidConfig, err)
	}

	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv applies ATMOLOG_* overrides.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	errs := errors.NewValidationErrors()

	if v, ok := lookup(EnvCapacity); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs.AddField(EnvCapacity, err.Error())
		} else {
			cfg.Storage.Capacity = n
		}
	}
	if v, ok := lookup(EnvSampleInterval); ok {
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
		if err != nil {
			errs.AddField(EnvSampleInterval, err.Error())
		} else {
			cfg.Storage.SampleInterval = uint32(n)
		}
	}
	if v, ok := lookup(EnvWindowMax); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs.AddField(EnvWindowMax, err.Error())
		} else {
			cfg.Storage.WindowMax = n
		}
	}
	if v, ok := lookup(EnvDataDir); ok && v != "" {
		cfg.Storage.DataDir = v
	}
	if v, ok := lookup(EnvListen); ok && v != "" {
		cfg.Listen = v
	}

	return errs.Err()
}

// =============================================================================
// Validate
// =============================================================================

// Validate validates the configuration.
func Validate(cfg *Config) error {
	errs := errors.NewValidationErrors()

	// Server validation
	if cfg.Listen == "" {
		errs.AddField("listen", "cannot be empty")
	}
	if cfg.Server.MaxSQLBody.Bytes() <= 0 {
		errs.AddField("server.max_sql_body", "must be positive")
	}

	// Logging
	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		errs.AddField("log.level", err.Error())
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		errs.AddField("log.format", "must be text or json")
	}

	// Storage
	if err := cfg.Storage.Validate(); err != nil {
		errs.Add(fmt.Errorf("storage: %w: %w", errors.ErrInvalidConfig, err))
	}

	// Source
	switch cfg.Source.Kind {
	case SourceSimulated:
	case SourceSNMP:
		if err := cfg.Source.SNMP.Validate(); err != nil {
			errs.Add(err)
		}
	default:
		errs.AddField("source.kind", "must be simulated or snmp")
	}

	// Sampler
	if cfg.Sampler.TickInterval.Duration() <= 0 {
		errs.AddField("sampler.tick_interval", "must be positive")
	}
	if cfg.Sampler.TickInterval.Duration() > cfg.SampleInterval() {
		errs.AddField("sampler.tick_interval", "must not exceed the sample interval")
	}

	return errs.Err()
}

// =============================================================================
// Apply
// =============================================================================

// Target is what a reload can change on a running daemon.
type Target interface {
	SetSampleInterval(min uint32)
}

// IntervalSetter receives the new interval as a duration.
type IntervalSetter interface {
	SetInterval(d time.Duration)
}

// ApplyResult describes what a reload changed.
type ApplyResult struct {
	SampleIntervalChanged bool

	// RestartRequired lists changed settings that only take effect after
	// a restart.
	RestartRequired []string
}

// Apply applies the reloadable parts of next to the running daemon and
// reports settings that need a restart.
func Apply(prev, next *Config, store Target, loop IntervalSetter) ApplyResult {
	var result ApplyResult

	if next.Storage.SampleInterval != prev.Storage.SampleInterval {
		store.SetSampleInterval(next.Storage.SampleInterval)
		if loop != nil {
			loop.SetInterval(next.SampleInterval())
		}
		result.SampleIntervalChanged = true
	}

	ps, ns := prev.Storage, next.Storage
	restart := []struct {
		name    string
		changed bool
	}{
		{"listen", prev.Listen != next.Listen},
		{"storage.data_dir", ps.DataDir != ns.DataDir},
		{"storage.medium", ps.Medium != ns.Medium},
		{"storage.layout", ps.Layout != ns.Layout},
		{"storage.capacity", ps.Capacity != ns.Capacity},
		{"storage.window_max", ps.WindowMax != ns.WindowMax},
		{"source", prev.Source.Kind != next.Source.Kind || prev.Source.SNMP != next.Source.SNMP},
	}
	for _, r := range restart {
		if r.changed {
			result.RestartRequired = append(result.RestartRequired, r.name)
		}
	}
	return result
}
