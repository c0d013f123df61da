// Package loader - Configuration Types
//
// Defines the YAML configuration structure for atmologd.
//
//	┌──────────────────────────────────────────────┐
//	│                 config.yaml                  │
//	├──────────────────────────────────────────────┤
//	│  listen:    HTTP address                     │
//	│  log:       level and format                 │
//	│  storage:   log layout, capacity, interval   │
//	│  source:    simulated or SNMP sensor         │
//	│  sampler:   tick and read timeout            │
//	│  server:    CORS, SQL body limit, shutdown   │
//	│  watch:     reload on file change            │
//	└──────────────────────────────────────────────┘
package loader

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xtxerr/atmolog/config"
	"github.com/xtxerr/atmolog/internal/sampler"
	storageconfig "github.com/xtxerr/atmolog/internal/storage/config"
)

// =============================================================================
// Root Configuration
// =============================================================================

// Config is the root configuration structure for atmologd.
type Config struct {
	// Listen is the HTTP listen address.
	// Format: "host:port" or ":port"
	Listen string `yaml:"listen"`

	// Log configures logging.
	Log LogConfig `yaml:"log"`

	// Storage configures the reading store.
	Storage storageconfig.Config `yaml:"storage"`

	// Source selects the sensor.
	Source SourceConfig `yaml:"source"`

	// Sampler configures the sampling loop.
	Sampler SamplerConfig `yaml:"sampler"`

	// Server configures the HTTP layer.
	Server ServerConfig `yaml:"server"`

	// Watch configures config file reloads.
	Watch WatchConfig `yaml:"watch"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

// Source kinds.
const (
	SourceSimulated = "simulated"
	SourceSNMP      = "snmp"
)

// SourceConfig selects and configures the sensor.
type SourceConfig struct {
	// Kind is "simulated" or "snmp".
	Kind string `yaml:"kind"`

	// Seed seeds the simulated source.
	Seed int64 `yaml:"seed"`

	// SNMP configures the SNMP source.
	SNMP sampler.SNMPConfig `yaml:"snmp"`
}

// SamplerConfig configures the sampling loop.
type SamplerConfig struct {
	// TickInterval is how often the loop checks whether a sample is due.
	TickInterval Duration `yaml:"tick_interval"`

	// SourceTimeout bounds one sensor read.
	SourceTimeout Duration `yaml:"source_timeout"`
}

// ServerConfig configures the HTTP layer.
type ServerConfig struct {
	// CORSOrigins lists allowed origins. Empty disables CORS headers.
	CORSOrigins []string `yaml:"cors_origins"`

	// MaxSQLBody limits the size of a posted SQL query.
	MaxSQLBody ByteSize `yaml:"max_sql_body"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// WatchConfig configures config file reloads.
type WatchConfig struct {
	// Enabled reloads the sample interval when the file changes.
	Enabled bool `yaml:"enabled"`

	// Debounce coalesces bursts of file events.
	Debounce Duration `yaml:"debounce"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:  config.DefaultListenAddress,
		Log:     LogConfig{Level: "info", Format: "text"},
		Storage: *storageconfig.DefaultConfig(),
		Source:  SourceConfig{Kind: SourceSimulated, Seed: 1},
		Sampler: SamplerConfig{
			TickInterval:  Duration(config.DefaultTickInterval),
			SourceTimeout: Duration(config.DefaultSourceTimeout),
		},
		Server: ServerConfig{
			MaxSQLBody:      ByteSize(config.DefaultMaxSQLBodyBytes),
			ShutdownTimeout: Duration(config.DefaultShutdownTimeout),
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: Duration(config.DefaultConfigWatchDebounce),
		},
	}
}

// SampleInterval returns the storage sample interval as a duration.
func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.Storage.SampleInterval) * time.Minute
}

// =============================================================================
// Custom Types
// =============================================================================

// Duration is a time.Duration that can be unmarshaled from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler. Plain numbers are seconds.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if secs, err := strconv.Atoi(s); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// ByteSize is a size in bytes that can be unmarshaled from YAML.
// Supports: "64KB", "1MB", or plain bytes.
type ByteSize int64

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *ByteSize) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	size, err := parseByteSize(s)
	if err != nil {
		return err
	}
	*b = ByteSize(size)
	return nil
}

// parseByteSize parses a size string like "64KB" or "1MB".
func parseByteSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}

	// Longest suffix first so "KB" is not read as "B".
	units := []struct {
		suffix string
		mult   int64
	}{
		{"GB", 1024 * 1024 * 1024},
		{"MB", 1024 * 1024},
		{"KB", 1024},
		{"B", 1},
	}

	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			numStr := strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			n, err := strconv.ParseInt(numStr, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("parse byte size %q: %w", s, err)
			}
			return n * u.mult, nil
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse byte size %q: %w", s, err)
	}
	return n, nil
}

// Bytes returns the size in bytes.
func (b ByteSize) Bytes() int64 {
	return int64(b)
}
