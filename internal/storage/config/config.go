package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	defaults "github.com/xtxerr/atmolog/config"
)

// Config represents the complete storage configuration.
type Config struct {
	// DataDir is the root directory holding the log and aggregate objects.
	DataDir string `yaml:"data_dir"`

	// Medium selects the backing store: "dir" (DataDir) or "memory".
	Medium string `yaml:"medium"`

	// Layout is the persisted log layout: "ring" or "flat".
	Layout string `yaml:"layout"`

	// Capacity is the maximum number of retained readings.
	Capacity int `yaml:"capacity"`

	// SampleInterval is the spacing between appended readings in minutes.
	SampleInterval uint32 `yaml:"sample_interval"`

	// WindowMax caps the number of points in a windowed export.
	WindowMax int `yaml:"window_max"`

	// LogObject is the base name of the reading log.
	LogObject string `yaml:"log_object"`

	// AggregateObject is the name of the persisted min/max record.
	AggregateObject string `yaml:"aggregate_object"`

	// LegacySentinels treats 999/-999 and 9999/-9999 as unset extrema
	// when loading an aggregate written by older firmware.
	LegacySentinels bool `yaml:"legacy_sentinels"`

	// Features configures optional features.
	Features FeaturesConfig `yaml:"features"`

	// Query configures the analytics engine.
	Query QueryConfig `yaml:"query"`
}

// FeaturesConfig configures optional features.
type FeaturesConfig struct {
	// Percentile configures DDSketch percentiles in summaries.
	Percentile PercentileConfig `yaml:"percentile"`

	// Compression configures Parquet export compression.
	Compression CompressionConfig `yaml:"compression"`
}

// PercentileConfig configures DDSketch percentile calculation.
type PercentileConfig struct {
	// Enabled enables percentile calculation.
	Enabled bool `yaml:"enabled"`

	// Accuracy is the relative accuracy (0.01 = 1% error).
	Accuracy float64 `yaml:"accuracy"`
}

// CompressionConfig configures Parquet compression.
type CompressionConfig struct {
	// Algorithm is the compression algorithm: snappy, zstd, lz4, gzip, none.
	Algorithm string `yaml:"algorithm"`

	// RowGroupSize is the number of rows per Parquet row group.
	RowGroupSize int `yaml:"row_group_size"`
}

// QueryConfig configures the analytics engine.
type QueryConfig struct {
	// Enabled turns on SQL queries over log snapshots. Off by default.
	Enabled bool `yaml:"enabled"`

	// MemoryLimit is the DuckDB memory limit.
	MemoryLimit string `yaml:"memory_limit"`

	// Timeout is the query timeout.
	Timeout time.Duration `yaml:"timeout"`

	// MaxRows is the maximum number of rows returned.
	MaxRows int `yaml:"max_rows"`

	// TempDir holds Parquet snapshots while a query runs.
	// Empty uses the system temp directory.
	TempDir string `yaml:"temp_dir"`
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir:         defaults.DefaultDataDir,
		Medium:          MediumDir,
		Layout:          defaults.DefaultLayout,
		Capacity:        defaults.DefaultCapacity,
		SampleInterval:  defaults.DefaultSampleIntervalMin,
		WindowMax:       defaults.DefaultWindowMax,
		LogObject:       defaults.DefaultLogObject,
		AggregateObject: defaults.DefaultAggregateObject,
		Features: FeaturesConfig{
			Percentile: PercentileConfig{
				Enabled:  true,
				Accuracy: defaults.DefaultSketchAccuracy,
			},
			Compression: CompressionConfig{
				Algorithm:    defaults.DefaultExportCompression,
				RowGroupSize: 4096,
			},
		},
		Query: QueryConfig{
			MemoryLimit: defaults.DefaultQueryMemoryLimit,
			Timeout:     defaults.DefaultQueryTimeout,
			MaxRows:     defaults.DefaultQueryMaxRows,
		},
	}
}

// Medium names.
const (
	MediumDir    = "dir"
	MediumMemory = "memory"
)

// SketchAccuracy returns the accuracy passed to summaries.
// Negative disables percentiles.
func (c *Config) SketchAccuracy() float64 {
	if !c.Features.Percentile.Enabled {
		return -1
	}
	return c.Features.Percentile.Accuracy
}
