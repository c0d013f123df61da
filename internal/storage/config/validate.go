package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/xtxerr/atmolog/internal/storage/flatlog"
	"github.com/xtxerr/atmolog/internal/storage/ringlog"
	"github.com/xtxerr/atmolog/internal/storage/types"
	"github.com/xtxerr/atmolog/internal/validation"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	// Medium
	switch c.Medium {
	case MediumDir:
		if c.DataDir == "" {
			errs = append(errs, errors.New("data_dir is required for the dir medium"))
		}
	case MediumMemory:
	default:
		errs = append(errs, fmt.Errorf("medium must be one of: %s, %s", MediumDir, MediumMemory))
	}

	if _, err := types.ParseLayout(c.Layout); err != nil {
		errs = append(errs, fmt.Errorf("layout: %w", err))
	}

	// Capacity and window
	if c.Capacity <= 0 {
		errs = append(errs, errors.New("capacity must be positive"))
	}
	if c.SampleInterval == 0 {
		errs = append(errs, errors.New("sample_interval must be positive"))
	}
	if c.WindowMax <= 0 {
		errs = append(errs, errors.New("window_max must be positive"))
	}

	// Object names
	if err := validObjectName(c.LogObject); err != nil {
		errs = append(errs, fmt.Errorf("log_object: %w", err))
	}
	if err := validObjectName(c.AggregateObject); err != nil {
		errs = append(errs, fmt.Errorf("aggregate_object: %w", err))
	}
	if c.LogObject != "" && collides(c.LogObject, c.AggregateObject) {
		errs = append(errs, fmt.Errorf("aggregate_object %q collides with an object of log_object %q",
			c.AggregateObject, c.LogObject))
	}

	// Features
	if err := c.Features.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("features: %w", err))
	}

	// Query
	if err := c.Query.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("query: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func validObjectName(name string) error {
	return validation.ValidateObjectName(name)
}

// collides reports whether agg names an object either log layout derives
// from logName. Both layouts are checked so a later layout switch is safe.
func collides(logName, agg string) bool {
	names := append(flatlog.ObjectNames(logName), ringlog.ObjectNames(logName)...)
	return slices.Contains(names, agg)
}

// Validate checks the features configuration.
func (c *FeaturesConfig) Validate() error {
	var errs []error

	// Percentile
	if c.Percentile.Enabled {
		if c.Percentile.Accuracy <= 0 || c.Percentile.Accuracy >= 1 {
			errs = append(errs, errors.New("percentile.accuracy must be between 0 and 1"))
		}
	}

	// Compression
	validAlgorithms := map[string]bool{
		"snappy": true,
		"zstd":   true,
		"lz4":    true,
		"gzip":   true,
		"none":   true,
		"":       true, // Empty means none
	}
	if !validAlgorithms[c.Compression.Algorithm] {
		errs = append(errs, errors.New("compression.algorithm must be one of: snappy, zstd, lz4, gzip, none"))
	}

	if c.Compression.RowGroupSize < 0 {
		errs = append(errs, errors.New("compression.row_group_size must be non-negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the query configuration.
func (c *QueryConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	var errs []error

	if c.Timeout <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}

	if c.MaxRows <= 0 {
		errs = append(errs, errors.New("max_rows must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsureDirectories creates the data directory for the dir medium.
func (c *Config) EnsureDirectories() error {
	if c.Medium != MediumDir {
		return nil
	}

	dirs := []string{c.DataDir}
	if c.Query.TempDir != "" {
		dirs = append(dirs, c.Query.TempDir)
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}

// ObjectPaths returns the on-disk paths the configured layout uses.
func (c *Config) ObjectPaths() []string {
	layout, _ := types.ParseLayout(c.Layout)

	var names []string
	switch layout {
	case types.LayoutFlat:
		names = []string{c.LogObject}
	default:
		names = []string{c.LogObject + ringlog.ArenaSuffix, c.LogObject + ringlog.MetaSuffix}
	}
	names = append(names, c.AggregateObject)

	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(c.DataDir, n)
	}
	return paths
}
