// Package config provides configuration defaults for atmolog.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml, environment variables or
// command line flags.
package config

import "time"

// =============================================================================
// Store Defaults
// =============================================================================

const (
	// DefaultCapacity is the maximum number of retained readings.
	// 1440 readings cover 24h at a 1-minute sample interval.
	// Override via config: storage.capacity, env ATMOLOG_CAPACITY
	DefaultCapacity = 1440

	// DefaultSampleIntervalMin is the spacing between appended readings in minutes.
	// Override via config: storage.sample_interval, env ATMOLOG_SAMPLE_INTERVAL
	DefaultSampleIntervalMin = 1

	// DefaultWindowMax is the maximum number of points in a windowed export.
	// Override via config: storage.window_max, env ATMOLOG_WINDOW_MAX
	DefaultWindowMax = 300

	// DefaultLayout is the persisted log layout for new installations.
	// "ring" gives O(1) eviction; "flat" is the legacy rewrite layout.
	DefaultLayout = "ring"

	// DefaultDataDir is where the log and aggregate objects live.
	DefaultDataDir = "/var/lib/atmolog"

	// DefaultLogObject is the base name of the reading log object.
	DefaultLogObject = "readings"

	// DefaultAggregateObject is the name of the persisted min/max record.
	DefaultAggregateObject = "minmax.bin"
)

// =============================================================================
// Sampler Defaults
// =============================================================================

const (
	// DefaultTickInterval is how often the sampling loop asks whether a sample is due.
	// Matches the one second loop delay of the sensor firmware.
	DefaultTickInterval = time.Second

	// DefaultSourceTimeout bounds a single sensor read.
	DefaultSourceTimeout = 5 * time.Second

	// DefaultSNMPPort is the standard SNMP agent port.
	DefaultSNMPPort = 161

	// DefaultSNMPRetries is the number of SNMP retries per read.
	DefaultSNMPRetries = 1
)

// =============================================================================
// Server Defaults
// =============================================================================

const (
	// DefaultListenAddress is the default HTTP listen address.
	// Override via config: listen
	DefaultListenAddress = "0.0.0.0:8080"

	// DefaultShutdownTimeout bounds graceful HTTP shutdown.
	DefaultShutdownTimeout = 10 * time.Second

	// DefaultMaxSQLBodyBytes limits the size of a posted SQL query.
	DefaultMaxSQLBodyBytes = 64 * 1024

	// DefaultConfigWatchDebounce coalesces bursts of config file events.
	DefaultConfigWatchDebounce = 250 * time.Millisecond
)

// =============================================================================
// Query Defaults
// =============================================================================

const (
	// DefaultSketchAccuracy is the DDSketch relative accuracy for summaries.
	DefaultSketchAccuracy = 0.01

	// DefaultQueryTimeout bounds analytics queries.
	DefaultQueryTimeout = 30 * time.Second

	// DefaultQueryMaxRows caps rows returned from an analytics query.
	DefaultQueryMaxRows = 10000

	// DefaultQueryMemoryLimit is the DuckDB memory limit.
	DefaultQueryMemoryLimit = "256MB"

	// DefaultExportCompression is the Parquet export codec.
	DefaultExportCompression = "zstd"
)
