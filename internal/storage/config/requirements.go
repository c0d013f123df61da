package config

import (
	"fmt"
	"time"

	"github.com/xtxerr/atmolog/internal/storage/record"
	"github.com/xtxerr/atmolog/internal/storage/ringlog"
	"github.com/xtxerr/atmolog/internal/storage/types"
)

// Requirements is the storage footprint implied by a configuration.
type Requirements struct {
	// Persisted objects at full capacity
	LogBytes       int64
	MetaBytes      int64
	AggregateBytes int64
	TotalBytes     int64

	// PeakBytes includes the temporary copy made during a flat rewrite
	// or a ring capacity migration.
	PeakBytes int64

	// Bytes written per append once the log is full.
	WriteBytesPerAppend int64

	// Span is the time covered by a full log.
	Span time.Duration

	// Per day
	AppendsPerDay    int64
	WriteBytesPerDay int64
}

// CalculateRequirements computes the storage footprint of the configuration.
func (c *Config) CalculateRequirements() Requirements {
	r := Requirements{}
	layout, _ := types.ParseLayout(c.Layout)

	r.LogBytes = int64(c.Capacity) * record.Size
	r.AggregateBytes = record.AggregateSize

	switch layout {
	case types.LayoutFlat:
		// Eviction rewrites every surviving record into a temporary object.
		r.WriteBytesPerAppend = r.LogBytes
		r.PeakBytes = 2 * r.LogBytes
	default:
		r.MetaBytes = ringlog.MetaSize
		// One slot plus the meta record.
		r.WriteBytesPerAppend = record.Size + ringlog.MetaSize
		r.PeakBytes = 2*r.LogBytes + r.MetaBytes
	}

	r.TotalBytes = r.LogBytes + r.MetaBytes + r.AggregateBytes
	r.PeakBytes += r.AggregateBytes

	if c.SampleInterval > 0 {
		interval := time.Duration(c.SampleInterval) * time.Minute
		r.Span = time.Duration(c.Capacity) * interval
		r.AppendsPerDay = int64(24 * time.Hour / interval)
		r.WriteBytesPerDay = r.AppendsPerDay * r.WriteBytesPerAppend
	}

	return r
}

// FormatRequirements returns a human-readable summary of requirements.
func (r *Requirements) FormatRequirements() string {
	return fmt.Sprintf(`Storage Requirements
====================

Objects:
  Log:               %s
  Meta:              %s
  Aggregate:         %s
  Total:             %s
  Peak:              %s

Writes:
  Per append:        %s
  Appends/day:       %s
  Per day:           %s

Retention:
  Span:              %s
`,
		formatBytes(r.LogBytes),
		formatBytes(r.MetaBytes),
		formatBytes(r.AggregateBytes),
		formatBytes(r.TotalBytes),
		formatBytes(r.PeakBytes),
		formatBytes(r.WriteBytesPerAppend),
		formatNumber(r.AppendsPerDay),
		formatBytes(r.WriteBytesPerDay),
		r.Span,
	)
}

// formatBytes formats bytes as a human-readable string.
func formatBytes(b int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatNumber formats a number with a magnitude suffix.
func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}
