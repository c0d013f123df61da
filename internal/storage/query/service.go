// Package query serves read shapes over the log and aggregate: full and
// windowed exports labelled with ages, the aggregate, clear, summaries and
// ad-hoc SQL.
//
// Service is not synchronized. The store runs every call inside its single
// execution context.
package query

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/xtxerr/atmolog/config"
	"github.com/xtxerr/atmolog/internal/logging"
	"github.com/xtxerr/atmolog/internal/storage/aggregate"
	"github.com/xtxerr/atmolog/internal/storage/export"
	"github.com/xtxerr/atmolog/internal/storage/types"
)

// AggregateStore is the part of the aggregate tracker the service uses.
type AggregateStore interface {
	Snapshot() types.Aggregate
	Clear() error
}

// Options configures the service.
type Options struct {
	// SampleInterval is the spacing between readings in minutes.
	SampleInterval uint32

	// WindowMax bounds windowed exports.
	WindowMax int

	// SketchAccuracy is the relative accuracy of summary percentiles.
	SketchAccuracy float64

	// Export configures encoders.
	Export export.Options

	// Available reports whether the backing storage can be read. While it
	// returns false the service behaves as an empty log with an unset
	// aggregate. Nil means always available.
	Available func() bool
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		SampleInterval: config.DefaultSampleIntervalMin,
		WindowMax:      config.DefaultWindowMax,
		SketchAccuracy: config.DefaultSketchAccuracy,
		Export:         export.Options{Compression: config.DefaultExportCompression},
	}
}

// Service provides read access over a log and an aggregate tracker.
type Service struct {
	log  types.Log
	agg  AggregateStore
	opts Options

	logger *slog.Logger
	stats  Stats
}

// Stats holds query statistics.
type Stats struct {
	Exports       int64 `json:"exports"`
	RowsExported  int64 `json:"rows_exported"`
	Summaries     int64 `json:"summaries"`
	Clears        int64 `json:"clears"`
	ClearFailures int64 `json:"clear_failures"`
}

// New creates a query service.
func New(log types.Log, agg AggregateStore, opts Options) *Service {
	if opts.SampleInterval == 0 {
		opts.SampleInterval = config.DefaultSampleIntervalMin
	}
	if opts.WindowMax <= 0 {
		opts.WindowMax = config.DefaultWindowMax
	}
	return &Service{
		log:    log,
		agg:    agg,
		opts:   opts,
		logger: logging.Component("query"),
	}
}

// Options returns the effective options.
func (s *Service) Options() Options {
	return s.opts
}

// SetSampleInterval changes the interval used for age labels.
func (s *Service) SetSampleInterval(min uint32) {
	if min > 0 {
		s.opts.SampleInterval = min
	}
}

func (s *Service) available() bool {
	return s.opts.Available == nil || s.opts.Available()
}

func (s *Service) cursor(from int) types.Cursor {
	if !s.available() {
		return types.EmptyCursor{}
	}
	return s.log.Cursor(from)
}

// Len returns the number of readable records.
func (s *Service) Len() int {
	if !s.available() {
		return 0
	}
	return s.log.Len()
}

// ExportFull returns every record from oldest to newest.
// Each call rescans from the start.
func (s *Service) ExportFull() *Rows {
	s.stats.Exports++
	return newRows(s.cursor(0), 0, s.opts.SampleInterval, &s.stats)
}

// ExportWindow returns the min(k, n) newest records, with k capped at
// WindowMax. k <= 0 selects WindowMax.
func (s *Service) ExportWindow(k int) *Rows {
	if k <= 0 || k > s.opts.WindowMax {
		k = s.opts.WindowMax
	}
	return s.ExportLast(k)
}

// ExportLast returns the min(k, n) newest records without the WindowMax cap.
// Ages are labelled against the full log length.
func (s *Service) ExportLast(k int) *Rows {
	s.stats.Exports++

	c := s.cursor(0)
	n := c.Len()
	if k < 0 {
		k = 0
	}
	start := 0
	if k < n {
		start = n - k
	}
	c.Seek(start)
	return newRows(c, start, s.opts.SampleInterval, &s.stats)
}

// WriteFull encodes the full export to w.
func (s *Service) WriteFull(w io.Writer, f export.Format) (int, error) {
	return s.write(w, f, s.ExportFull())
}

// WriteWindow encodes the windowed export to w.
func (s *Service) WriteWindow(w io.Writer, f export.Format, k int) (int, error) {
	return s.write(w, f, s.ExportWindow(k))
}

// WriteLast encodes the k newest records to w.
func (s *Service) WriteLast(w io.Writer, f export.Format, k int) (int, error) {
	return s.write(w, f, s.ExportLast(k))
}

func (s *Service) write(w io.Writer, f export.Format, rows *Rows) (int, error) {
	defer rows.Close()

	enc, err := export.NewEncoder(w, f, s.opts.Export)
	if err != nil {
		return 0, err
	}
	n, err := export.Copy(enc, rows)
	if err != nil {
		return n, fmt.Errorf("export %s: %w", f, err)
	}
	return n, nil
}

// Aggregate returns the six extrema.
func (s *Service) Aggregate() types.Aggregate {
	if !s.available() {
		return types.Aggregate{}
	}
	return s.agg.Snapshot()
}

// Clear removes every record and resets the aggregate. It reports true only
// if both succeeded. A partial failure is not rolled back; calling Clear
// again is safe.
func (s *Service) Clear() bool {
	s.stats.Clears++

	logErr := s.log.Clear()
	if logErr != nil {
		s.logger.Warn("clearing log failed", "error", logErr)
	}
	aggErr := s.agg.Clear()
	if aggErr != nil {
		s.logger.Warn("clearing aggregate failed", "error", aggErr)
	}

	if logErr != nil || aggErr != nil {
		s.stats.ClearFailures++
		return false
	}
	s.logger.Info("store cleared")
	return true
}

// Summary computes per-field statistics over the k newest records.
// k <= 0 summarizes the whole log.
func (s *Service) Summary(k int) (aggregate.Summary, error) {
	s.stats.Summaries++

	var rows *Rows
	if k > 0 {
		rows = s.ExportLast(k)
	} else {
		rows = s.ExportFull()
	}
	defer rows.Close()

	sum := aggregate.NewSummarizer(s.opts.SketchAccuracy)
	for rows.Next() {
		r := rows.Row()
		sum.Add(types.Reading{
			Humidity:    r.Humidity,
			Temperature: r.Temperature,
			Pressure:    r.Pressure,
			AgeMinutes:  r.AgeMinutes,
		})
	}
	if err := rows.Err(); err != nil {
		return aggregate.Summary{}, err
	}
	return sum.Result(), nil
}

// Stats returns a copy of the statistics.
func (s *Service) Stats() Stats {
	return s.stats
}
