package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/xtxerr/atmolog/internal/errors"
	"github.com/xtxerr/atmolog/internal/logging"
	"github.com/xtxerr/atmolog/internal/metrics"
	"github.com/xtxerr/atmolog/internal/storage/aggregate"
	"github.com/xtxerr/atmolog/internal/storage/config"
	"github.com/xtxerr/atmolog/internal/storage/export"
	"github.com/xtxerr/atmolog/internal/storage/flatlog"
	"github.com/xtxerr/atmolog/internal/storage/medium"
	"github.com/xtxerr/atmolog/internal/storage/query"
	"github.com/xtxerr/atmolog/internal/storage/record"
	"github.com/xtxerr/atmolog/internal/storage/ringlog"
	"github.com/xtxerr/atmolog/internal/storage/types"
)

// Store owns the reading log and the aggregate. Every operation runs under
// one mutex, so appends, exports and clears never interleave.
type Store struct {
	mu sync.Mutex

	config *config.Config

	// Components
	medium    medium.Medium
	log       types.Log
	tracker   *aggregate.Tracker
	query     *query.Service
	analytics *query.Analytics
	metrics   *metrics.Metrics

	summaries singleflight.Group
	logger    *slog.Logger

	// State
	closed    bool
	startTime time.Time
	lastDrop  time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithMedium backs the store with m instead of the configured medium.
func WithMedium(m medium.Medium) Option {
	return func(s *Store) { s.medium = m }
}

// WithMetrics records store activity on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New creates a store. An unavailable medium is not an error: the store
// starts empty and ignores writes until the medium appears.
func New(cfg *config.Config, opts ...Option) (*Store, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}

	s := &Store{
		config:    cfg,
		logger:    logging.Component("store"),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.medium == nil {
		s.medium = newMedium(cfg, s.logger)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}

	log, err := openLog(cfg, s.medium)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	s.log = log

	s.tracker = aggregate.Load(s.medium, cfg.AggregateObject, record.Options{
		LegacySentinels: cfg.LegacySentinels,
	})

	s.query = query.New(log, s.tracker, query.Options{
		SampleInterval: cfg.SampleInterval,
		WindowMax:      cfg.WindowMax,
		SketchAccuracy: cfg.SketchAccuracy(),
		Export: export.Options{
			Compression:  cfg.Features.Compression.Algorithm,
			RowGroupSize: cfg.Features.Compression.RowGroupSize,
		},
		Available: s.medium.Available,
	})

	if cfg.Query.Enabled {
		a, err := query.NewAnalytics(query.AnalyticsConfig{
			MemoryLimit: cfg.Query.MemoryLimit,
			Timeout:     cfg.Query.Timeout,
			MaxRows:     cfg.Query.MaxRows,
			TempDir:     cfg.Query.TempDir,
		})
		if err != nil {
			log.Close()
			return nil, fmt.Errorf("create analytics: %w", err)
		}
		s.analytics = a
	}

	s.metrics.SetLog(log.Len(), log.Cap())
	s.logger.Info("store opened",
		"layout", log.Layout(),
		"capacity", log.Cap(),
		"readings", log.Len(),
		"available", s.medium.Available())

	return s, nil
}

func newMedium(cfg *config.Config, logger *slog.Logger) medium.Medium {
	if cfg.Medium == config.MediumMemory {
		return medium.NewMemory()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		logger.Warn("data directory unavailable", "dir", cfg.DataDir, "error", err)
	}
	return medium.NewDir(cfg.DataDir)
}

func openLog(cfg *config.Config, m medium.Medium) (types.Log, error) {
	layout, err := types.ParseLayout(cfg.Layout)
	if err != nil {
		return nil, err
	}
	switch layout {
	case types.LayoutFlat:
		return flatlog.Open(m, cfg.LogObject, cfg.Capacity)
	default:
		return ringlog.Open(m, cfg.LogObject, cfg.Capacity)
	}
}

// Append stores r and folds it into the aggregate. A reading the log fails
// to store is dropped and never reaches the aggregate. Storage failures are
// logged and never returned; the sampler has nothing useful to do with them.
func (s *Store) Append(r types.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if !s.medium.Available() {
		// One diagnostic per minute while the medium is missing.
		if time.Since(s.lastDrop) >= time.Minute {
			s.logger.Warn("storage unavailable, reading dropped", "reading", r.String())
			s.lastDrop = time.Now()
		}
		s.metrics.ObserveAppend(0, false, true, false)
		return
	}

	start := time.Now()
	evicted, err := s.log.Append(r)
	if err != nil {
		// The log did not keep r, so neither does the aggregate.
		s.logger.Warn("append failed, reading dropped", "error", err, "readings", s.log.Len())
		s.metrics.ObserveAppend(time.Since(start), false, true, false)
		return
	}
	changed := s.tracker.Observe(r)

	s.metrics.ObserveAppend(time.Since(start), evicted, false, changed)
	s.metrics.SetLog(s.log.Len(), s.log.Cap())
}

// View runs fn with exclusive access to the query service.
func (s *Store) View(fn func(q *query.Service) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.ErrClosed
	}
	return fn(s.query)
}

// WriteFull encodes every reading to w.
func (s *Store) WriteFull(w io.Writer, f export.Format) (int, error) {
	var n int
	err := s.View(func(q *query.Service) error {
		var err error
		n, err = q.WriteFull(w, f)
		return err
	})
	return n, err
}

// WriteWindow encodes the k newest readings to w, capped at the window max.
func (s *Store) WriteWindow(w io.Writer, f export.Format, k int) (int, error) {
	var n int
	err := s.View(func(q *query.Service) error {
		var err error
		n, err = q.WriteWindow(w, f, k)
		return err
	})
	return n, err
}

// Aggregate returns the extrema of every reading since the last clear.
func (s *Store) Aggregate() types.Aggregate {
	var agg types.Aggregate
	s.View(func(q *query.Service) error {
		agg = q.Aggregate()
		return nil
	})
	return agg
}

// Clear empties the log and resets the aggregate. It reports whether both
// succeeded.
func (s *Store) Clear() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	ok := s.query.Clear()
	s.metrics.ObserveClear(ok)
	s.metrics.SetLog(s.log.Len(), s.log.Cap())
	return ok
}

// Len returns the number of retained readings. It is zero while the
// medium is unavailable.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query.Len()
}

// Summary computes statistics over the k newest readings. Concurrent calls
// for the same k share one computation.
func (s *Store) Summary(ctx context.Context, k int) (aggregate.Summary, error) {
	if k < 0 {
		k = 0
	}
	ch := s.summaries.DoChan(strconv.Itoa(k), func() (any, error) {
		var sum aggregate.Summary
		err := s.View(func(q *query.Service) error {
			var err error
			sum, err = q.Summary(k)
			return err
		})
		return sum, err
	})

	select {
	case <-ctx.Done():
		return aggregate.Summary{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return aggregate.Summary{}, res.Err
		}
		return res.Val.(aggregate.Summary), nil
	}
}

// ExecuteSQL runs a read-only query against a snapshot of the log. The lock
// is held only while the snapshot is written.
func (s *Store) ExecuteSQL(ctx context.Context, sql string) (*query.SQLResult, error) {
	if s.analytics == nil {
		return nil, fmt.Errorf("%w: analytics disabled", errors.ErrInvalidArgument)
	}
	return s.analytics.ExecuteSQL(ctx, sql, func(w io.Writer) error {
		_, err := s.WriteFull(w, export.FormatParquet)
		return err
	})
}

// SetSampleInterval applies a new sample interval to age labels.
func (s *Store) SetSampleInterval(min uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if min == 0 || min == s.config.SampleInterval {
		return
	}
	s.logger.Info("sample interval changed", "from", s.config.SampleInterval, "to", min)
	s.config.SampleInterval = min
	s.query.SetSampleInterval(min)
}

// SampleInterval returns the current sample interval in minutes.
func (s *Store) SampleInterval() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config.SampleInterval
}

// Metrics returns the store's collectors.
func (s *Store) Metrics() *metrics.Metrics {
	return s.metrics
}

// Config returns the configuration the store was opened with.
func (s *Store) Config() *config.Config {
	return s.config
}

// Close releases the log and the analytics engine.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if err := s.log.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close log: %w", err))
	}
	if s.analytics != nil {
		if err := s.analytics.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close analytics: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Stats returns combined statistics.
func (s *Store) Stats() StoreStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := StoreStats{
		Layout:           s.log.Layout().String(),
		Len:              s.query.Len(),
		Cap:              s.log.Cap(),
		SampleInterval:   s.config.SampleInterval,
		WindowMax:        s.query.Options().WindowMax,
		StorageAvailable: s.medium.Available(),
		Uptime:           time.Since(s.startTime).Round(time.Second).String(),
		Query:            s.query.Stats(),
		Aggregate:        s.tracker.Stats(),
		Requirements:     s.config.CalculateRequirements(),
	}

	if u, err := s.medium.Usage(); err == nil {
		st.Usage = u
		s.metrics.StorageBytes.Set(float64(u.Bytes))
	}

	switch l := s.log.(type) {
	case *flatlog.Log:
		fs := l.Stats()
		st.Flat = &fs
	case *ringlog.Log:
		rs := l.Stats()
		st.Ring = &rs
	}

	if s.analytics != nil {
		as := s.analytics.Stats()
		st.Analytics = &as
	}
	return st
}

// StoreStats holds combined statistics.
type StoreStats struct {
	Layout           string                 `json:"layout"`
	Len              int                    `json:"len"`
	Cap              int                    `json:"cap"`
	SampleInterval   uint32                 `json:"sample_interval"`
	WindowMax        int                    `json:"window_max"`
	StorageAvailable bool                   `json:"storage_available"`
	Uptime           string                 `json:"uptime"`
	Usage            medium.Usage           `json:"usage"`
	Query            query.Stats            `json:"query"`
	Aggregate        aggregate.TrackerStats `json:"aggregate"`
	Flat             *flatlog.Stats         `json:"flat,omitempty"`
	Ring             *ringlog.Stats         `json:"ring,omitempty"`
	Analytics        *query.AnalyticsStats  `json:"analytics,omitempty"`
	Requirements     config.Requirements    `json:"-"`
}
