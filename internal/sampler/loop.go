package sampler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xtxerr/atmolog/config"
	"github.com/xtxerr/atmolog/internal/logging"
	"github.com/xtxerr/atmolog/internal/storage/types"
)

// Appender receives readings. The store never reports append failures.
type Appender interface {
	Append(r types.Reading)
}

// LoopConfig configures a Loop.
type LoopConfig struct {
	// SampleInterval is the spacing between readings.
	SampleInterval time.Duration

	// TickInterval is how often the loop asks the ticker.
	TickInterval time.Duration

	// SourceTimeout bounds one sensor read.
	SourceTimeout time.Duration

	// Clock defaults to a SystemClock.
	Clock Clock

	// OnSourceError is called after a failed read.
	OnSourceError func(error)
}

// Loop polls the ticker and appends a reading whenever one is due.
type Loop struct {
	mu     sync.Mutex
	ticker *Ticker

	store  Appender
	source Source
	cfg    LoopConfig
	logger *slog.Logger

	samples int64
	errors  int64
}

// NewLoop creates a sampling loop.
func NewLoop(store Appender, source Source, cfg LoopConfig) *Loop {
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = config.DefaultSampleIntervalMin * time.Minute
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = config.DefaultTickInterval
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = config.DefaultSourceTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = NewSystemClock()
	}
	return &Loop{
		ticker: NewTicker(cfg.SampleInterval),
		store:  store,
		source: source,
		cfg:    cfg,
		logger: logging.Component("sampler"),
	}
}

// Run ticks until ctx is canceled.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("sampler started", "interval", l.Interval(), "tick", l.cfg.TickInterval)

	t := time.NewTicker(l.cfg.TickInterval)
	defer t.Stop()

	for {
		l.Step(ctx)

		select {
		case <-ctx.Done():
			l.logger.Info("sampler stopped", "samples", l.Samples())
			return nil
		case <-t.C:
		}
	}
}

// Step takes a sample if one is due and reports whether a reading was
// appended. A failed read skips the tick; the next attempt waits a full
// interval.
func (l *Loop) Step(ctx context.Context) bool {
	now := l.cfg.Clock.NowMs()

	l.mu.Lock()
	due := l.ticker.Due(now)
	l.mu.Unlock()
	if !due {
		return false
	}

	readCtx, cancel := context.WithTimeout(ctx, l.cfg.SourceTimeout)
	m, err := l.source.Read(readCtx)
	cancel()
	if err != nil {
		l.mu.Lock()
		l.errors++
		l.mu.Unlock()
		l.logger.Warn("sensor read failed", "error", err)
		if l.cfg.OnSourceError != nil {
			l.cfg.OnSourceError(err)
		}
		return false
	}

	l.store.Append(m.Reading(uint32(now / time.Minute.Milliseconds())))

	l.mu.Lock()
	l.samples++
	l.mu.Unlock()
	return true
}

// SetInterval applies a new sample interval.
func (l *Loop) SetInterval(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if d > 0 && d != l.ticker.Interval() {
		l.logger.Info("sample interval changed", "from", l.ticker.Interval(), "to", d)
		l.ticker.SetInterval(d)
	}
}

// Interval returns the current sample interval.
func (l *Loop) Interval() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ticker.Interval()
}

// Samples returns the number of appended readings.
func (l *Loop) Samples() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.samples
}

// Errors returns the number of failed reads.
func (l *Loop) Errors() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errors
}
