package aggregate

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/xtxerr/atmolog/internal/errors"
	"github.com/xtxerr/atmolog/internal/logging"
	"github.com/xtxerr/atmolog/internal/storage/medium"
	"github.com/xtxerr/atmolog/internal/storage/record"
	"github.com/xtxerr/atmolog/internal/storage/types"
)

// Tracker holds the running min/max of every reading since the last clear
// and persists it as a single 24-byte record whenever it changes.
type Tracker struct {
	mu sync.Mutex

	m    medium.Medium
	name string
	opts record.Options

	agg   types.Aggregate
	stats TrackerStats
	log   *slog.Logger
}

// TrackerStats holds tracker statistics.
type TrackerStats struct {
	Observations    int64 `json:"observations"`
	Updates         int64 `json:"updates"`
	Persists        int64 `json:"persists"`
	PersistFailures int64 `json:"persist_failures"`
	Clears          int64 `json:"clears"`
	Discarded       bool  `json:"discarded"`
}

// Load reads the persisted aggregate named name from m. An absent,
// unreadable or wrong-sized record starts the tracker unset.
func Load(m medium.Medium, name string, opts record.Options) *Tracker {
	t := &Tracker{
		m:    m,
		name: name,
		opts: opts,
		log:  logging.Component("aggregate"),
	}

	data, err := m.ReadFile(name)
	switch {
	case err == nil:
	case medium.IsNotFound(err):
		return t
	default:
		t.log.Warn("reading aggregate failed, starting unset", "object", name, "error", err)
		return t
	}

	agg, err := record.DecodeAggregate(data, opts)
	if err != nil {
		t.stats.Discarded = true
		t.log.Warn("discarding malformed aggregate", "object", name, "error", err)
		return t
	}
	t.agg = agg
	return t
}

// Observe folds r into the aggregate and reports whether any extremum
// strictly improved. Only then is the record persisted; a persistence
// failure is logged and leaves the in-memory aggregate updated.
func (t *Tracker) Observe(r types.Reading) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.Observations++

	agg, changed := t.agg.Observe(r)
	if !changed {
		return false
	}
	t.agg = agg
	t.stats.Updates++

	if err := t.persist(); err != nil {
		t.log.Warn("persisting aggregate failed", "object", t.name, "error", err)
	}
	return true
}

// Snapshot returns the current aggregate.
func (t *Tracker) Snapshot() types.Aggregate {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.agg
}

// Clear resets every extremum to unset and persists the reset record.
// The in-memory aggregate is reset even if persisting fails.
func (t *Tracker) Clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.agg = types.Aggregate{}
	t.stats.Clears++
	if err := t.persist(); err != nil {
		return fmt.Errorf("clear aggregate: %w", err)
	}
	return nil
}

// persist must be called with mu held.
func (t *Tracker) persist() error {
	if !t.m.Available() {
		t.stats.PersistFailures++
		return fmt.Errorf("write %s: %w", t.name, errors.ErrStorageUnavailable)
	}
	if err := t.m.WriteFile(t.name, record.EncodeAggregate(t.agg)); err != nil {
		t.stats.PersistFailures++
		return fmt.Errorf("write %s: %w", t.name, err)
	}
	t.stats.Persists++
	return nil
}

// Stats returns a copy of the statistics.
func (t *Tracker) Stats() TrackerStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}
