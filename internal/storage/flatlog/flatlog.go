// Package flatlog implements the legacy log layout: a headerless object of
// packed 16-byte records whose length is its size divided by the record size.
//
// Appends go to the end of the object. Once the log holds capacity records,
// each append evicts the oldest record by rewriting the survivors plus the new
// record into a temporary object, removing the old object and renaming the
// temporary one into place. The rewrite is O(n) and not atomic; Open repairs
// an interrupted rewrite:
//
//   - temporary present, main absent: the rename was lost, finish it
//   - both present: the rewrite never replaced main, drop the temporary
//
// A Log is not safe for concurrent use.
package flatlog

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/xtxerr/atmolog/internal/errors"
	"github.com/xtxerr/atmolog/internal/logging"
	"github.com/xtxerr/atmolog/internal/storage/medium"
	"github.com/xtxerr/atmolog/internal/storage/record"
	"github.com/xtxerr/atmolog/internal/storage/types"
)

// TmpSuffix is appended to the log name for the rewrite target.
const TmpSuffix = ".tmp"

// ObjectNames returns every object a flat log called name may create.
func ObjectNames(name string) []string {
	return []string{name, name + TmpSuffix}
}

// Log is a rewrite-evicted flat log.
type Log struct {
	m        medium.Medium
	name     string
	tmp      string
	capacity int

	n       int  // complete records
	partial bool // trailing bytes that do not form a record

	log   *slog.Logger
	stats Stats
}

var _ types.Log = (*Log)(nil)

// Stats holds flat log statistics.
type Stats struct {
	Appends      int64 `json:"appends"`
	Evictions    int64 `json:"evictions"`
	Rewrites     int64 `json:"rewrites"`
	RewriteBytes int64 `json:"rewrite_bytes"`
	Recoveries   int64 `json:"recoveries"`
	Failures     int64 `json:"failures"`
}

// Open opens the log object name on m.
//
// Open only fails on invalid arguments. An unavailable medium yields an empty
// log whose appends fail with errors.ErrStorageUnavailable.
func Open(m medium.Medium, name string, capacity int) (*Log, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive, got %d", errors.ErrInvalidArgument, capacity)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: empty log name", errors.ErrInvalidArgument)
	}

	l := &Log{
		m:        m,
		name:     name,
		tmp:      name + TmpSuffix,
		capacity: capacity,
		log:      logging.Component("flatlog"),
	}

	if !m.Available() {
		l.log.Warn("storage unavailable, log starts empty", "object", name)
		return l, nil
	}

	l.recover()
	l.refresh()

	if l.n > capacity {
		l.log.Info("capacity lowered, compacting",
			"object", name, "records", l.n, "capacity", capacity)
		if err := l.rewrite(l.n-capacity, nil); err != nil {
			l.stats.Failures++
			l.log.Warn("compaction failed", "object", name, "error", err)
		}
		l.refresh()
	}

	return l, nil
}

// recover repairs an interrupted rewrite and reports whether it changed
// anything.
func (l *Log) recover() bool {
	if !medium.Exists(l.m, l.tmp) {
		return false
	}

	if !medium.Exists(l.m, l.name) {
		if err := l.m.Rename(l.tmp, l.name); err != nil {
			l.log.Warn("recovery rename failed", "object", l.name, "error", err)
			return false
		}
		l.stats.Recoveries++
		l.log.Info("recovered interrupted rewrite", "object", l.name)
		return true
	}

	if err := l.m.Remove(l.tmp); err != nil {
		l.log.Warn("removing stale rewrite failed", "object", l.tmp, "error", err)
		return false
	}
	l.stats.Recoveries++
	l.log.Info("dropped stale rewrite", "object", l.tmp)
	return true
}

// refresh derives the length from the object size.
func (l *Log) refresh() {
	size, err := l.m.Size(l.name)
	if err != nil {
		if !medium.IsNotFound(err) {
			l.log.Warn("size failed", "object", l.name, "error", err)
		}
		l.n, l.partial = 0, false
		return
	}
	l.n = record.Count(size)
	l.partial = size%record.Size != 0
	if l.partial {
		l.log.Debug("ignoring partial trailing record",
			"object", l.name, "trailing_bytes", size%record.Size)
	}
}

// Len returns the number of complete records.
func (l *Log) Len() int {
	return l.n
}

// Cap returns the capacity.
func (l *Log) Cap() int {
	return l.capacity
}

// Layout returns types.LayoutFlat.
func (l *Log) Layout() types.Layout {
	return types.LayoutFlat
}

// Stats returns a copy of the statistics.
func (l *Log) Stats() Stats {
	return l.stats
}

// Append adds r, evicting the oldest record when the log is full.
// On error the reading is not retained and the log stays valid.
func (l *Log) Append(r types.Reading) (bool, error) {
	if !l.m.Available() {
		return false, fmt.Errorf("append %s: %w", l.name, errors.ErrStorageUnavailable)
	}

	// A lost rename from an earlier failed eviction is finished first.
	if l.recover() {
		l.refresh()
	}

	if l.partial {
		if err := l.m.Truncate(l.name, record.Offset(l.n)); err != nil {
			l.stats.Failures++
			return false, fmt.Errorf("trim partial record: %w", err)
		}
		l.partial = false
	}

	if l.n < l.capacity {
		if err := l.m.Append(l.name, record.AppendReading(nil, r)); err != nil {
			l.stats.Failures++
			l.refresh()
			return false, fmt.Errorf("append %s: %w", l.name, err)
		}
		l.n++
		l.stats.Appends++
		return false, nil
	}

	if err := l.rewrite(l.n-l.capacity+1, &r); err != nil {
		l.stats.Failures++
		l.refresh()
		return false, fmt.Errorf("%w: %v", errors.ErrRewriteFailed, err)
	}
	l.n = l.capacity
	l.stats.Appends++
	l.stats.Evictions++
	return true, nil
}

// rewrite replaces the log with its records [skip, n) followed by extra.
func (l *Log) rewrite(skip int, extra *types.Reading) error {
	l.stats.Rewrites++

	w, err := l.m.Create(l.tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", l.tmp, err)
	}

	written, err := l.copySurvivors(w, skip)
	if err == nil && extra != nil {
		var n int
		n, err = w.Write(record.AppendReading(nil, *extra))
		written += int64(n)
	}
	if err == nil {
		err = w.Sync()
	}
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		l.discardTmp()
		return fmt.Errorf("write %s: %w", l.tmp, err)
	}
	l.stats.RewriteBytes += written

	if err := l.m.Remove(l.name); err != nil {
		l.discardTmp()
		return fmt.Errorf("remove %s: %w", l.name, err)
	}
	if err := l.m.Rename(l.tmp, l.name); err != nil {
		// Main is gone and tmp holds the survivors; recover() finishes this.
		return fmt.Errorf("rename %s: %w", l.tmp, err)
	}
	return nil
}

func (l *Log) copySurvivors(w io.Writer, skip int) (int64, error) {
	c := l.Cursor(skip)
	defer c.Close()

	buf := make([]byte, 0, 64*record.Size)
	var written int64
	flush := func() error {
		n, err := w.Write(buf)
		written += int64(n)
		buf = buf[:0]
		return err
	}

	for c.Next() {
		buf = record.AppendReading(buf, c.Reading())
		if len(buf) == cap(buf) {
			if err := flush(); err != nil {
				return written, err
			}
		}
	}
	if err := c.Err(); err != nil {
		return written, err
	}
	if len(buf) > 0 {
		if err := flush(); err != nil {
			return written, err
		}
	}
	return written, nil
}

func (l *Log) discardTmp() {
	if err := l.m.Remove(l.tmp); err != nil {
		l.log.Warn("removing rewrite target failed", "object", l.tmp, "error", err)
	}
}

// Cursor returns a cursor positioned before logical index from.
func (l *Log) Cursor(from int) types.Cursor {
	if l.n == 0 {
		return types.EmptyCursor{}
	}
	r, err := l.m.Open(l.name)
	if err != nil {
		return types.EmptyCursor{Error: err}
	}
	n := l.n
	span := func(i int) (int64, int) {
		return record.Offset(i), n - i
	}
	return record.NewCursor(r, r.Close, n, span, from)
}

// Clear removes the log and any rewrite target. Missing objects are success.
func (l *Log) Clear() error {
	err := errors.Join(l.m.Remove(l.name), l.m.Remove(l.tmp))
	l.refresh()
	if err != nil {
		return fmt.Errorf("clear %s: %w", l.name, err)
	}
	return nil
}

// Close is a no-op; every operation opens and closes its own handles.
func (l *Log) Close() error {
	return nil
}
