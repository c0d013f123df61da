// Package ringlog implements the preferred log layout: a circular arena of
// capacity fixed 16-byte slots plus a small metadata object.
//
// Objects:
//
//	<name>.ring  capacity * 16 bytes of packed records
//	<name>.meta  {start u32, count u32, capacity u32, crc32 u32}, little-endian
//
// Logical index i lives in slot (start+i) % capacity. Eviction overwrites
// the oldest slot and advances start, so every append costs one slot write
// and one metadata replace.
//
// A Log is not safe for concurrent use.
package ringlog

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"log/slog"

	"github.com/xtxerr/atmolog/internal/errors"
	"github.com/xtxerr/atmolog/internal/logging"
	"github.com/xtxerr/atmolog/internal/storage/medium"
	"github.com/xtxerr/atmolog/internal/storage/record"
	"github.com/xtxerr/atmolog/internal/storage/types"
)

const (
	// ArenaSuffix names the slot arena object.
	ArenaSuffix = ".ring"

	// MetaSuffix names the metadata object.
	MetaSuffix = ".meta"

	// MetaSize is the encoded metadata size.
	MetaSize = 16

	tmpSuffix = ".tmp"
)

// ObjectNames returns every object a ring log called name may create.
func ObjectNames(name string) []string {
	return []string{
		name + ArenaSuffix,
		name + ArenaSuffix + tmpSuffix,
		name + MetaSuffix,
		name + MetaSuffix + tmpSuffix,
	}
}

// Meta is the persisted ring position.
type Meta struct {
	Start    uint32
	Count    uint32
	Capacity uint32
}

// Encode returns the persisted form of m.
func (m Meta) Encode() []byte {
	buf := make([]byte, 0, MetaSize)
	buf = binary.LittleEndian.AppendUint32(buf, m.Start)
	buf = binary.LittleEndian.AppendUint32(buf, m.Count)
	buf = binary.LittleEndian.AppendUint32(buf, m.Capacity)
	return binary.LittleEndian.AppendUint32(buf, crc32.ChecksumIEEE(buf))
}

// DecodeMeta parses and validates persisted metadata.
func DecodeMeta(data []byte) (Meta, error) {
	if len(data) != MetaSize {
		return Meta{}, fmt.Errorf("%w: meta needs %d bytes, have %d",
			errors.ErrMalformedRecord, MetaSize, len(data))
	}
	if want, got := crc32.ChecksumIEEE(data[:12]), binary.LittleEndian.Uint32(data[12:]); want != got {
		return Meta{}, fmt.Errorf("%w: meta crc mismatch: expected %x, got %x",
			errors.ErrMalformedRecord, want, got)
	}

	m := Meta{
		Start:    binary.LittleEndian.Uint32(data[0:]),
		Count:    binary.LittleEndian.Uint32(data[4:]),
		Capacity: binary.LittleEndian.Uint32(data[8:]),
	}
	if m.Capacity == 0 || m.Count > m.Capacity || m.Start >= m.Capacity {
		return Meta{}, fmt.Errorf("%w: meta out of range: %+v", errors.ErrMalformedRecord, m)
	}
	return m, nil
}

// arenaBytes returns the arena size m's records require.
func (m Meta) arenaBytes() int64 {
	if m.Count == 0 {
		return 0
	}
	end := m.Start + m.Count
	if end > m.Capacity {
		end = m.Capacity
	}
	return record.Offset(int(end))
}

// Log is a circular-buffer log.
type Log struct {
	m        medium.Medium
	arena    string
	meta     string
	capacity int

	start int
	count int

	log   *slog.Logger
	stats Stats
}

var _ types.Log = (*Log)(nil)

// Stats holds ring log statistics.
type Stats struct {
	Appends    int64 `json:"appends"`
	Evictions  int64 `json:"evictions"`
	Migrations int64 `json:"migrations"`
	Resets     int64 `json:"resets"`
	Failures   int64 `json:"failures"`
}

// Open opens the ring log name on m.
//
// Missing or malformed metadata yields an empty log. When the persisted
// capacity differs from capacity the newest records are migrated into a
// fresh arena.
func Open(m medium.Medium, name string, capacity int) (*Log, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive, got %d", errors.ErrInvalidArgument, capacity)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: empty log name", errors.ErrInvalidArgument)
	}

	l := &Log{
		m:        m,
		arena:    name + ArenaSuffix,
		meta:     name + MetaSuffix,
		capacity: capacity,
		log:      logging.Component("ringlog"),
	}

	if !m.Available() {
		l.log.Warn("storage unavailable, log starts empty", "object", name)
		return l, nil
	}

	meta, ok := l.loadMeta()
	if !ok {
		return l, nil
	}

	if int(meta.Capacity) != capacity {
		if err := l.migrate(meta); err != nil {
			l.stats.Failures++
			l.log.Warn("capacity migration failed, log starts empty",
				"object", l.arena, "from", meta.Capacity, "to", capacity, "error", err)
			l.start, l.count = 0, 0
		}
		return l, nil
	}

	l.start = int(meta.Start)
	l.count = int(meta.Count)
	return l, nil
}

func (l *Log) loadMeta() (Meta, bool) {
	data, err := l.m.ReadFile(l.meta)
	if err != nil {
		if !medium.IsNotFound(err) {
			l.log.Warn("reading meta failed, log starts empty", "object", l.meta, "error", err)
		}
		return Meta{}, false
	}

	meta, err := DecodeMeta(data)
	if err != nil {
		l.stats.Resets++
		l.log.Warn("discarding malformed meta", "object", l.meta, "error", err)
		return Meta{}, false
	}

	size, err := l.m.Size(l.arena)
	if err != nil && !medium.IsNotFound(err) {
		l.log.Warn("arena size failed, log starts empty", "object", l.arena, "error", err)
		return Meta{}, false
	}
	if size < meta.arenaBytes() {
		l.stats.Resets++
		l.log.Warn("arena shorter than meta claims, log starts empty",
			"object", l.arena, "size", size, "required", meta.arenaBytes())
		return Meta{}, false
	}
	return meta, true
}

// migrate rebuilds the arena for a changed capacity, keeping the newest
// min(count, capacity) records.
func (l *Log) migrate(old Meta) error {
	keep := int(old.Count)
	if keep > l.capacity {
		keep = l.capacity
	}

	src := &Log{
		m:        l.m,
		arena:    l.arena,
		capacity: int(old.Capacity),
		start:    int(old.Start),
		count:    int(old.Count),
	}
	c := src.Cursor(int(old.Count) - keep)
	defer c.Close()

	buf := make([]byte, 0, record.Offset(keep))
	for c.Next() {
		buf = record.AppendReading(buf, c.Reading())
	}
	if err := c.Err(); err != nil {
		return fmt.Errorf("read old arena: %w", err)
	}

	tmp := l.arena + tmpSuffix
	if err := l.m.WriteFile(tmp, buf); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := l.m.Remove(l.arena); err != nil {
		return fmt.Errorf("remove %s: %w", l.arena, err)
	}
	if err := l.m.Rename(tmp, l.arena); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}

	l.start, l.count = 0, keep
	if err := l.writeMeta(); err != nil {
		return err
	}

	l.stats.Migrations++
	l.log.Info("migrated ring to new capacity",
		"object", l.arena, "from", old.Capacity, "to", l.capacity, "kept", keep)
	return nil
}

// writeMeta replaces the metadata through a temporary object, so a torn
// write never damages the previous position.
func (l *Log) writeMeta() error {
	m := Meta{Start: uint32(l.start), Count: uint32(l.count), Capacity: uint32(l.capacity)}
	tmp := l.meta + tmpSuffix
	if err := l.m.WriteFile(tmp, m.Encode()); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := l.m.Rename(tmp, l.meta); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// Len returns the number of retained records.
func (l *Log) Len() int {
	return l.count
}

// Cap returns the capacity.
func (l *Log) Cap() int {
	return l.capacity
}

// Layout returns types.LayoutRing.
func (l *Log) Layout() types.Layout {
	return types.LayoutRing
}

// Stats returns a copy of the statistics.
func (l *Log) Stats() Stats {
	return l.stats
}

// Meta returns the in-memory ring position.
func (l *Log) Meta() Meta {
	return Meta{Start: uint32(l.start), Count: uint32(l.count), Capacity: uint32(l.capacity)}
}

// Append writes r into the next slot, overwriting the oldest record when
// the ring is full.
//
// The slot is written before the metadata. If the metadata write fails after
// an eviction slot write, the overwritten oldest slot reads back as the new
// record until the next successful append.
func (l *Log) Append(r types.Reading) (bool, error) {
	if !l.m.Available() {
		return false, fmt.Errorf("append %s: %w", l.arena, errors.ErrStorageUnavailable)
	}

	full := l.count >= l.capacity
	slot := (l.start + l.count) % l.capacity
	if full {
		slot = l.start
	}

	if err := l.m.WriteAt(l.arena, record.AppendReading(nil, r), record.Offset(slot)); err != nil {
		l.stats.Failures++
		return false, fmt.Errorf("write slot %d: %w", slot, err)
	}

	prevStart, prevCount := l.start, l.count
	if full {
		l.start = (l.start + 1) % l.capacity
	} else {
		l.count++
	}

	if err := l.writeMeta(); err != nil {
		l.start, l.count = prevStart, prevCount
		l.stats.Failures++
		return false, err
	}

	l.stats.Appends++
	if full {
		l.stats.Evictions++
	}
	return full, nil
}

// Cursor returns a cursor positioned before logical index from.
func (l *Log) Cursor(from int) types.Cursor {
	if l.count == 0 {
		return types.EmptyCursor{}
	}
	r, err := l.m.Open(l.arena)
	if err != nil {
		return types.EmptyCursor{Error: err}
	}

	start, capacity := l.start, l.capacity
	span := func(i int) (int64, int) {
		slot := (start + i) % capacity
		return record.Offset(slot), capacity - slot
	}
	return record.NewCursor(r, r.Close, l.count, span, from)
}

// Clear removes the metadata and arena. Once the metadata is gone the log
// is empty, even if removing the arena fails. Missing objects are success.
func (l *Log) Clear() error {
	if err := l.m.Remove(l.meta); err != nil {
		return fmt.Errorf("clear %s: %w", l.meta, err)
	}
	l.start, l.count = 0, 0

	if err := errors.Join(l.m.Remove(l.arena), l.m.Remove(l.arena+tmpSuffix), l.m.Remove(l.meta+tmpSuffix)); err != nil {
		return fmt.Errorf("clear %s: %w", l.arena, err)
	}
	return nil
}

// Close is a no-op; every operation opens and closes its own handles.
func (l *Log) Close() error {
	return nil
}
