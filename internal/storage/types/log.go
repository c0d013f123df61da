package types

import "fmt"

// Log is a bounded, ordered, persistent sequence of readings.
//
// Implementations enforce Len() <= capacity after every completed operation.
// Logical index 0 is always the oldest surviving record.
type Log interface {
	// Len returns the number of retained records.
	Len() int

	// Cap returns the configured capacity.
	Cap() int

	// Append adds a reading, evicting the oldest record when the log is full.
	// evicted reports whether a record was dropped to make room.
	Append(r Reading) (evicted bool, err error)

	// Cursor returns a cursor positioned before logical index from.
	// The cursor sees a snapshot of the length at creation time.
	Cursor(from int) Cursor

	// Clear removes all persisted records.
	Clear() error

	// Layout identifies the persisted layout.
	Layout() Layout

	// Close releases resources held by the log.
	Close() error
}

// Cursor iterates over log records from oldest to newest.
//
// Usage:
//
//	c := log.Cursor(0)
//	defer c.Close()
//	for c.Next() {
//	    use(c.Index(), c.Reading())
//	}
//	if err := c.Err(); err != nil { ... }
type Cursor interface {
	// Next advances to the next record. Returns false at the end or on error.
	Next() bool

	// Index returns the logical index of the current record.
	Index() int

	// Reading returns the current record.
	Reading() Reading

	// Seek positions the cursor before logical index i.
	Seek(i int)

	// Len returns the snapshot length the cursor iterates over.
	Len() int

	// Err returns any error encountered during iteration.
	Err() error

	// Close releases the cursor.
	Close() error
}

// Layout identifies a persisted log layout.
type Layout int

const (
	// LayoutRing is a circular arena of fixed slots plus start/count metadata.
	LayoutRing Layout = iota

	// LayoutFlat is a headerless flat file evicted by whole-file rewrite.
	LayoutFlat
)

// String returns the string representation of the layout.
func (l Layout) String() string {
	switch l {
	case LayoutRing:
		return "ring"
	case LayoutFlat:
		return "flat"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}

// ParseLayout parses a string into a Layout.
func ParseLayout(s string) (Layout, error) {
	switch s {
	case "ring", "":
		return LayoutRing, nil
	case "flat":
		return LayoutFlat, nil
	default:
		return LayoutRing, fmt.Errorf("unknown layout %q, want one of %v", s, AllLayouts())
	}
}

// AllLayouts returns all supported layouts.
func AllLayouts() []Layout {
	return []Layout{LayoutRing, LayoutFlat}
}

// EmptyCursor is a cursor over zero records.
type EmptyCursor struct {
	Error error
}

func (EmptyCursor) Next() bool { return false }
func (EmptyCursor) Index() int { return -1 }
func (EmptyCursor) Reading() Reading { return Reading{} }
func (EmptyCursor) Seek(int) {}
func (EmptyCursor) Len() int { return 0 }
func (c EmptyCursor) Err() error { return c.Error }
func (EmptyCursor) Close() error { return nil }
