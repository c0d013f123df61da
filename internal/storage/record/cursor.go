package record

import (
	"fmt"
	"io"

	"github.com/xtxerr/atmolog/internal/storage/types"
)

// chunkRecords is how many records a cursor reads per I/O.
const chunkRecords = 64

// Span maps logical index i to the byte offset of its record and the number
// of records stored contiguously from there.
type Span func(i int) (off int64, run int)

// Cursor reads fixed-size records through a ReaderAt in chunks.
// It implements types.Cursor.
type Cursor struct {
	r     io.ReaderAt
	close func() error
	n     int
	span  Span

	pos   int // logical index of the next record
	cur   types.Reading
	buf   []byte
	first int // logical index of buf[0]
	count int // records held in buf
	err   error
}

var _ types.Cursor = (*Cursor)(nil)

// NewCursor returns a cursor over n records positioned before logical index
// from. close is called once by Close and may be nil.
func NewCursor(r io.ReaderAt, close func() error, n int, span Span, from int) *Cursor {
	c := &Cursor{
		r:     r,
		close: close,
		n:     n,
		span:  span,
		buf:   make([]byte, chunkRecords*Size),
	}
	c.Seek(from)
	return c
}

// Next advances to the next record.
func (c *Cursor) Next() bool {
	if c.err != nil || c.pos >= c.n {
		return false
	}
	if c.pos < c.first || c.pos >= c.first+c.count {
		if !c.fill() {
			return false
		}
	}

	off := (c.pos - c.first) * Size
	r, err := DecodeReading(c.buf[off : off+Size])
	if err != nil {
		c.err = err
		return false
	}
	c.cur = r
	c.pos++
	return true
}

func (c *Cursor) fill() bool {
	off, run := c.span(c.pos)
	if remaining := c.n - c.pos; run > remaining {
		run = remaining
	}
	if run > chunkRecords {
		run = chunkRecords
	}
	if run <= 0 {
		c.err = fmt.Errorf("no contiguous records at index %d", c.pos)
		return false
	}

	want := run * Size
	got, err := c.r.ReadAt(c.buf[:want], off)
	if got < want {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		c.err = fmt.Errorf("read records at index %d: %w", c.pos, err)
		return false
	}

	c.first = c.pos
	c.count = run
	return true
}

// Index returns the logical index of the current record.
func (c *Cursor) Index() int {
	return c.pos - 1
}

// Reading returns the current record.
func (c *Cursor) Reading() types.Reading {
	return c.cur
}

// Seek positions the cursor before logical index i. Out of range values are
// clamped to [0, Len()].
func (c *Cursor) Seek(i int) {
	if i < 0 {
		i = 0
	}
	if i > c.n {
		i = c.n
	}
	c.pos = i
}

// Len returns the number of records the cursor was created over.
func (c *Cursor) Len() int {
	return c.n
}

// Err returns the first read error.
func (c *Cursor) Err() error {
	return c.err
}

// Close releases the underlying reader.
func (c *Cursor) Close() error {
	if c.close == nil {
		return nil
	}
	err := c.close()
	c.close = nil
	return err
}
