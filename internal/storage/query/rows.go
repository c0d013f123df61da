package query

import "github.com/xtxerr/atmolog/internal/storage/types"

// Rows is a lazy sequence of export rows.
//
// Usage:
//
//	rows := svc.ExportFull()
//	defer rows.Close()
//	for rows.Next() {
//	    use(rows.Row())
//	}
//	if err := rows.Err(); err != nil { ... }
type Rows struct {
	c        types.Cursor
	n        int
	start    int
	interval uint32
	stats    *Stats

	row    types.ExportRow
	closed bool
}

func newRows(c types.Cursor, start int, interval uint32, stats *Stats) *Rows {
	return &Rows{
		c:        c,
		n:        c.Len(),
		start:    start,
		interval: interval,
		stats:    stats,
	}
}

// Next advances to the next row.
func (r *Rows) Next() bool {
	if r.closed || !r.c.Next() {
		return false
	}
	r.row = types.NewExportRow(r.c.Index(), r.n, r.interval, r.c.Reading())
	if r.stats != nil {
		r.stats.RowsExported++
	}
	return true
}

// Row returns the current row.
func (r *Rows) Row() types.ExportRow {
	return r.row
}

// Err returns the first error hit while reading.
func (r *Rows) Err() error {
	return r.c.Err()
}

// Total returns the number of records in the log when the rows were created.
func (r *Rows) Total() int {
	return r.n
}

// Len returns the number of rows the sequence yields.
func (r *Rows) Len() int {
	if r.start >= r.n {
		return 0
	}
	return r.n - r.start
}

// Close releases the underlying cursor.
func (r *Rows) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.c.Close()
}

// Collect drains rows into a slice and closes them.
func Collect(r *Rows) ([]types.ExportRow, error) {
	defer r.Close()

	out := make([]types.ExportRow, 0, r.Len())
	for r.Next() {
		out = append(out, r.Row())
	}
	return out, r.Err()
}
