// Package export encodes export rows as CSV, JSON, length-delimited
// protobuf messages or Parquet.
//
// Every encoder streams: rows are written as they are encoded, except
// Parquet which buffers one row group.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xtxerr/atmolog/internal/errors"
	"github.com/xtxerr/atmolog/internal/storage/types"
)

// Format identifies an export encoding.
type Format int

const (
	FormatCSV Format = iota
	FormatJSON
	FormatProto
	FormatParquet
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatJSON:
		return "json"
	case FormatProto:
		return "pb"
	case FormatParquet:
		return "parquet"
	default:
		return fmt.Sprintf("unknown(%d)", f)
	}
}

// ParseFormat parses a format name. The empty string selects def.
func ParseFormat(s string, def Format) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return def, nil
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "pb", "proto", "protobuf":
		return FormatProto, nil
	case "parquet":
		return FormatParquet, nil
	default:
		return def, fmt.Errorf("%w: %q, want one of %v", errors.ErrInvalidFormat, s, AllFormats())
	}
}

// AllFormats returns every supported format.
func AllFormats() []Format {
	return []Format{FormatCSV, FormatJSON, FormatProto, FormatParquet}
}

// ContentType returns the HTTP media type.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatJSON:
		return "application/json"
	case FormatProto:
		return "application/x-protobuf; delimited=true"
	case FormatParquet:
		return "application/vnd.apache.parquet"
	default:
		return "application/octet-stream"
	}
}

// FileExtension returns the extension without the leading dot.
func (f Format) FileExtension() string {
	return f.String()
}

// Streamable reports whether an encoder of this format can write to a
// non-seekable destination without buffering the whole export.
func (f Format) Streamable() bool {
	return f != FormatParquet
}

// Encoder writes export rows. Close terminates the encoding; it does not
// close the underlying writer.
type Encoder interface {
	Encode(row types.ExportRow) error
	Close() error
}

// Options configures encoders.
type Options struct {
	// Compression is the Parquet codec name.
	Compression string

	// RowGroupSize is the Parquet row group size.
	RowGroupSize int
}

// NewEncoder returns an encoder for f writing to w.
func NewEncoder(w io.Writer, f Format, opts Options) (Encoder, error) {
	switch f {
	case FormatCSV:
		return NewCSVEncoder(w), nil
	case FormatJSON:
		return NewJSONEncoder(w), nil
	case FormatProto:
		return NewProtoEncoder(w), nil
	case FormatParquet:
		return NewParquetEncoder(w, opts), nil
	default:
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidFormat, f)
	}
}

// RowSource yields export rows. query.Rows implements it.
type RowSource interface {
	Next() bool
	Row() types.ExportRow
	Err() error
}

// Copy encodes every row of src and closes the encoder. It returns the
// number of rows written.
func Copy(enc Encoder, src RowSource) (int, error) {
	n := 0
	for src.Next() {
		if err := enc.Encode(src.Row()); err != nil {
			return n, fmt.Errorf("encode row %d: %w", n, err)
		}
		n++
	}
	if err := src.Err(); err != nil {
		return n, err
	}
	if err := enc.Close(); err != nil {
		return n, fmt.Errorf("close encoder: %w", err)
	}
	return n, nil
}
