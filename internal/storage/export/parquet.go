package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/xtxerr/atmolog/internal/storage/types"
)

// DefaultRowGroupSize is the number of rows buffered per Parquet row group.
const DefaultRowGroupSize = 4096

// ReadingRow is an export row in Parquet format.
type ReadingRow struct {
	Index       int64   `parquet:"idx"`
	AgeMinutes  int64   `parquet:"age_minutes"`
	Humidity    float32 `parquet:"humidity"`
	Temperature float32 `parquet:"temperature"`
	Pressure    float32 `parquet:"pressure"`
}

// RowToParquet converts an export row.
func RowToParquet(r types.ExportRow) ReadingRow {
	return ReadingRow{
		Index:       int64(r.Index),
		AgeMinutes:  int64(r.AgeMinutes),
		Humidity:    r.Humidity,
		Temperature: r.Temperature,
		Pressure:    r.Pressure,
	}
}

// ParquetToRow converts a Parquet row back.
func ParquetToRow(r ReadingRow) types.ExportRow {
	return types.ExportRow{
		Index:       int(r.Index),
		AgeMinutes:  uint32(r.AgeMinutes),
		Humidity:    r.Humidity,
		Temperature: r.Temperature,
		Pressure:    r.Pressure,
	}
}

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// ParseCompressionType parses a compression name. Unknown names select zstd.
func ParseCompressionType(s string) CompressionType {
	switch strings.ToLower(s) {
	case "snappy":
		return CompressionSnappy
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	case "gzip":
		return CompressionGzip
	case "none", "":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

// codec returns the parquet-go compression codec.
func (ct CompressionType) codec() compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// ParquetEncoder buffers rows into row groups and writes the footer on
// Close.
type ParquetEncoder struct {
	writer   *parquet.GenericWriter[ReadingRow]
	rows     []ReadingRow
	groupLen int
}

// NewParquetEncoder returns a Parquet encoder.
func NewParquetEncoder(w io.Writer, opts Options) *ParquetEncoder {
	groupLen := opts.RowGroupSize
	if groupLen <= 0 {
		groupLen = DefaultRowGroupSize
	}

	writer := parquet.NewGenericWriter[ReadingRow](w,
		parquet.Compression(ParseCompressionType(opts.Compression).codec()),
	)

	return &ParquetEncoder{
		writer:   writer,
		rows:     make([]ReadingRow, 0, groupLen),
		groupLen: groupLen,
	}
}

// Encode buffers one row.
func (e *ParquetEncoder) Encode(row types.ExportRow) error {
	e.rows = append(e.rows, RowToParquet(row))
	if len(e.rows) >= e.groupLen {
		return e.flush()
	}
	return nil
}

func (e *ParquetEncoder) flush() error {
	if len(e.rows) == 0 {
		return nil
	}
	_, err := e.writer.Write(e.rows)
	e.rows = e.rows[:0]
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	return e.writer.Flush()
}

// Close writes buffered rows and the file footer.
func (e *ParquetEncoder) Close() error {
	if err := e.flush(); err != nil {
		return err
	}
	if err := e.writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// ReadParquet reads every row of a Parquet export of size bytes.
func ReadParquet(r io.ReaderAt, size int64) ([]types.ExportRow, error) {
	f, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[ReadingRow](f)
	defer reader.Close()

	rows := make([]ReadingRow, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read rows: %w", err)
	}

	out := make([]types.ExportRow, n)
	for i := 0; i < n; i++ {
		out[i] = ParquetToRow(rows[i])
	}
	return out, nil
}
