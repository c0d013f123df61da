package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/xtxerr/atmolog/internal/storage/types"
)

// CSVHeader is the header line of CSV exports.
var CSVHeader = []string{"age_minutes", "humidity", "temperature", "pressure"}

// CSVEncoder writes a header followed by one line per row.
type CSVEncoder struct {
	w           *csv.Writer
	wroteHeader bool
	record      []string
}

// NewCSVEncoder returns a CSV encoder.
func NewCSVEncoder(w io.Writer) *CSVEncoder {
	return &CSVEncoder{w: csv.NewWriter(w), record: make([]string, 4)}
}

func (e *CSVEncoder) header() error {
	if e.wroteHeader {
		return nil
	}
	e.wroteHeader = true
	return e.w.Write(CSVHeader)
}

// Encode writes one row.
func (e *CSVEncoder) Encode(row types.ExportRow) error {
	if err := e.header(); err != nil {
		return err
	}
	e.record[0] = strconv.FormatUint(uint64(row.AgeMinutes), 10)
	e.record[1] = formatFloat(row.Humidity)
	e.record[2] = formatFloat(row.Temperature)
	e.record[3] = formatFloat(row.Pressure)
	return e.w.Write(e.record)
}

// Close writes the header if no row was written and flushes.
func (e *CSVEncoder) Close() error {
	if err := e.header(); err != nil {
		return err
	}
	e.w.Flush()
	return e.w.Error()
}

func formatFloat(v float32) string {
	return strconv.FormatFloat(float64(v), 'f', -1, 32)
}
