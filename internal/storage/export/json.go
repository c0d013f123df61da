package export

import (
	"io"

	"github.com/goccy/go-json"

	"github.com/xtxerr/atmolog/internal/storage/types"
)

// JSONEncoder writes a JSON array of row objects, one element at a time.
type JSONEncoder struct {
	w     io.Writer
	count int
	buf   []byte
}

// NewJSONEncoder returns a JSON encoder.
func NewJSONEncoder(w io.Writer) *JSONEncoder {
	return &JSONEncoder{w: w}
}

// Encode writes one array element.
func (e *JSONEncoder) Encode(row types.ExportRow) error {
	data, err := json.Marshal(row)
	if err != nil {
		return err
	}

	e.buf = e.buf[:0]
	if e.count == 0 {
		e.buf = append(e.buf, '[')
	} else {
		e.buf = append(e.buf, ',')
	}
	e.buf = append(e.buf, data...)
	e.count++

	_, err = e.w.Write(e.buf)
	return err
}

// Close terminates the array.
func (e *JSONEncoder) Close() error {
	tail := "]\n"
	if e.count == 0 {
		tail = "[]\n"
	}
	_, err := io.WriteString(e.w, tail)
	return err
}
