package export

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/xtxerr/atmolog/internal/errors"
	"github.com/xtxerr/atmolog/internal/storage/types"
)

// Reading message field numbers:
//
//	message Reading {
//	  uint32 age_minutes = 1;
//	  float  humidity    = 2;
//	  float  temperature = 3;
//	  float  pressure    = 4;
//	}
const (
	fieldAge         protowire.Number = 1
	fieldHumidity    protowire.Number = 2
	fieldTemperature protowire.Number = 3
	fieldPressure    protowire.Number = 4
)

// MaxMessageSize bounds a single decoded message.
const MaxMessageSize = 1024

// AppendProto appends the Reading message encoding of row to b.
func AppendProto(b []byte, row types.ExportRow) []byte {
	b = protowire.AppendTag(b, fieldAge, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(row.AgeMinutes))
	b = appendFloat(b, fieldHumidity, row.Humidity)
	b = appendFloat(b, fieldTemperature, row.Temperature)
	b = appendFloat(b, fieldPressure, row.Pressure)
	return b
}

func appendFloat(b []byte, num protowire.Number, v float32) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(v))
}

// ProtoEncoder writes varint length-delimited Reading messages.
type ProtoEncoder struct {
	w   io.Writer
	msg []byte
	buf []byte
}

// NewProtoEncoder returns a delimited protobuf encoder.
func NewProtoEncoder(w io.Writer) *ProtoEncoder {
	return &ProtoEncoder{w: w}
}

// Encode writes one length-prefixed message.
func (e *ProtoEncoder) Encode(row types.ExportRow) error {
	e.msg = AppendProto(e.msg[:0], row)
	e.buf = protowire.AppendVarint(e.buf[:0], uint64(len(e.msg)))
	e.buf = append(e.buf, e.msg...)
	if _, err := e.w.Write(e.buf); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Close is a no-op; the stream has no trailer.
func (e *ProtoEncoder) Close() error {
	return nil
}

// ProtoReader reads varint length-delimited Reading messages.
type ProtoReader struct {
	r   *bufio.Reader
	buf []byte
}

// NewProtoReader returns a reader over a delimited stream.
func NewProtoReader(r io.Reader) *ProtoReader {
	return &ProtoReader{r: bufio.NewReader(r)}
}

// Read returns the next row. It returns io.EOF at a clean end of stream.
func (r *ProtoReader) Read() (types.ExportRow, error) {
	size, err := binary.ReadUvarint(r.r)
	if err != nil {
		if err == io.EOF {
			return types.ExportRow{}, io.EOF
		}
		return types.ExportRow{}, fmt.Errorf("read length: %w", err)
	}
	if size > MaxMessageSize {
		return types.ExportRow{}, fmt.Errorf("%w: message of %d bytes exceeds %d",
			errors.ErrMalformedRecord, size, MaxMessageSize)
	}

	if cap(r.buf) < int(size) {
		r.buf = make([]byte, size)
	}
	r.buf = r.buf[:size]
	if _, err := io.ReadFull(r.r, r.buf); err != nil {
		return types.ExportRow{}, fmt.Errorf("read message: %w", err)
	}
	return DecodeProto(r.buf)
}

// DecodeProto parses one Reading message. Unknown fields are skipped.
func DecodeProto(b []byte) (types.ExportRow, error) {
	var row types.ExportRow
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return row, fmt.Errorf("%w: %v", errors.ErrMalformedRecord, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldAge && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return row, fmt.Errorf("%w: %v", errors.ErrMalformedRecord, protowire.ParseError(n))
			}
			row.AgeMinutes = uint32(v)
			b = b[n:]
		case typ == protowire.Fixed32Type && num >= fieldHumidity && num <= fieldPressure:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return row, fmt.Errorf("%w: %v", errors.ErrMalformedRecord, protowire.ParseError(n))
			}
			f := math.Float32frombits(v)
			switch num {
			case fieldHumidity:
				row.Humidity = f
			case fieldTemperature:
				row.Temperature = f
			case fieldPressure:
				row.Pressure = f
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return row, fmt.Errorf("%w: %v", errors.ErrMalformedRecord, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return row, nil
}
