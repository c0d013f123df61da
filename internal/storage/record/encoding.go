// Package record implements the bit-exact binary layouts persisted by the
// store.
//
// Reading layout (16 bytes, little-endian, packed):
//
//	offset 0  float32 humidity
//	offset 4  float32 temperature
//	offset 8  float32 pressure
//	offset 12 uint32  age in minutes
//
// Aggregate layout (24 bytes, little-endian): six float32 in the order
// min humidity, max humidity, min temperature, max temperature,
// min pressure, max pressure.
package record

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/xtxerr/atmolog/internal/errors"
	"github.com/xtxerr/atmolog/internal/storage/types"
)

const (
	// Size is the encoded size of one reading.
	Size = 16

	// AggregateSize is the encoded size of the aggregate record.
	AggregateSize = 24
)

// Legacy magic values older firmware wrote for "no value yet".
const (
	legacyMinSentinel     = 999
	legacyMaxSentinel     = -999
	legacyMinSentinelWide = 9999
	legacyMaxSentinelWide = -9999
)

// AppendReading appends the encoding of r to buf.
func AppendReading(buf []byte, r types.Reading) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(r.Humidity))
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(r.Temperature))
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(r.Pressure))
	buf = binary.LittleEndian.AppendUint32(buf, r.AgeMinutes)
	return buf
}

// PutReading encodes r into dst, which must hold at least Size bytes.
func PutReading(dst []byte, r types.Reading) {
	_ = dst[Size-1]
	binary.LittleEndian.PutUint32(dst[0:], math.Float32bits(r.Humidity))
	binary.LittleEndian.PutUint32(dst[4:], math.Float32bits(r.Temperature))
	binary.LittleEndian.PutUint32(dst[8:], math.Float32bits(r.Pressure))
	binary.LittleEndian.PutUint32(dst[12:], r.AgeMinutes)
}

// DecodeReading decodes the first Size bytes of data.
func DecodeReading(data []byte) (types.Reading, error) {
	if len(data) < Size {
		return types.Reading{}, fmt.Errorf("%w: reading needs %d bytes, have %d",
			errors.ErrMalformedRecord, Size, len(data))
	}
	return types.Reading{
		Humidity:    math.Float32frombits(binary.LittleEndian.Uint32(data[0:])),
		Temperature: math.Float32frombits(binary.LittleEndian.Uint32(data[4:])),
		Pressure:    math.Float32frombits(binary.LittleEndian.Uint32(data[8:])),
		AgeMinutes:  binary.LittleEndian.Uint32(data[12:]),
	}, nil
}

// Count returns the number of complete records in an object of size bytes.
// A partial trailing record is not counted.
func Count(size int64) int {
	if size <= 0 {
		return 0
	}
	return int(size / Size)
}

// Offset returns the byte offset of record i.
func Offset(i int) int64 {
	return int64(i) * Size
}

// Options control aggregate decoding.
type Options struct {
	// LegacySentinels also reads the magic values 999/-999 and 9999/-9999
	// as unset.
	LegacySentinels bool
}

// EncodeAggregate encodes a. Unset minima are written as +Inf and unset
// maxima as -Inf.
func EncodeAggregate(a types.Aggregate) []byte {
	buf := make([]byte, 0, AggregateSize)
	for i, e := range a.Extrema() {
		v, ok := e.Get()
		if !ok {
			v = unsetValue(isMin(i))
		}
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	return buf
}

// DecodeAggregate decodes an aggregate record. A record of the wrong size
// returns ErrMalformedRecord.
func DecodeAggregate(data []byte, opts Options) (types.Aggregate, error) {
	if len(data) != AggregateSize {
		return types.Aggregate{}, fmt.Errorf("%w: aggregate needs %d bytes, have %d",
			errors.ErrMalformedRecord, AggregateSize, len(data))
	}

	var e [6]types.Extremum
	for i := range e {
		v := math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		if isUnset(v, isMin(i), opts) {
			e[i] = types.Unset()
			continue
		}
		e[i] = types.Set(v)
	}
	return types.AggregateFromExtrema(e), nil
}

// isMin reports whether slot i of the aggregate layout holds a minimum.
func isMin(i int) bool {
	return i%2 == 0
}

func unsetValue(min bool) float32 {
	if min {
		return float32(math.Inf(1))
	}
	return float32(math.Inf(-1))
}

func isUnset(v float32, min bool, opts Options) bool {
	f := float64(v)
	if math.IsNaN(f) {
		return true
	}
	if min && math.IsInf(f, 1) || !min && math.IsInf(f, -1) {
		return true
	}
	if !opts.LegacySentinels {
		return false
	}
	if min {
		return v == legacyMinSentinel || v == legacyMinSentinelWide
	}
	return v == legacyMaxSentinel || v == legacyMaxSentinelWide
}
