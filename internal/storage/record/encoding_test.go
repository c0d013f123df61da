package record

import (
	"bytes"
	"math"
	"testing"

	"github.com/xtxerr/atmolog/internal/errors"
	"github.com/xtxerr/atmolog/internal/storage/types"
)

func TestReadingLayout(t *testing.T) {
	r := types.Reading{Humidity: 1, Temperature: 2, Pressure: 3, AgeMinutes: 0x01020304}

	buf := AppendReading(nil, r)
	if len(buf) != Size {
		t.Fatalf("expected %d bytes, got %d", Size, len(buf))
	}

	// float32(1) = 0x3f800000, little-endian
	want := []byte{
		0x00, 0x00, 0x80, 0x3f,
		0x00, 0x00, 0x00, 0x40,
		0x00, 0x00, 0x40, 0x40,
		0x04, 0x03, 0x02, 0x01,
	}
	if !bytes.Equal(buf, want) {
		t.Errorf("expected % x, got % x", want, buf)
	}

	dst := make([]byte, Size)
	PutReading(dst, r)
	if !bytes.Equal(dst, want) {
		t.Errorf("PutReading: expected % x, got % x", want, dst)
	}
}

func TestDecodeReading(t *testing.T) {
	r := types.Reading{Humidity: 45.5, Temperature: -3.25, Pressure: 1009.75, AgeMinutes: 1439}

	got, err := DecodeReading(AppendReading(nil, r))
	if err != nil {
		t.Fatalf("DecodeReading: %v", err)
	}
	if got != r {
		t.Errorf("expected %v, got %v", r, got)
	}

	_, err = DecodeReading(make([]byte, Size-1))
	if !errors.Is(err, errors.ErrMalformedRecord) {
		t.Errorf("expected ErrMalformedRecord, got %v", err)
	}
}

func TestCount(t *testing.T) {
	tests := []struct {
		size     int64
		expected int
	}{
		{0, 0},
		{-1, 0},
		{15, 0},
		{16, 1},
		{31, 1},
		{32, 2},
		{16 * 1440, 1440},
	}

	for _, tt := range tests {
		if got := Count(tt.size); got != tt.expected {
			t.Errorf("Count(%d): expected %d, got %d", tt.size, tt.expected, got)
		}
	}
}

func TestAggregateRoundTrip(t *testing.T) {
	var a types.Aggregate
	a, _ = a.Observe(types.Reading{Humidity: 40, Temperature: 20, Pressure: 1000})
	a, _ = a.Observe(types.Reading{Humidity: 60, Temperature: 18, Pressure: 1010})

	buf := EncodeAggregate(a)
	if len(buf) != AggregateSize {
		t.Fatalf("expected %d bytes, got %d", AggregateSize, len(buf))
	}

	got, err := DecodeAggregate(buf, Options{})
	if err != nil {
		t.Fatalf("DecodeAggregate: %v", err)
	}
	if got != a {
		t.Errorf("expected %+v, got %+v", a, got)
	}
}

func TestAggregateUnsetEncoding(t *testing.T) {
	buf := EncodeAggregate(types.Aggregate{})

	for i := 0; i < 6; i++ {
		v := float64(math.Float32frombits(uint32(buf[i*4]) | uint32(buf[i*4+1])<<8 |
			uint32(buf[i*4+2])<<16 | uint32(buf[i*4+3])<<24))
		if i%2 == 0 && !math.IsInf(v, 1) {
			t.Errorf("slot %d: expected +Inf, got %v", i, v)
		}
		if i%2 == 1 && !math.IsInf(v, -1) {
			t.Errorf("slot %d: expected -Inf, got %v", i, v)
		}
	}

	got, err := DecodeAggregate(buf, Options{})
	if err != nil {
		t.Fatalf("DecodeAggregate: %v", err)
	}
	if !got.IsEmpty() {
		t.Errorf("expected empty aggregate, got %+v", got)
	}
}

func TestAggregateWrongSize(t *testing.T) {
	for _, n := range []int{0, 8, 23, 25, 48} {
		_, err := DecodeAggregate(make([]byte, n), Options{})
		if !errors.Is(err, errors.ErrMalformedRecord) {
			t.Errorf("size %d: expected ErrMalformedRecord, got %v", n, err)
		}
	}
}

func TestAggregateNaNIsUnset(t *testing.T) {
	a := types.AggregateFromExtrema([6]types.Extremum{
		types.Set(float32(math.NaN())), types.Set(50),
		types.Set(10), types.Set(float32(math.NaN())),
		types.Set(990), types.Set(1020),
	})

	got, err := DecodeAggregate(EncodeAggregate(a), Options{})
	if err != nil {
		t.Fatalf("DecodeAggregate: %v", err)
	}
	if got.MinHumidity.IsSet() {
		t.Error("NaN min humidity should decode as unset")
	}
	if got.MaxTemperature.IsSet() {
		t.Error("NaN max temperature should decode as unset")
	}
	if v, ok := got.MaxHumidity.Get(); !ok || v != 50 {
		t.Errorf("expected max humidity 50, got %v", got.MaxHumidity)
	}
}

func TestAggregateLegacySentinels(t *testing.T) {
	a := types.AggregateFromExtrema([6]types.Extremum{
		types.Set(999), types.Set(-999),
		types.Set(9999), types.Set(-9999),
		types.Set(999), types.Set(1013),
	})
	buf := EncodeAggregate(a)

	plain, err := DecodeAggregate(buf, Options{})
	if err != nil {
		t.Fatalf("DecodeAggregate: %v", err)
	}
	if plain != a {
		t.Errorf("without legacy sentinels: expected %+v, got %+v", a, plain)
	}

	legacy, err := DecodeAggregate(buf, Options{LegacySentinels: true})
	if err != nil {
		t.Fatalf("DecodeAggregate: %v", err)
	}
	extrema := legacy.Extrema()
	for i, e := range extrema[:5] {
		if e.IsSet() {
			t.Errorf("slot %d: expected unset, got %v", i, e)
		}
	}
	if v, ok := legacy.MaxPressure.Get(); !ok || v != 1013 {
		t.Errorf("expected max pressure 1013, got %v", legacy.MaxPressure)
	}
}
