package testing

import (
	"testing"

	"github.com/xtxerr/atmolog/internal/storage/types"
)

// Reading returns a reading whose fields are all derived from h, so a
// single number identifies it in assertions.
func Reading(h float32) types.Reading {
	return types.Reading{
		Humidity:    h,
		Temperature: h / 2,
		Pressure:    1000 + h,
		AgeMinutes:  uint32(h),
	}
}

// Readings returns Reading(h) for each h.
func Readings(hs ...float32) []types.Reading {
	out := make([]types.Reading, len(hs))
	for i, h := range hs {
		out[i] = Reading(h)
	}
	return out
}

// Sequence returns n readings with humidities start, start+1, ...
func Sequence(start float32, n int) []types.Reading {
	out := make([]types.Reading, n)
	for i := range out {
		out[i] = Reading(start + float32(i))
	}
	return out
}

// Collect drains a cursor and closes it.
func Collect(t *testing.T, c types.Cursor) []types.Reading {
	t.Helper()
	defer c.Close()

	var out []types.Reading
	for c.Next() {
		out = append(out, c.Reading())
	}
	if err := c.Err(); err != nil {
		t.Fatalf("cursor: %v", err)
	}
	return out
}

// CollectIndexes drains a cursor and returns the logical indexes it yielded.
func CollectIndexes(t *testing.T, c types.Cursor) []int {
	t.Helper()
	defer c.Close()

	var out []int
	for c.Next() {
		out = append(out, c.Index())
	}
	if err := c.Err(); err != nil {
		t.Fatalf("cursor: %v", err)
	}
	return out
}

// Humidities extracts the humidity of each reading.
func Humidities(rs []types.Reading) []float32 {
	out := make([]float32, len(rs))
	for i, r := range rs {
		out[i] = r.Humidity
	}
	return out
}

// AppendAll appends every reading and fails the test on error.
func AppendAll(t *testing.T, l types.Log, rs []types.Reading) {
	t.Helper()
	for i, r := range rs {
		if _, err := l.Append(r); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
}

// EqualReadings reports whether a and b hold the same readings.
func EqualReadings(a, b []types.Reading) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
