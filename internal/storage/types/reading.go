package types

import "fmt"

// Reading is one sensor sample as persisted in the log.
// The field order and widths match the 16-byte on-device record.
type Reading struct {
	Humidity    float32 // Relative humidity in %
	Temperature float32 // Degrees Celsius
	Pressure    float32 // Hectopascal
	AgeMinutes  uint32  // Minutes since boot when the sample was taken
}

// String returns a compact human-readable representation.
func (r Reading) String() string {
	return fmt.Sprintf("rh=%.1f%% t=%.1fC p=%.1fhPa age=%dm",
		r.Humidity, r.Temperature, r.Pressure, r.AgeMinutes)
}

// Field identifies one measured quantity of a Reading.
type Field int

const (
	// FieldHumidity is relative humidity.
	FieldHumidity Field = iota
	// FieldTemperature is air temperature.
	FieldTemperature
	// FieldPressure is barometric pressure.
	FieldPressure
)

// String returns the string representation of the field.
func (f Field) String() string {
	switch f {
	case FieldHumidity:
		return "humidity"
	case FieldTemperature:
		return "temperature"
	case FieldPressure:
		return "pressure"
	default:
		return fmt.Sprintf("unknown(%d)", f)
	}
}

// Unit returns the display unit of the field.
func (f Field) Unit() string {
	switch f {
	case FieldHumidity:
		return "%"
	case FieldTemperature:
		return "C"
	case FieldPressure:
		return "hPa"
	default:
		return ""
	}
}

// Value extracts the field from a reading.
func (f Field) Value(r Reading) float32 {
	switch f {
	case FieldHumidity:
		return r.Humidity
	case FieldTemperature:
		return r.Temperature
	case FieldPressure:
		return r.Pressure
	default:
		return 0
	}
}

// ParseField parses a string into a Field.
func ParseField(s string) (Field, error) {
	switch s {
	case "humidity":
		return FieldHumidity, nil
	case "temperature":
		return FieldTemperature, nil
	case "pressure":
		return FieldPressure, nil
	default:
		return FieldHumidity, fmt.Errorf("unknown field: %s", s)
	}
}

// AllFields returns all measured fields in record order.
func AllFields() []Field {
	return []Field{FieldHumidity, FieldTemperature, FieldPressure}
}

// ExportRow is a reading labelled for export.
// AgeMinutes is "minutes ago", derived from the logical index and the
// sample interval, not the boot-relative age stored in the record.
type ExportRow struct {
	Index       int     `json:"-"`
	AgeMinutes  uint32  `json:"age_minutes"`
	Humidity    float32 `json:"humidity"`
	Temperature float32 `json:"temperature"`
	Pressure    float32 `json:"pressure"`
}

// NewExportRow labels the reading at logical index i of n total records.
func NewExportRow(i, n int, intervalMin uint32, r Reading) ExportRow {
	return ExportRow{
		Index:       i,
		AgeMinutes:  AgeLabel(i, n, intervalMin),
		Humidity:    r.Humidity,
		Temperature: r.Temperature,
		Pressure:    r.Pressure,
	}
}

// AgeLabel returns (n - 1 - i) * intervalMin, the age in minutes of the
// record at logical index i when the log holds n records.
func AgeLabel(i, n int, intervalMin uint32) uint32 {
	if i < 0 || i >= n {
		return 0
	}
	return uint32(n-1-i) * intervalMin
}
