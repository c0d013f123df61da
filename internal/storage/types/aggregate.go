package types

import (
	"strconv"
)

// Extremum is a running minimum or maximum that is either unset or holds a
// value. It replaces numeric sentinels so an unset extremum can never be
// mistaken for a real one.
type Extremum struct {
	value float32
	set   bool
}

// Unset returns an extremum with no value.
func Unset() Extremum {
	return Extremum{}
}

// Set returns an extremum holding v.
func Set(v float32) Extremum {
	return Extremum{value: v, set: true}
}

// Get returns the value and whether it is set.
func (e Extremum) Get() (float32, bool) {
	return e.value, e.set
}

// IsSet returns true if the extremum holds a value.
func (e Extremum) IsSet() bool {
	return e.set
}

// Value returns the value, or zero if unset.
func (e Extremum) Value() float32 {
	return e.value
}

// lowerBy returns the extremum improved towards v as a minimum.
func (e Extremum) lowerBy(v float32) (Extremum, bool) {
	if !e.set || v < e.value {
		return Set(v), true
	}
	return e, false
}

// raisedBy returns the extremum improved towards v as a maximum.
func (e Extremum) raisedBy(v float32) (Extremum, bool) {
	if !e.set || v > e.value {
		return Set(v), true
	}
	return e, false
}

// MarshalJSON encodes an unset extremum as null.
func (e Extremum) MarshalJSON() ([]byte, error) {
	if !e.set {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, float64(e.value), 'f', -1, 32), nil
}

// UnmarshalJSON decodes null as unset.
func (e *Extremum) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*e = Unset()
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 32)
	if err != nil {
		return err
	}
	*e = Set(float32(v))
	return nil
}

// String returns the value or "unset".
func (e Extremum) String() string {
	if !e.set {
		return "unset"
	}
	return strconv.FormatFloat(float64(e.value), 'f', 2, 32)
}

// Aggregate holds the running min/max of every measured field since the
// last clear.
type Aggregate struct {
	MinHumidity    Extremum `json:"min_humidity"`
	MaxHumidity    Extremum `json:"max_humidity"`
	MinTemperature Extremum `json:"min_temperature"`
	MaxTemperature Extremum `json:"max_temperature"`
	MinPressure    Extremum `json:"min_pressure"`
	MaxPressure    Extremum `json:"max_pressure"`
}

// Observe folds a reading into the aggregate. It returns the new aggregate
// and whether any of the six extrema strictly improved.
// NaN field values never compare as an improvement and are ignored.
func (a Aggregate) Observe(r Reading) (Aggregate, bool) {
	var changed, c bool

	if !isNaN(r.Humidity) {
		a.MinHumidity, c = a.MinHumidity.lowerBy(r.Humidity)
		changed = changed || c
		a.MaxHumidity, c = a.MaxHumidity.raisedBy(r.Humidity)
		changed = changed || c
	}
	if !isNaN(r.Temperature) {
		a.MinTemperature, c = a.MinTemperature.lowerBy(r.Temperature)
		changed = changed || c
		a.MaxTemperature, c = a.MaxTemperature.raisedBy(r.Temperature)
		changed = changed || c
	}
	if !isNaN(r.Pressure) {
		a.MinPressure, c = a.MinPressure.lowerBy(r.Pressure)
		changed = changed || c
		a.MaxPressure, c = a.MaxPressure.raisedBy(r.Pressure)
		changed = changed || c
	}

	return a, changed
}

// Range returns the min and max extrema of a field.
func (a Aggregate) Range(f Field) (min, max Extremum) {
	switch f {
	case FieldHumidity:
		return a.MinHumidity, a.MaxHumidity
	case FieldTemperature:
		return a.MinTemperature, a.MaxTemperature
	case FieldPressure:
		return a.MinPressure, a.MaxPressure
	default:
		return Unset(), Unset()
	}
}

// IsEmpty returns true if no extremum is set.
func (a Aggregate) IsEmpty() bool {
	return !a.MinHumidity.set && !a.MaxHumidity.set &&
		!a.MinTemperature.set && !a.MaxTemperature.set &&
		!a.MinPressure.set && !a.MaxPressure.set
}

// Extrema returns the six extrema in persisted order.
func (a Aggregate) Extrema() [6]Extremum {
	return [6]Extremum{
		a.MinHumidity, a.MaxHumidity,
		a.MinTemperature, a.MaxTemperature,
		a.MinPressure, a.MaxPressure,
	}
}

// AggregateFromExtrema builds an aggregate from extrema in persisted order.
func AggregateFromExtrema(e [6]Extremum) Aggregate {
	return Aggregate{
		MinHumidity:    e[0],
		MaxHumidity:    e[1],
		MinTemperature: e[2],
		MaxTemperature: e[3],
		MinPressure:    e[4],
		MaxPressure:    e[5],
	}
}

func isNaN(v float32) bool {
	return v != v
}
