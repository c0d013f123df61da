// Package aggregate tracks the persisted min/max aggregate of all readings
// since the last clear and computes percentile summaries over a stream of
// readings.
package aggregate

import (
	"math"
	"sync"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/xtxerr/atmolog/config"
	"github.com/xtxerr/atmolog/internal/storage/types"
)

// StreamingStats maintains running statistics for one field.
// It supports optional percentile calculation using DDSketch.
type StreamingStats struct {
	mu sync.Mutex

	field types.Field

	count int64
	sum   float64
	min   float64
	max   float64

	// nil if percentiles are disabled
	sketch *ddsketch.DDSketch
}

// NewStreamingStats creates running statistics for field. A positive
// accuracy enables percentiles with that relative accuracy.
func NewStreamingStats(field types.Field, accuracy float64) *StreamingStats {
	return &StreamingStats{
		field:  field,
		min:    math.MaxFloat64,
		max:    -math.MaxFloat64,
		sketch: newSketch(accuracy),
	}
}

func newSketch(accuracy float64) *ddsketch.DDSketch {
	if accuracy <= 0 {
		return nil
	}
	sketch, err := ddsketch.NewDefaultDDSketch(accuracy)
	if err != nil {
		return nil
	}
	return sketch
}

// Add adds a value. NaN and infinite values are ignored.
func (s *StreamingStats) Add(value float64) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.count++
	s.sum += value

	if value < s.min {
		s.min = value
	}
	if value > s.max {
		s.max = value
	}

	if s.sketch != nil {
		_ = s.sketch.Add(value)
	}
}

// Result returns the statistics gathered so far.
func (s *StreamingStats) Result() FieldSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := FieldSummary{
		Field: s.field.String(),
		Unit:  s.field.Unit(),
		Count: s.count,
	}
	if s.count == 0 {
		return result
	}

	result.Mean = s.sum / float64(s.count)
	result.Min = s.min
	result.Max = s.max

	if s.sketch != nil {
		p50, _ := s.sketch.GetValueAtQuantile(0.50)
		p90, _ := s.sketch.GetValueAtQuantile(0.90)
		p99, _ := s.sketch.GetValueAtQuantile(0.99)
		result.SetPercentiles(p50, p90, p99)
	}
	return result
}

// FieldSummary is the summary of one field. Percentiles are nil when
// disabled or when there were no values.
type FieldSummary struct {
	Field string   `json:"field"`
	Unit  string   `json:"unit"`
	Count int64    `json:"count"`
	Mean  float64  `json:"mean"`
	Min   float64  `json:"min"`
	Max   float64  `json:"max"`
	P50   *float64 `json:"p50,omitempty"`
	P90   *float64 `json:"p90,omitempty"`
	P99   *float64 `json:"p99,omitempty"`
}

// SetPercentiles sets the percentile values.
func (f *FieldSummary) SetPercentiles(p50, p90, p99 float64) {
	f.P50, f.P90, f.P99 = &p50, &p90, &p99
}

// HasPercentiles reports whether percentiles are present.
func (f FieldSummary) HasPercentiles() bool {
	return f.P50 != nil
}

// Summary summarizes a window of readings.
type Summary struct {
	Points int            `json:"points"`
	Fields []FieldSummary `json:"fields"`
}

// Field returns the summary for name, if present.
func (s Summary) Field(name string) (FieldSummary, bool) {
	for _, f := range s.Fields {
		if f.Field == name {
			return f, true
		}
	}
	return FieldSummary{}, false
}

// Summarizer folds readings into per-field statistics.
type Summarizer struct {
	points int
	fields []*StreamingStats
}

// NewSummarizer returns a summarizer with the given percentile accuracy.
// Zero selects the default accuracy; a negative value disables percentiles.
func NewSummarizer(accuracy float64) *Summarizer {
	if accuracy == 0 {
		accuracy = config.DefaultSketchAccuracy
	}
	s := &Summarizer{}
	for _, f := range types.AllFields() {
		s.fields = append(s.fields, NewStreamingStats(f, accuracy))
	}
	return s
}

// Add folds a reading in.
func (s *Summarizer) Add(r types.Reading) {
	s.points++
	for _, f := range s.fields {
		f.Add(float64(f.field.Value(r)))
	}
}

// Result returns the summary.
func (s *Summarizer) Result() Summary {
	out := Summary{Points: s.points, Fields: make([]FieldSummary, 0, len(s.fields))}
	for _, f := range s.fields {
		out.Fields = append(out.Fields, f.Result())
	}
	return out
}
