package sampler

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"github.com/xtxerr/atmolog/internal/storage/types"
)

// Measurement is one set of sensor values.
type Measurement struct {
	Humidity    float32 // %
	Temperature float32 // C
	Pressure    float32 // hPa
}

// Reading stamps m with the boot-relative age in minutes.
func (m Measurement) Reading(ageMinutes uint32) types.Reading {
	return types.Reading{
		Humidity:    m.Humidity,
		Temperature: m.Temperature,
		Pressure:    m.Pressure,
		AgeMinutes:  ageMinutes,
	}
}

// Source reads the current sensor values.
type Source interface {
	Read(ctx context.Context) (Measurement, error)
}

// StaticSource returns a fixed measurement, or Err if set.
type StaticSource struct {
	Value Measurement
	Err   error
}

// Read implements Source.
func (s StaticSource) Read(context.Context) (Measurement, error) {
	if s.Err != nil {
		return Measurement{}, s.Err
	}
	return s.Value, nil
}

// SimulatedSource produces a bounded random walk around indoor conditions.
type SimulatedSource struct {
	mu  sync.Mutex
	rng *rand.Rand
	cur Measurement
}

// NewSimulatedSource returns a deterministic walk for a given seed.
func NewSimulatedSource(seed int64) *SimulatedSource {
	return &SimulatedSource{
		rng: rand.New(rand.NewSource(seed)),
		cur: Measurement{Humidity: 45, Temperature: 21, Pressure: 1013},
	}
}

// Read implements Source.
func (s *SimulatedSource) Read(ctx context.Context) (Measurement, error) {
	if err := ctx.Err(); err != nil {
		return Measurement{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cur.Humidity = walk(s.rng, s.cur.Humidity, 0.5, 0, 100)
	s.cur.Temperature = walk(s.rng, s.cur.Temperature, 0.1, -40, 85)
	s.cur.Pressure = walk(s.rng, s.cur.Pressure, 0.2, 300, 1100)
	return s.cur, nil
}

func walk(rng *rand.Rand, v, step, lo, hi float32) float32 {
	v += (rng.Float32()*2 - 1) * step
	v = float32(math.Round(float64(v)*10) / 10)
	return min(max(v, lo), hi)
}
