package sensor

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Sim produces a bounded random walk around a base temperature and
// humidity, roughly what a DHT22 on a desk reports.
type Sim struct {
	mu       sync.Mutex
	rng      *rand.Rand
	baseTemp float64
	baseHum  float64
	temp     float64
	hum      float64
	failNext bool
}

// NewSim creates a simulated sensor. seed makes the walk reproducible.
func NewSim(baseTemp, baseHum float64, seed uint64) *Sim {
	return &Sim{
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		baseTemp: baseTemp,
		baseHum:  baseHum,
		temp:     baseTemp,
		hum:      baseHum,
	}
}

// FailNext makes the next Read return a NaN reading, like a DHT22
// checksum failure.
func (s *Sim) FailNext() {
	s.mu.Lock()
	s.failNext = true
	s.mu.Unlock()
}

// Read advances the walk one step.
func (s *Sim) Read(ctx context.Context) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Invalid(time.Now()), err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext {
		s.failNext = false
		return Invalid(time.Now()), nil
	}

	s.temp = walk(s.rng, s.temp, s.baseTemp, 0.2, 3)
	s.hum = walk(s.rng, s.hum, s.baseHum, 0.5, 10)
	s.hum = math.Max(0, math.Min(100, s.hum))

	return Reading{Temperature: s.temp, Humidity: s.hum, Time: time.Now()}, nil
}

// walk moves v by at most step, keeping it within span of base.
func walk(rng *rand.Rand, v, base, step, span float64) float64 {
	v += (rng.Float64()*2 - 1) * step
	return math.Max(base-span, math.Min(base+span, v))
}
