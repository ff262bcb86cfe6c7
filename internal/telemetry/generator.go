package telemetry

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
)

// Source is the random source a generator draws from. *rand.Rand satisfies it.
type Source interface {
	Float64() float64
	NormFloat64() float64
}

// NewSource returns a seeded source. A zero seed uses the current time.
func NewSource(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// Generator simulates telemetry for a single truck.
type Generator struct {
	TruckID string
	cfg     Config
	src     Source
	now     func() time.Time
}

// Option customises a Generator.
type Option func(*Generator)

// WithClock overrides the time source used for reading timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// NewGenerator creates a generator after validating cfg.
func NewGenerator(truckID string, cfg Config, src Source, opts ...Option) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g := &Generator{TruckID: truckID, cfg: cfg, src: src, now: time.Now}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

// Config returns the active configuration.
func (g *Generator) Config() Config {
	return g.cfg
}

// SetConfig replaces the configuration. It applies to the next reading only.
func (g *Generator) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	g.cfg = cfg
	return nil
}

// SetThreshold changes the overload threshold for subsequent readings.
func (g *Generator) SetThreshold(threshold float64) error {
	cfg := g.cfg
	cfg.Threshold = threshold
	return g.SetConfig(cfg)
}

// Next advances st by one tick and returns the classified reading with the new state.
func (g *Generator) Next(st State) (Reading, State, error) {
	if g.src == nil {
		return Reading{}, st, ErrNoSource
	}
	return g.advance(st, g.weightDelta())
}

// NextWithJump advances st by one tick applying delta tons instead of the random
// weight perturbation. It models a scripted load (positive) or unload (negative).
func (g *Generator) NextWithJump(st State, delta float64) (Reading, State, error) {
	if g.src == nil {
		return Reading{}, st, ErrNoSource
	}
	return g.advance(st, delta)
}

// Manual builds a reading from an operator-supplied weight and position, classified
// by the same rule as generated readings. The returned state continues from it.
func (g *Generator) Manual(st State, weight float64, pos Position) (Reading, State, error) {
	if math.IsNaN(weight) || math.IsInf(weight, 0) {
		return Reading{}, st, fmt.Errorf("%w: weight %v", ErrInvalidReading, weight)
	}
	weight = quantize(weight, g.cfg.WeightPrecision)
	switch {
	case !g.cfg.WeightBounds.Contains(weight):
		return Reading{}, st, fmt.Errorf("%w: weight %v outside [%v,%v]", ErrInvalidReading, weight, g.cfg.WeightBounds.Min, g.cfg.WeightBounds.Max)
	case !(math.Abs(pos.Lat) <= 90):
		return Reading{}, st, fmt.Errorf("%w: latitude %v", ErrInvalidReading, pos.Lat)
	case !(math.Abs(pos.Lon) <= 180):
		return Reading{}, st, fmt.Errorf("%w: longitude %v", ErrInvalidReading, pos.Lon)
	}
	r, next := g.emit(weight, g.fix(pos), st.At)
	return r, next, nil
}

// Classify applies the overload rule with the current threshold.
func (g *Generator) Classify(weight float64) bool {
	return Classify(weight, g.cfg.Threshold)
}

func (g *Generator) advance(st State, delta float64) (Reading, State, error) {
	weight := g.cfg.WeightBounds.Clamp(quantize(st.Weight+delta, g.cfg.WeightPrecision))
	r, next := g.emit(weight, g.step(st.Position), st.At)
	return r, next, nil
}

// emit stamps and classifies a reading. Timestamps never precede prev.
func (g *Generator) emit(weight float64, pos Position, prev time.Time) (Reading, State) {
	ts := g.now().UTC()
	if ts.Before(prev) {
		ts = prev
	}

	r := Reading{
		TruckID:   g.TruckID,
		Weight:    weight,
		Lat:       pos.Lat,
		Lon:       pos.Lon,
		Alert:     g.Classify(weight),
		Timestamp: ts,
	}
	return r, State{Weight: weight, Position: pos, At: ts}
}

// weightDelta draws either a load/unload jump or ordinary sensor noise.
func (g *Generator) weightDelta() float64 {
	if g.cfg.JumpProbability > 0 && g.src.Float64() < g.cfg.JumpProbability {
		jr := g.cfg.JumpRange
		mag := jr.Min + g.src.Float64()*(jr.Max-jr.Min)
		if g.src.Float64() < 0.5 {
			return -mag
		}
		return mag
	}
	if g.cfg.NoiseStd == 0 {
		return 0
	}
	return g.src.NormFloat64() * g.cfg.NoiseStd
}

// step performs one random-walk move, keeping coordinates valid.
func (g *Generator) step(pos Position) Position {
	if g.cfg.PositionStepStd > 0 {
		pos.Lat += g.src.NormFloat64() * g.cfg.PositionStepStd
		pos.Lon += g.src.NormFloat64() * g.cfg.PositionStepStd
	}
	return g.fix(pos)
}

// fix quantises pos and folds it back into valid coordinates.
func (g *Generator) fix(pos Position) Position {
	lon := quantize(wrapLongitude(pos.Lon), g.cfg.CoordPrecision)
	if lon >= 180 {
		lon = -180
	}
	return Position{
		Lat: math.Max(-90, math.Min(90, quantize(pos.Lat, g.cfg.CoordPrecision))),
		Lon: lon,
	}
}

func wrapLongitude(lon float64) float64 {
	if lon >= -180 && lon < 180 {
		return lon
	}
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}

func quantize(v float64, places int32) float64 {
	if places <= 0 {
		return v
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
