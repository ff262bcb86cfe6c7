// Telemetry records and generator configuration
package telemetry

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"
)

// Reading is one classified telemetry observation for a truck.
type Reading struct {
	SessionID string    `json:"session_id,omitempty"`
	TruckID   string    `json:"truck_id"`
	Weight    float64   `json:"weight"` // tons
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Alert     bool      `json:"alert"`
	Timestamp time.Time `json:"ts"`
}

// ReadingTableName holds the table name used by the database sinks.
// It defaults to "truck_telemetry" but can be overridden via the
// GREPTIMEDB_TABLE environment variable.
var ReadingTableName = func() string {
	if env := os.Getenv("GREPTIMEDB_TABLE"); env != "" {
		return env
	}
	return "truck_telemetry"
}()

func (Reading) TableName() string {
	return ReadingTableName
}

// Position holds latitude and longitude in degrees.
type Position struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// State is the latent truck state carried between ticks.
type State struct {
	Weight   float64
	Position Position
	At       time.Time
}

// StateOf returns the state implied by a reading.
func StateOf(r Reading) State {
	return State{Weight: r.Weight, Position: Position{Lat: r.Lat, Lon: r.Lon}, At: r.Timestamp}
}

// Range is a closed [Min, Max] interval.
type Range struct {
	Min float64 `json:"min" yaml:"min" mapstructure:"min"`
	Max float64 `json:"max" yaml:"max" mapstructure:"max"`
}

// Clamp limits v to the range.
func (r Range) Clamp(v float64) float64 {
	return math.Max(r.Min, math.Min(r.Max, v))
}

// Contains reports whether v lies inside the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

var (
	// ErrInvalidConfig is wrapped by every configuration validation failure.
	ErrInvalidConfig = errors.New("invalid telemetry config")
	// ErrNoSource is returned when a generator has no random source to draw from.
	ErrNoSource = errors.New("random source unavailable")
	// ErrInvalidReading is returned for manual readings outside the valid domain.
	ErrInvalidReading = errors.New("invalid reading")
)

// Default quantisation of generated values, in decimal places.
const (
	DefaultWeightPrecision = 3
	DefaultCoordPrecision  = 6
)

// Config controls how readings are generated and classified.
type Config struct {
	Threshold       float64 // overload limit in tons
	NoiseStd        float64 // std of per-tick weight noise
	PositionStepStd float64 // std of per-tick lat/lon step, degrees
	JumpProbability float64
	JumpRange       Range // magnitude of a load/unload jump
	WeightBounds    Range
	// Decimal places kept for weight and coordinates; zero keeps full precision.
	WeightPrecision int32
	CoordPrecision  int32
}

// Validate rejects configurations that must never reach the generator.
// Nothing is clamped silently.
func (c Config) Validate() error {
	for name, v := range map[string]float64{
		"threshold":         c.Threshold,
		"noise_std":         c.NoiseStd,
		"position_step_std": c.PositionStepStd,
		"jump_probability":  c.JumpProbability,
		"jump_range.min":    c.JumpRange.Min,
		"jump_range.max":    c.JumpRange.Max,
		"weight_bounds.min": c.WeightBounds.Min,
		"weight_bounds.max": c.WeightBounds.Max,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s must be finite, got %v", ErrInvalidConfig, name, v)
		}
	}
	switch {
	case c.Threshold <= 0:
		return fmt.Errorf("%w: threshold must be positive, got %v", ErrInvalidConfig, c.Threshold)
	case c.NoiseStd < 0:
		return fmt.Errorf("%w: noise_std must not be negative, got %v", ErrInvalidConfig, c.NoiseStd)
	case c.PositionStepStd < 0:
		return fmt.Errorf("%w: position_step_std must not be negative, got %v", ErrInvalidConfig, c.PositionStepStd)
	case c.JumpProbability < 0 || c.JumpProbability > 1:
		return fmt.Errorf("%w: jump_probability must be within [0,1], got %v", ErrInvalidConfig, c.JumpProbability)
	case c.JumpRange.Min < 0 || c.JumpRange.Min > c.JumpRange.Max:
		return fmt.Errorf("%w: jump_range must satisfy 0 <= min <= max, got [%v,%v]", ErrInvalidConfig, c.JumpRange.Min, c.JumpRange.Max)
	case c.WeightBounds.Min < 0:
		return fmt.Errorf("%w: weight_bounds.min must not be negative, got %v", ErrInvalidConfig, c.WeightBounds.Min)
	case c.WeightBounds.Min >= c.WeightBounds.Max:
		return fmt.Errorf("%w: weight_bounds.min must be below max, got [%v,%v]", ErrInvalidConfig, c.WeightBounds.Min, c.WeightBounds.Max)
	case c.WeightPrecision < 0 || c.CoordPrecision < 0:
		return fmt.Errorf("%w: precision must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Classify is the overload rule: a reading alerts only when weight strictly exceeds threshold.
func Classify(weight, threshold float64) bool {
	return weight > threshold
}

// Summary holds the counters derived from a reading log.
type Summary struct {
	Total     int      `json:"total"`
	Overloads int      `json:"overloads"`
	Latest    *Reading `json:"latest,omitempty"`
}
