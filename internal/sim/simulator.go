// Simulator driving one truck's telemetry ticks
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"loadalert-sim/internal/config"
	"loadalert-sim/internal/scenario"
	"loadalert-sim/internal/telemetry"
)

// TelemetryWriter is an interface to support different output writers.
type TelemetryWriter interface {
	Write(telemetry.Reading) error
}

// Optional: Writers can also support batch mode
type batchWriter interface {
	WriteBatch([]telemetry.Reading) error
}

// Controls are the simulator operations an interactive writer may trigger.
type Controls struct {
	AdjustThreshold func(delta float64) (float64, error)
	Threshold       func() float64
	Clear           func()
	Manual          func(weight, lat, lon float64) error
	Summary         func() telemetry.Summary
}

// controllable writers accept simulator controls once the simulator exists.
type controllable interface {
	SetControls(Controls)
}

// AdminStatusWriter is implemented by writers that show whether the admin UI is up.
type AdminStatusWriter interface {
	SetAdminStatus(active bool)
}

// Option customises a Simulator.
type Option func(*options)

type options struct {
	src       telemetry.Source
	srcSet    bool
	now       func() time.Time
	scenario  *scenario.Scenario
	sessionID string
}

// WithSource overrides the random source. A nil source makes every tick fail.
func WithSource(src telemetry.Source) Option {
	return func(o *options) { o.src, o.srcSet = src, true }
}

// WithClock overrides the clock used for reading timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithScenario applies scripted load/unload events.
func WithScenario(sc *scenario.Scenario) Option {
	return func(o *options) { o.scenario = sc }
}

// WithSessionID fixes the session id instead of generating one.
func WithSessionID(id string) Option {
	return func(o *options) { o.sessionID = id }
}

// Simulator owns the truck state, the reading log and the sinks the log is mirrored to.
type Simulator struct {
	cfg          *config.SimulationConfig
	gen          *telemetry.Generator
	log          *telemetry.Log
	writer       TelemetryWriter
	scenario     *scenario.Scenario
	state        telemetry.State
	seq          int
	sessionID    string
	tickInterval time.Duration

	mu      sync.Mutex // guards gen, state, seq and issued
	writeMu sync.Mutex // serialises sink writes, guards serving
	turn    *sync.Cond // signalled on writeMu when serving advances

	// Sink writes are ticketed under mu so sinks see readings in log order.
	issued  uint64
	serving uint64
}

// NewSimulator validates cfg and prepares a session starting from cfg's initial state.
func NewSimulator(cfg *config.SimulationConfig, writer TelemetryWriter, opts ...Option) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.srcSet {
		o.src = telemetry.NewSource(cfg.Seed)
	}
	if o.sessionID == "" {
		o.sessionID = uuid.New().String()
	}

	gen, err := telemetry.NewGenerator(cfg.TruckID, cfg.Telemetry(), o.src, telemetry.WithClock(o.now))
	if err != nil {
		return nil, err
	}
	s := &Simulator{
		cfg:          cfg,
		gen:          gen,
		log:          telemetry.NewLog(),
		writer:       writer,
		scenario:     o.scenario,
		state:        cfg.InitialState(),
		sessionID:    o.sessionID,
		tickInterval: cfg.TickInterval,
	}
	s.turn = sync.NewCond(&s.writeMu)
	if c, ok := writer.(controllable); ok {
		c.SetControls(s.controls())
	}
	return s, nil
}

func (s *Simulator) controls() Controls {
	return Controls{
		AdjustThreshold: s.AdjustThreshold,
		Threshold:       s.Threshold,
		Clear:           s.Reset,
		Manual: func(weight, lat, lon float64) error {
			_, err := s.Manual(context.Background(), weight, lat, lon)
			return err
		},
		Summary: s.Summary,
	}
}

// Log returns the append-only reading log. It is the source of truth for every consumer.
func (s *Simulator) Log() *telemetry.Log {
	return s.log
}

// Summary returns the derived counters and latest reading.
func (s *Simulator) Summary() telemetry.Summary {
	return s.log.Summary()
}

// SessionID identifies this run in every emitted reading.
func (s *Simulator) SessionID() string {
	return s.sessionID
}

// State returns the current truck state.
func (s *Simulator) State() telemetry.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ticks returns how many readings the generator has produced in this session.
func (s *Simulator) Ticks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Threshold returns the active overload threshold.
func (s *Simulator) Threshold() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen.Config().Threshold
}

// SetThreshold changes the threshold for subsequent readings. Past readings keep their flag.
func (s *Simulator) SetThreshold(v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen.SetThreshold(v)
}

// AdjustThreshold moves the threshold by delta and returns the new value.
func (s *Simulator) AdjustThreshold(delta float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.gen.Config().Threshold + delta
	if err := s.gen.SetThreshold(next); err != nil {
		return s.gen.Config().Threshold, err
	}
	return next, nil
}

// Config returns the session configuration with the live threshold applied.
func (s *Simulator) Config() *config.SimulationConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.cfg
	cp.Threshold = s.gen.Config().Threshold
	return &cp
}

// Reset empties the log. The truck keeps its current weight and position.
func (s *Simulator) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.Reset()
}

// Manual appends an operator-supplied reading, classified by the same rule as generated ones.
// It becomes the state the next tick continues from.
func (s *Simulator) Manual(ctx context.Context, weight, lat, lon float64) (telemetry.Reading, error) {
	s.mu.Lock()
	r, next, err := s.gen.Manual(s.state, weight, telemetry.Position{Lat: lat, Lon: lon})
	if err != nil {
		s.mu.Unlock()
		return telemetry.Reading{}, fmt.Errorf("manual reading: %w", err)
	}
	r.SessionID = s.sessionID
	s.log.Append(r)
	s.state = next
	ticket, ok := s.ticket(1)
	s.mu.Unlock()

	if ok {
		s.flush(ctx, ticket, []telemetry.Reading{r})
	}
	return r, nil
}
