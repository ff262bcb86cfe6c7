package sim

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"loadalert-sim/internal/config"
	"loadalert-sim/internal/scenario"
	"loadalert-sim/internal/telemetry"
)

// MockWriter collects readings for validation
type MockWriter struct {
	mu       sync.Mutex
	Readings []telemetry.Reading
	Err      error
	controls *Controls
}

func (w *MockWriter) Write(r telemetry.Reading) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Readings = append(w.Readings, r)
	return w.Err
}

func (w *MockWriter) SetControls(c Controls) { w.controls = &c }

func (w *MockWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.Readings)
}

// quietConfig disables noise, jumps and drift so weights only move on scripted events.
func quietConfig() *config.SimulationConfig {
	cfg := config.Default()
	cfg.NoiseStd = 0
	cfg.JumpProbability = 0
	cfg.PositionStepStd = 0
	cfg.Threshold = 10
	cfg.Initial.Weight = 8
	cfg.TickInterval = 5 * time.Millisecond
	cfg.PointsPerTick = 1
	return cfg
}

func fixedNow() func() time.Time {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time { return ts }
}

func TestSimulator_StepGeneratesReadings(t *testing.T) {
	cfg := quietConfig()
	cfg.PointsPerTick = 3
	writer := &MockWriter{}
	s, err := NewSimulator(cfg, writer, WithClock(fixedNow()), WithSessionID("session-1"))
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	if err := s.Step(context.Background(), 2); err != nil {
		t.Fatalf("Step: %v", err)
	}

	if got := s.Log().Len(); got != 6 {
		t.Fatalf("expected 6 readings in log, got %d", got)
	}
	if writer.count() != 6 {
		t.Fatalf("expected 6 readings written, got %d", writer.count())
	}
	if s.Ticks() != 6 {
		t.Fatalf("expected sequence 6, got %d", s.Ticks())
	}
	for _, r := range s.Log().Readings() {
		if r.SessionID != "session-1" || r.TruckID != cfg.TruckID {
			t.Fatalf("reading missing ids: %+v", r)
		}
		if r.Weight != 8 || r.Alert {
			t.Fatalf("unexpected quiet reading: %+v", r)
		}
	}
}

func TestSimulator_GeneratesSessionID(t *testing.T) {
	a, err := NewSimulator(quietConfig(), nil)
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	b, _ := NewSimulator(quietConfig(), nil)
	if a.SessionID() == "" || a.SessionID() == b.SessionID() {
		t.Fatalf("expected distinct session ids, got %q and %q", a.SessionID(), b.SessionID())
	}
}

func TestSimulator_RejectsInvalidConfig(t *testing.T) {
	cfg := quietConfig()
	cfg.Threshold = 0
	if _, err := NewSimulator(cfg, nil); err == nil {
		t.Fatalf("expected invalid config error")
	}
}

func TestSimulator_ScenarioEvents(t *testing.T) {
	sc := &scenario.Scenario{Name: "test", Events: []scenario.Event{
		{Tick: 2, Kind: scenario.KindLoad, Tons: 3},
		{Tick: 4, Kind: scenario.KindUnload, Tons: 5},
	}}
	s, err := NewSimulator(quietConfig(), nil, WithScenario(sc), WithClock(fixedNow()))
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	if err := s.Step(context.Background(), 5); err != nil {
		t.Fatalf("Step: %v", err)
	}
	want := []struct {
		weight float64
		alert  bool
	}{{8, false}, {11, true}, {11, true}, {6, false}, {6, false}}
	rs := s.Log().Readings()
	for i, w := range want {
		if rs[i].Weight != w.weight || rs[i].Alert != w.alert {
			t.Fatalf("reading %d = %.3f/%v, want %.3f/%v", i+1, rs[i].Weight, rs[i].Alert, w.weight, w.alert)
		}
	}
	if sum := s.Summary(); sum.Total != 5 || sum.Overloads != 2 || sum.Latest.Weight != 6 {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

func TestSimulator_ThresholdChangeAppliesForward(t *testing.T) {
	s, err := NewSimulator(quietConfig(), nil, WithClock(fixedNow()))
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	ctx := context.Background()
	if err := s.Step(ctx, 1); err != nil {
		t.Fatalf("Step: %v", err)
	}
	v, err := s.AdjustThreshold(-2.5)
	if err != nil || v != 7.5 {
		t.Fatalf("AdjustThreshold = %v, %v", v, err)
	}
	if err := s.Step(ctx, 1); err != nil {
		t.Fatalf("Step: %v", err)
	}
	rs := s.Log().Readings()
	if rs[0].Alert || !rs[1].Alert {
		t.Fatalf("threshold change must only affect later readings: %+v", rs)
	}
	if _, err := s.AdjustThreshold(-10); err == nil {
		t.Fatalf("expected non-positive threshold to be rejected")
	}
	if s.Threshold() != 7.5 || s.Config().Threshold != 7.5 {
		t.Fatalf("rejected change altered threshold: %v", s.Threshold())
	}
	if err := s.SetThreshold(20); err != nil || s.Threshold() != 20 {
		t.Fatalf("SetThreshold: %v", err)
	}
}

func TestSimulator_NilSourceFailsTick(t *testing.T) {
	writer := &MockWriter{}
	s, err := NewSimulator(quietConfig(), writer, WithSource(nil))
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	before := s.State()
	err = s.Step(context.Background(), 1)
	if !errors.Is(err, telemetry.ErrNoSource) {
		t.Fatalf("expected ErrNoSource, got %v", err)
	}
	if s.Log().Len() != 0 || writer.count() != 0 || s.Ticks() != 0 {
		t.Fatalf("failed tick must not emit readings")
	}
	if s.State() != before {
		t.Fatalf("failed tick changed state")
	}
}

func TestSimulator_WriterFailureKeepsLog(t *testing.T) {
	writer := &MockWriter{Err: errors.New("sink down")}
	s, err := NewSimulator(quietConfig(), writer)
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	if err := s.Step(context.Background(), 3); err != nil {
		t.Fatalf("sink failures must not fail the tick: %v", err)
	}
	if s.Log().Len() != 3 || writer.count() != 3 {
		t.Fatalf("expected 3 readings logged and attempted, got %d/%d", s.Log().Len(), writer.count())
	}
}

func TestSimulator_Manual(t *testing.T) {
	writer := &MockWriter{}
	s, err := NewSimulator(quietConfig(), writer, WithClock(fixedNow()))
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	ctx := context.Background()
	r, err := s.Manual(ctx, 12.5, 13.0, 78.0)
	if err != nil {
		t.Fatalf("Manual: %v", err)
	}
	if !r.Alert || r.SessionID != s.SessionID() {
		t.Fatalf("unexpected manual reading %+v", r)
	}
	if s.Ticks() != 0 {
		t.Fatalf("manual readings must not advance the scenario sequence")
	}
	if st := s.State(); st.Weight != 12.5 || st.Position.Lat != 13 {
		t.Fatalf("state not updated: %+v", st)
	}
	if err := s.Step(ctx, 1); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if last, _ := s.Log().Last(); last.Weight != 12.5 || last.Lon != 78 {
		t.Fatalf("next tick should continue from manual reading: %+v", last)
	}

	if _, err := s.Manual(ctx, math.NaN(), 0, 0); !errors.Is(err, telemetry.ErrInvalidReading) {
		t.Fatalf("expected ErrInvalidReading, got %v", err)
	}
	if _, err := s.Manual(ctx, 5, 95, 0); err == nil {
		t.Fatalf("expected invalid latitude to be rejected")
	}
	if s.Log().Len() != 2 || writer.count() != 2 {
		t.Fatalf("rejected readings must not be logged")
	}
}

func TestSimulator_ControlsWired(t *testing.T) {
	writer := &MockWriter{}
	s, err := NewSimulator(quietConfig(), writer)
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	c := writer.controls
	if c == nil {
		t.Fatalf("controls not delivered to writer")
	}
	if err := s.Step(context.Background(), 2); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if c.Summary().Total != 2 {
		t.Fatalf("summary control not bound to log")
	}
	if v, err := c.AdjustThreshold(0.5); err != nil || v != 10.5 || c.Threshold() != 10.5 {
		t.Fatalf("threshold control: %v %v", v, err)
	}
	if err := c.Manual(9, 12, 77); err != nil {
		t.Fatalf("manual control: %v", err)
	}
	c.Clear()
	if s.Log().Len() != 0 {
		t.Fatalf("clear control did not reset the log")
	}
	if s.State().Weight != 9 {
		t.Fatalf("reset must keep truck state")
	}
}

func TestSimulator_RunStopsOnCancel(t *testing.T) {
	writer := &MockWriter{}
	s, err := NewSimulator(quietConfig(), writer)
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for writer.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop")
	}
	if writer.count() < 2 {
		t.Fatalf("expected ticks before cancel, got %d", writer.count())
	}
}

func TestSimulator_RunReturnsTickError(t *testing.T) {
	s, err := NewSimulator(quietConfig(), nil, WithSource(nil))
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Run(ctx); !errors.Is(err, telemetry.ErrNoSource) {
		t.Fatalf("expected ErrNoSource from Run, got %v", err)
	}
}

// slowWriter widens the window between log append and sink write.
type slowWriter struct{ MockWriter }

func (w *slowWriter) Write(r telemetry.Reading) error {
	time.Sleep(100 * time.Microsecond)
	return w.MockWriter.Write(r)
}

func TestSimulator_SinkOrderMatchesLog(t *testing.T) {
	writer := &slowWriter{}
	s, err := NewSimulator(quietConfig(), writer)
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := s.Step(ctx, 50); err != nil {
			t.Errorf("Step: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if _, err := s.Manual(ctx, float64(i%30)+0.5, 12.9, 77.5); err != nil {
				t.Errorf("Manual: %v", err)
			}
		}
	}()
	wg.Wait()

	logged := s.Log().Readings()
	if len(logged) != 100 || writer.count() != 100 {
		t.Fatalf("expected 100 readings logged and written, got %d/%d", len(logged), writer.count())
	}
	for i := range logged {
		if writer.Readings[i] != logged[i] {
			t.Fatalf("sink order diverges from log at %d: %+v vs %+v", i, writer.Readings[i], logged[i])
		}
	}
}
