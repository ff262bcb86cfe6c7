package scenario

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Kind is the direction of a scripted cargo change.
type Kind string

const (
	KindLoad   Kind = "load"
	KindUnload Kind = "unload"
)

// ErrInvalidEvent is wrapped by scenario validation failures.
var ErrInvalidEvent = errors.New("invalid scenario event")

// Scenario is a script of cargo changes applied at fixed ticks.
type Scenario struct {
	Name        string  `yaml:"name,omitempty"`
	Description string  `yaml:"description,omitempty"`
	Events      []Event `yaml:"events"`
}

// Event forces a weight change on a 1-based tick.
type Event struct {
	Tick int     `yaml:"tick"`
	Kind Kind    `yaml:"kind"`
	Tons float64 `yaml:"tons"`
	Note string  `yaml:"note,omitempty"`
}

// Delta is the signed weight change of the event.
func (e Event) Delta() float64 {
	if e.Kind == KindUnload {
		return -e.Tons
	}
	return e.Tons
}

// Load reads a YAML scenario definition from disk.
func Load(path string) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &s, nil
}

// Resolve returns the built-in scenario called ref, or loads ref as a file path.
// An empty ref yields nil.
func Resolve(ref string) (*Scenario, error) {
	if ref == "" {
		return nil, nil
	}
	if s, ok := BuiltIn()[ref]; ok {
		return &s, nil
	}
	return Load(ref)
}

// Validate checks every event and sorts them by tick.
func (s *Scenario) Validate() error {
	seen := make(map[int]bool, len(s.Events))
	for i, ev := range s.Events {
		switch {
		case ev.Tick < 1:
			return fmt.Errorf("%w: event %d: tick must be >= 1, got %d", ErrInvalidEvent, i, ev.Tick)
		case ev.Kind != KindLoad && ev.Kind != KindUnload:
			return fmt.Errorf("%w: event %d: unknown kind %q", ErrInvalidEvent, i, ev.Kind)
		case !(ev.Tons > 0):
			return fmt.Errorf("%w: event %d: tons must be positive", ErrInvalidEvent, i)
		case seen[ev.Tick]:
			return fmt.Errorf("%w: event %d: duplicate tick %d", ErrInvalidEvent, i, ev.Tick)
		}
		seen[ev.Tick] = true
	}
	sort.Slice(s.Events, func(i, j int) bool { return s.Events[i].Tick < s.Events[j].Tick })
	return nil
}

// At returns the event scheduled for tick, if any.
func (s *Scenario) At(tick int) (Event, bool) {
	if s == nil {
		return Event{}, false
	}
	for _, ev := range s.Events {
		if ev.Tick == tick {
			return ev, true
		}
	}
	return Event{}, false
}

// Last is the tick of the final event, or 0 for an empty scenario.
func (s *Scenario) Last() int {
	if s == nil || len(s.Events) == 0 {
		return 0
	}
	return s.Events[len(s.Events)-1].Tick
}
