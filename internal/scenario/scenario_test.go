package scenario

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadScenario(t *testing.T) {
	sc, err := Load("testdata/simple.yaml")
	if err != nil {
		t.Fatalf("load scenario: %v", err)
	}
	if sc.Name != "example" {
		t.Fatalf("unexpected name %s", sc.Name)
	}
	if sc.Description != "basic test scenario" {
		t.Fatalf("unexpected description %s", sc.Description)
	}
	if len(sc.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(sc.Events))
	}
	if sc.Events[0].Tick != 3 || sc.Events[0].Note != "pallet" {
		t.Fatalf("events not sorted by tick: %+v", sc.Events)
	}
	if sc.Last() != 5 {
		t.Fatalf("expected last tick 5, got %d", sc.Last())
	}
}

func TestEventAt(t *testing.T) {
	sc, err := Load("testdata/simple.yaml")
	if err != nil {
		t.Fatalf("load scenario: %v", err)
	}
	ev, ok := sc.At(5)
	if !ok || ev.Delta() != -2 {
		t.Fatalf("expected unload of 2 at tick 5, got %+v ok=%v", ev, ok)
	}
	if ev, ok := sc.At(3); !ok || ev.Delta() != 1.5 {
		t.Fatalf("expected load of 1.5 at tick 3, got %+v", ev)
	}
	if _, ok := sc.At(4); ok {
		t.Fatalf("no event expected at tick 4")
	}
	var none *Scenario
	if _, ok := none.At(1); ok {
		t.Fatalf("nil scenario has no events")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]Event{
		"zero tick":    {Tick: 0, Kind: KindLoad, Tons: 1},
		"unknown kind": {Tick: 1, Kind: "dump", Tons: 1},
		"zero tons":    {Tick: 1, Kind: KindUnload, Tons: 0},
	}
	for name, ev := range cases {
		s := Scenario{Events: []Event{ev}}
		if err := s.Validate(); !errors.Is(err, ErrInvalidEvent) {
			t.Errorf("%s: expected ErrInvalidEvent, got %v", name, err)
		}
	}
	dup := Scenario{Events: []Event{{Tick: 2, Kind: KindLoad, Tons: 1}, {Tick: 2, Kind: KindUnload, Tons: 1}}}
	if err := dup.Validate(); !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("duplicate tick: expected ErrInvalidEvent, got %v", err)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("events:\n  - tick: -1\n    kind: load\n    tons: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
}

func TestBuiltInArcs(t *testing.T) {
	arcs := BuiltIn()
	for _, n := range []string{"weigh-station", "delivery-route"} {
		arc, ok := arcs[n]
		if !ok {
			t.Fatalf("arc %s not found", n)
		}
		if arc.Description == "" {
			t.Fatalf("arc %s missing description", n)
		}
		if err := arc.Validate(); err != nil {
			t.Fatalf("arc %s invalid: %v", n, err)
		}
	}
	ws := arcs["weigh-station"]
	if ev, ok := ws.At(3); !ok || ev.Delta() != 1.0 {
		t.Fatalf("weigh-station should load 1t on tick 3, got %+v", ev)
	}
}

func TestResolve(t *testing.T) {
	if s, err := Resolve(""); s != nil || err != nil {
		t.Fatalf("empty ref: got %v, %v", s, err)
	}
	s, err := Resolve("delivery-route")
	if err != nil || s.Name != "Delivery Route" {
		t.Fatalf("built-in ref: got %+v, %v", s, err)
	}
	s, err = Resolve("testdata/simple.yaml")
	if err != nil || s.Name != "example" {
		t.Fatalf("file ref: got %+v, %v", s, err)
	}
	if _, err := Resolve("testdata/missing.yaml"); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
