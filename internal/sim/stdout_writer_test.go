package sim

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"loadalert-sim/internal/config"
	"loadalert-sim/internal/telemetry"
)

func TestStdoutWriterJSONFallback(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewJSONStdoutWriter(buf)
	r := telemetry.Reading{TruckID: "t1", Weight: 10.5, Alert: true, Timestamp: time.Unix(0, 0).UTC()}
	if err := w.Write(r); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	var got telemetry.Reading
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("expected JSON output, got %q", buf.String())
	}
	if got != r {
		t.Fatalf("decoded %+v, want %+v", got, r)
	}
}

func TestStdoutWriterColorized(t *testing.T) {
	cfg := config.Default()
	cfg.Scenario = "weigh-station"
	buf := &bytes.Buffer{}
	w := &StdoutWriter{cfg: cfg, colorize: true, out: buf}
	rs := []telemetry.Reading{
		{TruckID: "t1", Weight: 9, Timestamp: time.Unix(0, 0)},
		{TruckID: "t1", Weight: 11, Alert: true, Timestamp: time.Unix(1, 0)},
	}
	if err := w.WriteBatch(rs); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	output := buf.String()
	if strings.Count(output, "Simulation Configuration:") != 1 || !strings.Contains(output, "weigh-station") {
		t.Fatalf("overview not printed once: %q", output)
	}
	if !strings.Contains(output, "\x1b[") {
		t.Fatalf("expected color codes in output: %q", output)
	}
	if !strings.Contains(output, "weight=11.000t") || !strings.Contains(output, "OVERLOAD") {
		t.Fatalf("reading line missing: %q", output)
	}
}
