// Writer implementation printing telemetry to STDOUT
package sim

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"loadalert-sim/internal/config"
	"loadalert-sim/internal/telemetry"
)

const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorGray    = "\x1b[90m"
)

// StdoutWriter prints readings as JSON lines, or as colorized text when attached to a terminal.
type StdoutWriter struct {
	cfg      *config.SimulationConfig
	out      io.Writer
	colorize bool
	once     sync.Once
}

// NewStdoutWriter writes to os.Stdout, colorizing only when it is a terminal.
func NewStdoutWriter(cfg *config.SimulationConfig) *StdoutWriter {
	return &StdoutWriter{
		cfg:      cfg,
		out:      os.Stdout,
		colorize: term.IsTerminal(int(os.Stdout.Fd())),
	}
}

// NewJSONStdoutWriter always prints JSON lines to out.
func NewJSONStdoutWriter(out io.Writer) *StdoutWriter {
	return &StdoutWriter{out: out}
}

func (w *StdoutWriter) printOverview() {
	if w.cfg == nil {
		return
	}
	fmt.Fprintln(w.out, "Simulation Configuration:")
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Truck:\t%s\n", w.cfg.TruckID)
	fmt.Fprintf(tw, "Threshold (t):\t%.2f\n", w.cfg.Threshold)
	fmt.Fprintf(tw, "Weight Bounds (t):\t%.1f - %.1f\n", w.cfg.WeightBounds.Min, w.cfg.WeightBounds.Max)
	fmt.Fprintf(tw, "Noise Std:\t%.3f\n", w.cfg.NoiseStd)
	fmt.Fprintf(tw, "Jump Probability:\t%.2f\n", w.cfg.JumpProbability)
	fmt.Fprintf(tw, "Jump Range (t):\t%.1f - %.1f\n", w.cfg.JumpRange.Min, w.cfg.JumpRange.Max)
	fmt.Fprintf(tw, "Tick:\t%s x %d\n", w.cfg.TickInterval, w.cfg.PointsPerTick)
	if w.cfg.Scenario != "" {
		fmt.Fprintf(tw, "Scenario:\t%s\n", w.cfg.Scenario)
	}
	tw.Flush()
	fmt.Fprintln(w.out)
}

// Write outputs a single reading.
func (w *StdoutWriter) Write(r telemetry.Reading) error {
	if !w.colorize {
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w.out, string(data))
		return err
	}
	w.once.Do(w.printOverview)
	_, err := fmt.Fprintln(w.out, formatReading(r))
	return err
}

// WriteBatch outputs multiple readings.
func (w *StdoutWriter) WriteBatch(rs []telemetry.Reading) error {
	for _, r := range rs {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}

// formatReading renders one colorized log line. Shared with the TUI.
func formatReading(r telemetry.Reading) string {
	status := colorGreen + "ok" + colorReset
	if r.Alert {
		status = colorRed + "OVERLOAD" + colorReset
	}
	return fmt.Sprintf("%s[%s]%s %struck=%s%s %sweight=%.3ft%s %slat=%.6f%s %slon=%.6f%s %s",
		colorGray, r.Timestamp.Format(time.RFC3339), colorReset,
		colorBlue, r.TruckID, colorReset,
		colorMagenta, r.Weight, colorReset,
		colorGreen, r.Lat, colorReset,
		colorYellow, r.Lon, colorReset,
		status,
	)
}
