package export

import (
	"errors"
	"io"
	"math"
	"os"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"loadalert-sim/internal/telemetry"
)

// ErrNotEnoughPoints is returned when a chart has fewer than two readings to plot.
var ErrNotEnoughPoints = errors.New("at least two readings are required to draw a chart")

// WriteChart renders the weight history as a PNG with the threshold as a dashed line.
func WriteChart(w io.Writer, rs []telemetry.Reading, threshold float64) error {
	if len(rs) < 2 {
		return ErrNotEnoughPoints
	}

	x := make([]time.Time, len(rs))
	weights := make([]float64, len(rs))
	limit := make([]float64, len(rs))
	var alertX []time.Time
	var alertY []float64
	lo, hi := threshold, threshold
	for i, r := range rs {
		x[i] = r.Timestamp
		weights[i] = r.Weight
		limit[i] = threshold
		lo, hi = math.Min(lo, r.Weight), math.Max(hi, r.Weight)
		if r.Alert {
			alertX = append(alertX, r.Timestamp)
			alertY = append(alertY, r.Weight)
		}
	}

	weightFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 480,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
			Range:          timeRange(x[0], x[len(x)-1]),
		},
		YAxis: chart.YAxis{
			Name:           "Weight (t)",
			ValueFormatter: weightFormatter,
			Range:          &chart.ContinuousRange{Min: lo - 0.5, Max: hi + 0.5},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Weight",
				XValues: x,
				YValues: weights,
			},
			chart.TimeSeries{
				Name:    "Threshold",
				XValues: x,
				YValues: limit,
				Style: chart.Style{
					StrokeColor:     drawing.ColorRed,
					StrokeWidth:     1.5,
					StrokeDashArray: []float64{6, 4},
				},
			},
		},
	}
	if len(alertX) > 0 {
		graph.Series = append(graph.Series, chart.TimeSeries{
			Name:    "Overload",
			XValues: alertX,
			YValues: alertY,
			Style: chart.Style{
				StrokeWidth: chart.Disabled,
				DotWidth:    3,
				DotColor:    drawing.ColorRed,
			},
		})
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return graph.Render(chart.PNG, w)
}

// timeRange pads a zero-width time span so the axis can be drawn.
func timeRange(first, last time.Time) *chart.ContinuousRange {
	if !last.After(first) {
		first, last = first.Add(-time.Second), first.Add(time.Second)
	}
	return &chart.ContinuousRange{Min: chart.TimeToFloat64(first), Max: chart.TimeToFloat64(last)}
}

// WriteChartFile renders the chart to path, creating parent directories.
func WriteChartFile(path string, rs []telemetry.Reading, threshold float64) error {
	if len(rs) < 2 {
		return ErrNotEnoughPoints
	}
	if err := ensureDir(path); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteChart(file, rs, threshold); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Downsample picks at most max readings spread evenly across rs, keeping the first and last.
func Downsample(rs []telemetry.Reading, max int) []telemetry.Reading {
	if max <= 0 || len(rs) <= max {
		return rs
	}
	if max == 1 {
		return rs[len(rs)-1:]
	}

	result := make([]telemetry.Reading, 0, max)
	step := float64(len(rs)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(rs) {
			idx = len(rs) - 1
		}
		result = append(result, rs[idx])
	}
	return result
}
