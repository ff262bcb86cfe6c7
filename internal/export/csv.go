// Package export renders reading logs as CSV and PNG.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"loadalert-sim/internal/telemetry"
)

// Header is the column layout of exported logs.
var Header = []string{"timestamp", "truck_id", "weight", "latitude", "longitude", "alert"}

// ErrBadHeader is returned when a CSV does not start with Header.
var ErrBadHeader = errors.New("unexpected csv header")

// WriteCSV writes readings in log order. Numbers use their shortest exact decimal form
// so reading the file back yields identical values.
func WriteCSV(w io.Writer, rs []telemetry.Reading) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return err
	}
	for _, r := range rs {
		record := []string{
			r.Timestamp.UTC().Format(time.RFC3339Nano),
			r.TruckID,
			decimal.NewFromFloat(r.Weight).String(),
			decimal.NewFromFloat(r.Lat).String(),
			decimal.NewFromFloat(r.Lon).String(),
			strconv.FormatBool(r.Alert),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadCSV parses a file produced by WriteCSV.
func ReadCSV(r io.Reader) ([]telemetry.Reading, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(Header)

	head, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty input", ErrBadHeader)
	}
	if err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}
	for i, col := range Header {
		if head[i] != col {
			return nil, fmt.Errorf("%w: column %d is %q, want %q", ErrBadHeader, i+1, head[i], col)
		}
	}

	out := make([]telemetry.Reading, 0)
	for row := 2; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("csv row %d: %w", row, err)
		}
		rd, err := parseRecord(record)
		if err != nil {
			return nil, fmt.Errorf("csv row %d: %w", row, err)
		}
		out = append(out, rd)
	}
}

func parseRecord(record []string) (telemetry.Reading, error) {
	ts, err := time.Parse(time.RFC3339Nano, record[0])
	if err != nil {
		return telemetry.Reading{}, fmt.Errorf("timestamp: %w", err)
	}
	nums := make([]float64, 3)
	for i, field := range record[2:5] {
		d, err := decimal.NewFromString(field)
		if err != nil {
			return telemetry.Reading{}, fmt.Errorf("%s: %w", Header[i+2], err)
		}
		nums[i] = d.InexactFloat64()
	}
	alert, err := strconv.ParseBool(record[5])
	if err != nil {
		return telemetry.Reading{}, fmt.Errorf("alert: %w", err)
	}
	return telemetry.Reading{
		TruckID:   record[1],
		Weight:    nums[0],
		Lat:       nums[1],
		Lon:       nums[2],
		Alert:     alert,
		Timestamp: ts.UTC(),
	}, nil
}

// WriteCSVFile writes readings to path, creating parent directories.
func WriteCSVFile(path string, rs []telemetry.Reading) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(file, rs); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// ReadCSVFile reads readings from path.
func ReadCSVFile(path string) ([]telemetry.Reading, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadCSV(file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
