package sim

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"time"

	"loadalert-sim/internal/export"
	"loadalert-sim/internal/telemetry"
)

// ReplayLog replays readings from r to writer. The input may be JSONL (as written by
// FileWriter) or CSV (as written by export.WriteCSV). A speed >0 scales the original
// spacing between readings; if speed <= 0, no artificial delay is inserted.
func ReplayLog(ctx context.Context, r io.Reader, writer TelemetryWriter, speed float64) error {
	br := bufio.NewReader(r)
	jsonl, err := looksLikeJSON(br)
	if err != nil {
		return err
	}
	if !jsonl {
		rs, err := export.ReadCSV(br)
		if err != nil {
			return err
		}
		return replay(ctx, writer, speed, func() (telemetry.Reading, error) {
			if len(rs) == 0 {
				return telemetry.Reading{}, io.EOF
			}
			next := rs[0]
			rs = rs[1:]
			return next, nil
		})
	}

	dec := json.NewDecoder(br)
	return replay(ctx, writer, speed, func() (telemetry.Reading, error) {
		var row telemetry.Reading
		err := dec.Decode(&row)
		return row, err
	})
}

func replay(ctx context.Context, writer TelemetryWriter, speed float64, next func() (telemetry.Reading, error)) error {
	var prev time.Time
	for {
		row, err := next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if !prev.IsZero() && speed > 0 {
			diff := row.Timestamp.Sub(prev)
			if speed != 1 {
				diff = time.Duration(float64(diff) / speed)
			}
			if diff > 0 {
				select {
				case <-time.After(diff):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		if err := writer.Write(row); err != nil {
			return err
		}
		prev = row.Timestamp
	}
}

// looksLikeJSON peeks at the first non-blank byte.
func looksLikeJSON(br *bufio.Reader) (bool, error) {
	for n := 1; ; n++ {
		b, err := br.Peek(n)
		if len(b) < n {
			if errors.Is(err, io.EOF) {
				return true, nil
			}
			return false, err
		}
		c := b[n-1]
		if bytes.IndexByte([]byte(" \t\r\n"), c) >= 0 {
			continue
		}
		return c == '{', nil
	}
}

// ReplayLogFile opens a file and replays its readings.
func ReplayLogFile(ctx context.Context, path string, writer TelemetryWriter, speed float64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return ReplayLog(ctx, f, writer, speed)
}
