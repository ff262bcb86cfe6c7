package sim

import (
	"encoding/json"
	"os"

	"loadalert-sim/internal/telemetry"
)

// FileWriter writes readings to a JSONL file.
type FileWriter struct {
	file *os.File
	enc  *json.Encoder
}

// NewFileWriter creates or truncates path.
func NewFileWriter(path string) (*FileWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &FileWriter{file: f, enc: json.NewEncoder(f)}, nil
}

// Write logs a single reading.
func (f *FileWriter) Write(r telemetry.Reading) error {
	return f.enc.Encode(r)
}

// WriteBatch logs multiple readings.
func (f *FileWriter) WriteBatch(rs []telemetry.Reading) error {
	for _, r := range rs {
		if err := f.Write(r); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying file.
func (f *FileWriter) Close() error {
	if f.file == nil {
		return nil
	}
	return f.file.Close()
}
