package sim

import (
	"errors"
	"io"

	"loadalert-sim/internal/telemetry"
)

// MultiWriter fans readings out to multiple writers. A failing writer does not stop the others.
type MultiWriter struct {
	writers []TelemetryWriter
}

// NewMultiWriter creates a new MultiWriter. Nil writers are skipped.
func NewMultiWriter(ws ...TelemetryWriter) *MultiWriter {
	mw := &MultiWriter{}
	for _, w := range ws {
		if w != nil {
			mw.writers = append(mw.writers, w)
		}
	}
	return mw
}

// Writers returns the wrapped writers.
func (mw *MultiWriter) Writers() []TelemetryWriter {
	return mw.writers
}

// Write sends a reading to all writers.
func (mw *MultiWriter) Write(r telemetry.Reading) error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.Write(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteBatch sends multiple readings to all writers, using batch if supported.
func (mw *MultiWriter) WriteBatch(rs []telemetry.Reading) error {
	var errs []error
	for _, w := range mw.writers {
		if bw, ok := w.(batchWriter); ok {
			if err := bw.WriteBatch(rs); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		for _, r := range rs {
			if err := w.Write(r); err != nil {
				errs = append(errs, err)
				break
			}
		}
	}
	return errors.Join(errs...)
}

// SetControls forwards simulator controls to writers that accept them.
func (mw *MultiWriter) SetControls(c Controls) {
	for _, w := range mw.writers {
		if cw, ok := w.(controllable); ok {
			cw.SetControls(c)
		}
	}
}

// SetAdminStatus forwards the admin UI status to writers that display it.
func (mw *MultiWriter) SetAdminStatus(active bool) {
	for _, w := range mw.writers {
		if aw, ok := w.(AdminStatusWriter); ok {
			aw.SetAdminStatus(active)
		}
	}
}

// Close closes every writer that holds resources.
func (mw *MultiWriter) Close() error {
	var errs []error
	for _, w := range mw.writers {
		if c, ok := w.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
