package sim

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"loadalert-sim/internal/telemetry"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS readings (
  id         INTEGER PRIMARY KEY AUTOINCREMENT,
  session_id TEXT    NOT NULL,
  truck_id   TEXT    NOT NULL,
  weight     REAL    NOT NULL,
  lat        REAL    NOT NULL,
  lon        REAL    NOT NULL,
  alert      INTEGER NOT NULL,
  ts         TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS readings_session ON readings(session_id, id);
`

// SQLiteWriter keeps a local, queryable copy of every session.
type SQLiteWriter struct {
	db *sql.DB
}

// NewSQLiteWriter opens (or creates) the database at path.
func NewSQLiteWriter(path string) (*SQLiteWriter, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLiteWriter{db: db}, nil
}

// Write stores a single reading.
func (w *SQLiteWriter) Write(r telemetry.Reading) error {
	return w.WriteBatch([]telemetry.Reading{r})
}

// WriteBatch stores readings in one transaction.
func (w *SQLiteWriter) WriteBatch(rs []telemetry.Reading) (err error) {
	if len(rs) == 0 {
		return nil
	}
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.Prepare(`INSERT INTO readings(session_id, truck_id, weight, lat, lon, alert, ts) VALUES(?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rs {
		if _, err = stmt.Exec(r.SessionID, r.TruckID, r.Weight, r.Lat, r.Lon, r.Alert, r.Timestamp.UTC().Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Sessions lists stored session ids, oldest first.
func (w *SQLiteWriter) Sessions(ctx context.Context) ([]string, error) {
	rows, err := w.db.QueryContext(ctx, `SELECT session_id FROM readings GROUP BY session_id ORDER BY MIN(id)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Readings returns a session's readings in append order. An empty sessionID returns all.
func (w *SQLiteWriter) Readings(ctx context.Context, sessionID string) ([]telemetry.Reading, error) {
	q := `SELECT session_id, truck_id, weight, lat, lon, alert, ts FROM readings`
	var args []any
	if sessionID != "" {
		q += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	rows, err := w.db.QueryContext(ctx, q+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]telemetry.Reading, 0)
	for rows.Next() {
		var (
			r  telemetry.Reading
			ts string
		)
		if err := rows.Scan(&r.SessionID, &r.TruckID, &r.Weight, &r.Lat, &r.Lon, &r.Alert, &ts); err != nil {
			return nil, err
		}
		if r.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("reading timestamp %q: %w", ts, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (w *SQLiteWriter) Close() error {
	return w.db.Close()
}
