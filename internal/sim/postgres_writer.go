package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"loadalert-sim/internal/telemetry"
)

const postgresTimeout = 5 * time.Second

var readingColumns = []string{
	"ts",
	"session_id",
	"truck_id",
	"weight",
	"lat",
	"lon",
	"alert",
}

// copier is the bulk-load subset of a pgx pool.
type copier interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// PostgresWriter mirrors readings into a PostgreSQL (or TimescaleDB) table using COPY.
type PostgresWriter struct {
	db    copier
	pool  *pgxpool.Pool
	table string
}

// NewPostgresWriter connects to dsn and creates the table when missing.
func NewPostgresWriter(ctx context.Context, dsn, table string) (*PostgresWriter, error) {
	if table == "" {
		table = telemetry.ReadingTableName
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create db pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  ts         TIMESTAMPTZ      NOT NULL,
  session_id TEXT             NOT NULL,
  truck_id   TEXT             NOT NULL,
  weight     DOUBLE PRECISION NOT NULL,
  lat        DOUBLE PRECISION NOT NULL,
  lon        DOUBLE PRECISION NOT NULL,
  alert      BOOLEAN          NOT NULL
)`, pgx.Identifier{table}.Sanitize())
	if _, err := pool.Exec(ctx, ddl); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create table %s: %w", table, err)
	}
	return &PostgresWriter{db: pool, pool: pool, table: table}, nil
}

// Write inserts a single reading.
func (w *PostgresWriter) Write(r telemetry.Reading) error {
	return w.WriteBatch([]telemetry.Reading{r})
}

// WriteBatch copies readings in one round trip.
func (w *PostgresWriter) WriteBatch(rs []telemetry.Reading) error {
	if len(rs) == 0 {
		return nil
	}
	rows := make([][]any, len(rs))
	for i, r := range rs {
		rows[i] = []any{r.Timestamp, r.SessionID, r.TruckID, r.Weight, r.Lat, r.Lon, r.Alert}
	}

	ctx, cancel := context.WithTimeout(context.Background(), postgresTimeout)
	defer cancel()
	if _, err := w.db.CopyFrom(ctx, pgx.Identifier{w.table}, readingColumns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("CopyFrom failed for batch of %d: %w", len(rs), err)
	}
	return nil
}

// Close releases the pool.
func (w *PostgresWriter) Close() error {
	if w.pool != nil {
		w.pool.Close()
	}
	return nil
}
