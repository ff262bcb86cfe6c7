package sim

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"loadalert-sim/internal/telemetry"
)

const (
	defaultGreptimePort = 4001
	greptimeTimeout     = 5 * time.Second
)

// greptimeClient is the subset of the ingester client the writer needs.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter writes readings to GreptimeDB via the ingester client.
// The table is created by GreptimeDB on first write.
type GreptimeDBWriter struct {
	client greptimeClient
	table  string
}

// NewGreptimeDBWriter connects to endpoint ("host" or "host:port").
func NewGreptimeDBWriter(endpoint, database, tableName string) (*GreptimeDBWriter, error) {
	host, port, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	if tableName == "" {
		tableName = telemetry.ReadingTableName
	}
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("greptime client: %w", err)
	}
	return &GreptimeDBWriter{client: client, table: tableName}, nil
}

func splitEndpoint(endpoint string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		// no port given
		return endpoint, defaultGreptimePort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("greptime endpoint %q: invalid port: %w", endpoint, err)
	}
	return host, port, nil
}

// Write inserts a single reading.
func (w *GreptimeDBWriter) Write(r telemetry.Reading) error {
	return w.WriteBatch([]telemetry.Reading{r})
}

// WriteBatch inserts multiple readings in one request.
func (w *GreptimeDBWriter) WriteBatch(rs []telemetry.Reading) error {
	if len(rs) == 0 {
		return nil
	}
	tbl, err := w.readingTable()
	if err != nil {
		return err
	}
	for _, r := range rs {
		if err := tbl.AddRow(r.SessionID, r.TruckID, r.Weight, r.Lat, r.Lon, r.Alert, r.Timestamp); err != nil {
			return fmt.Errorf("greptime row: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), greptimeTimeout)
	defer cancel()
	if _, err := w.client.Write(ctx, tbl); err != nil {
		return fmt.Errorf("greptime write %d rows: %w", len(rs), err)
	}
	return nil
}

func (w *GreptimeDBWriter) readingTable() (*table.Table, error) {
	tbl, err := table.New(w.table)
	if err != nil {
		return nil, err
	}
	if err := tbl.AddTagColumn("session_id", types.STRING); err != nil {
		return nil, err
	}
	if err := tbl.AddTagColumn("truck_id", types.STRING); err != nil {
		return nil, err
	}
	for _, col := range []string{"weight", "lat", "lon"} {
		if err := tbl.AddFieldColumn(col, types.FLOAT64); err != nil {
			return nil, err
		}
	}
	if err := tbl.AddFieldColumn("alert", types.BOOLEAN); err != nil {
		return nil, err
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, err
	}
	return tbl, nil
}

// Close releases the client connection when the client supports it.
func (w *GreptimeDBWriter) Close() error {
	if c, ok := w.client.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
