package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"loadalert-sim/internal/export"
	"loadalert-sim/internal/logging"
	"loadalert-sim/internal/sim"
	"loadalert-sim/internal/telemetry"
)

var (
	exportInput     string
	exportSQLite    string
	exportSession   string
	exportCSVPath   string
	exportPNGPath   string
	exportMaxPoints int
	exportThreshold float64
	exportList      bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a recorded session as CSV and/or PNG chart",
	Long:  "export reads a JSONL/CSV log (--input) or a SQLite session store (--sqlite) and writes CSV or a weight chart.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if exportList {
			return listSessions(ctx, cmd)
		}
		if exportCSVPath == "" && exportPNGPath == "" {
			return fmt.Errorf("nothing to do: set --csv and/or --png")
		}
		rs, err := loadReadings(ctx)
		if err != nil {
			return err
		}
		threshold := getConfig().Threshold
		if cmd.Flags().Changed("threshold") {
			threshold = exportThreshold
		}

		log := logging.FromContext(ctx)
		if exportCSVPath != "" {
			if err := export.WriteCSVFile(exportCSVPath, rs); err != nil {
				return err
			}
			log.Info().Str("path", exportCSVPath).Int("rows", len(rs)).Msg("csv written")
		}
		if exportPNGPath != "" {
			if err := export.WriteChartFile(exportPNGPath, export.Downsample(rs, exportMaxPoints), threshold); err != nil {
				return err
			}
			log.Info().Str("path", exportPNGPath).Msg("chart written")
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportInput, "input", "", "Path to a JSONL or CSV reading log")
	exportCmd.Flags().StringVar(&exportSQLite, "sqlite", "", "Path to a SQLite session store (defaults to sinks.sqlite.path)")
	exportCmd.Flags().StringVar(&exportSession, "session", "", "Session id to export from SQLite (empty exports all)")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 1000, "Maximum data points in the chart")
	exportCmd.Flags().Float64Var(&exportThreshold, "threshold", 0, "Threshold line for the chart (defaults to config)")
	exportCmd.Flags().BoolVar(&exportList, "list-sessions", false, "List sessions stored in SQLite and exit")
}

func sqlitePath() string {
	if exportSQLite != "" {
		return exportSQLite
	}
	return getConfig().Sinks.SQLite.Path
}

func loadReadings(ctx context.Context) ([]telemetry.Reading, error) {
	if exportInput != "" {
		c := &collector{}
		if err := sim.ReplayLogFile(ctx, exportInput, c, 0); err != nil {
			return nil, err
		}
		return c.readings, nil
	}
	path := sqlitePath()
	if path == "" {
		return nil, fmt.Errorf("set --input or --sqlite")
	}
	store, err := sim.NewSQLiteWriter(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.Readings(ctx, exportSession)
}

func listSessions(ctx context.Context, cmd *cobra.Command) error {
	path := sqlitePath()
	if path == "" {
		return fmt.Errorf("--list-sessions needs --sqlite")
	}
	store, err := sim.NewSQLiteWriter(path)
	if err != nil {
		return err
	}
	defer store.Close()
	ids, err := store.Sessions(ctx)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(ids, "\n"))
	}
	return nil
}

// collector gathers replayed readings in memory.
type collector struct{ readings []telemetry.Reading }

func (c *collector) Write(r telemetry.Reading) error {
	c.readings = append(c.readings, r)
	return nil
}
