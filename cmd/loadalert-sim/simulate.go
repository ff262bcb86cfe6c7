package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"loadalert-sim/internal/admin"
	"loadalert-sim/internal/config"
	"loadalert-sim/internal/export"
	"loadalert-sim/internal/logging"
	"loadalert-sim/internal/scenario"
	"loadalert-sim/internal/sim"
)

var (
	simPrintOnly bool
	simTUI       bool
	simJSON      bool
	simTicks     int
	simCSV       string
	simPNG       string
	simLogFile   string
	simScenario  string
	simAdminAddr string
	simNoAdmin   bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the truck telemetry simulator",
	Long: "simulate generates readings every tick, flags overloads and mirrors them to the configured sinks.\n" +
		"With --ticks it runs that many ticks back to back and exits (batch mode).",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		if cmd.Flags().Changed("scenario") {
			cfg.Scenario = simScenario
		}
		if cmd.Flags().Changed("admin") {
			cfg.Admin.Addr = simAdminAddr
		}
		return runSimulation(cmd.Context(), cfg)
	},
}

func init() {
	simulateCmd.Flags().BoolVar(&simPrintOnly, "print-only", false, "Print telemetry to STDOUT instead of writing to the configured sinks")
	simulateCmd.Flags().BoolVar(&simTUI, "tui", false, "Show the interactive terminal dashboard")
	simulateCmd.Flags().BoolVar(&simJSON, "json", false, "Print readings as JSON lines even on a terminal")
	simulateCmd.Flags().IntVar(&simTicks, "ticks", 0, "Run this many ticks without waiting and exit")
	simulateCmd.Flags().StringVar(&simCSV, "csv", "", "Write the reading log as CSV on exit")
	simulateCmd.Flags().StringVar(&simPNG, "png", "", "Write the weight chart as PNG on exit")
	simulateCmd.Flags().StringVar(&simLogFile, "log-file", "", "Also write readings to this JSONL file")
	simulateCmd.Flags().StringVar(&simScenario, "scenario", "", "Built-in scenario name or scenario YAML path")
	simulateCmd.Flags().StringVar(&simAdminAddr, "admin", "", "Admin UI listen address (overrides config)")
	simulateCmd.Flags().BoolVar(&simNoAdmin, "no-admin", false, "Do not start the admin UI")
}

func runSimulation(ctx context.Context, cfg *config.SimulationConfig) error {
	log := logging.FromContext(ctx)

	sc, err := scenario.Resolve(cfg.Scenario)
	if err != nil {
		return err
	}
	writer, cleanup, err := newWriters(ctx, cfg, writerOptions{
		PrintOnly: simPrintOnly,
		TUI:       simTUI,
		JSON:      simJSON,
		LogFile:   simLogFile,
	})
	if err != nil {
		return err
	}
	defer cleanup()

	simulator, err := sim.NewSimulator(cfg, writer, sim.WithScenario(sc))
	if err != nil {
		return err
	}
	log.Info().
		Str("truck_id", cfg.TruckID).
		Str("session_id", simulator.SessionID()).
		Str("scenario", cfg.Scenario).
		Msg("simulation starting")

	if simTicks > 0 {
		if err := simulator.Step(ctx, simTicks); err != nil {
			return err
		}
		return writeExports(ctx, simulator)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	adminErr := make(chan error, 1)
	if !simNoAdmin && cfg.Admin.Addr != "" {
		srv := admin.NewServer(simulator)
		go func() {
			adminErr <- srv.Start(ctx, cfg.Admin.Addr)
		}()
		if aw, ok := writer.(sim.AdminStatusWriter); ok {
			aw.SetAdminStatus(true)
		}
	}

	runErr := make(chan error, 1)
	go func() { runErr <- simulator.Run(ctx) }()

	select {
	case err = <-runErr:
	case err = <-adminErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			err = fmt.Errorf("admin server: %w", err)
		}
		stop()
		<-runErr
	}
	stop()
	if exportErr := writeExports(ctx, simulator); err == nil {
		err = exportErr
	}
	log.Info().Int("readings", simulator.Log().Len()).Msg("simulation stopped")
	return err
}

// writeExports saves the session's log as CSV and chart when requested.
func writeExports(ctx context.Context, s *sim.Simulator) error {
	rs := s.Log().Readings()
	log := logging.FromContext(ctx)
	if simCSV != "" {
		if err := export.WriteCSVFile(simCSV, rs); err != nil {
			return err
		}
		log.Info().Str("path", simCSV).Int("rows", len(rs)).Msg("csv written")
	}
	if simPNG != "" {
		if err := export.WriteChartFile(simPNG, export.Downsample(rs, 1000), s.Threshold()); err != nil {
			return err
		}
		log.Info().Str("path", simPNG).Msg("chart written")
	}
	return nil
}
