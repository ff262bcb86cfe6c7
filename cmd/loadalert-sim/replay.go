package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"loadalert-sim/internal/sim"
)

var (
	replayInput     string
	replaySpeed     float64
	replayPrintOnly bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a telemetry log file",
	Long:  "replay feeds readings from a JSONL or CSV log back into the configured sinks or STDOUT.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		ctx := cmd.Context()
		writer, cleanup, err := newWriters(ctx, getConfig(), writerOptions{PrintOnly: replayPrintOnly})
		if err != nil {
			return err
		}
		defer cleanup()
		return sim.ReplayLogFile(ctx, replayInput, writer, replaySpeed)
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to telemetry log file (JSONL or CSV)")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier (0 = as fast as possible)")
	replayCmd.Flags().BoolVar(&replayPrintOnly, "print-only", false, "Print telemetry to STDOUT instead of writing to the configured sinks")
	replayCmd.MarkFlagRequired("input")
}
