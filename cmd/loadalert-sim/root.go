package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"loadalert-sim/internal/config"
	"loadalert-sim/internal/logging"
)

const defaultConfigPath = "config/simulation.yaml"

var (
	cfgFile    string
	schemaFile string
	logLevel   string

	loadedCfg *config.SimulationConfig
	closeLog  = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "loadalert-sim",
	Short: "Truck load telemetry simulator",
	Long:  "loadalert-sim generates truck weight and GPS telemetry, flags overloads and mirrors readings to sinks.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}

		path := cfgFile
		if _, err := os.Stat(path); err != nil && !cmd.Flags().Changed("config") {
			// run from anywhere with built-in defaults
			path = ""
		}
		cfg, err := config.Load(path, schemaFile)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}

		var out io.Writer = os.Stderr
		if tui, err := cmd.Flags().GetBool("tui"); err == nil && tui {
			// the TUI owns the terminal
			out = io.Discard
		}
		logger, closer, err := logging.Open(cfg.Logging, out)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		closeLog = closer
		loadedCfg = cfg
		cmd.SetContext(logging.NewContext(cmd.Context(), logger))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLog()
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", defaultConfigPath, "Path to simulation configuration YAML")
	rootCmd.PersistentFlags().StringVar(&schemaFile, "schema", "schemas/simulation.cue", "Path to CUE schema file (empty to skip)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")

	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(configCmd)
}

func getConfig() *config.SimulationConfig {
	if loadedCfg == nil {
		panic("configuration not loaded; PersistentPreRunE not executed")
	}
	return loadedCfg
}
