package main

import (
	"context"
	"io"
	"os"

	"loadalert-sim/internal/config"
	"loadalert-sim/internal/logging"
	"loadalert-sim/internal/sim"
)

type writerOptions struct {
	PrintOnly bool
	TUI       bool
	JSON      bool
	LogFile   string
}

func hasSinks(s config.SinksConfig) bool {
	return s.Greptime.Endpoint != "" || s.Postgres.DSN != "" || s.SQLite.Path != "" || s.Redis.Addr != ""
}

// newWriters sets up the writers chosen by flags and configured sinks.
// It returns the writer and a cleanup function to close any resources.
func newWriters(ctx context.Context, cfg *config.SimulationConfig, opts writerOptions) (sim.TelemetryWriter, func(), error) {
	var ws []sim.TelemetryWriter
	closeAll := func() {
		for _, w := range ws {
			if c, ok := w.(io.Closer); ok {
				c.Close()
			}
		}
	}

	switch {
	case opts.TUI:
		ws = append(ws, sim.NewTUIWriter(cfg))
	case opts.JSON:
		ws = append(ws, sim.NewJSONStdoutWriter(os.Stdout))
	case opts.PrintOnly || !hasSinks(cfg.Sinks):
		logging.FromContext(ctx).Info().Msg("print-only mode: telemetry will be printed to STDOUT")
		ws = append(ws, sim.NewStdoutWriter(cfg))
	}

	if !opts.PrintOnly {
		sinks, err := sinkWriters(ctx, cfg.Sinks)
		ws = append(ws, sinks...)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
	}

	if opts.LogFile != "" {
		fw, err := sim.NewFileWriter(opts.LogFile)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		ws = append(ws, fw)
	}

	if len(ws) == 1 {
		return ws[0], closeAll, nil
	}
	return sim.NewMultiWriter(ws...), closeAll, nil
}

// sinkWriters connects every configured database sink. On error the sinks opened so far
// are returned so the caller can close them.
func sinkWriters(ctx context.Context, s config.SinksConfig) ([]sim.TelemetryWriter, error) {
	log := logging.FromContext(ctx)
	var ws []sim.TelemetryWriter
	if s.Greptime.Endpoint != "" {
		w, err := sim.NewGreptimeDBWriter(s.Greptime.Endpoint, s.Greptime.Database, s.Greptime.Table)
		if err != nil {
			return ws, err
		}
		log.Info().Str("endpoint", s.Greptime.Endpoint).Str("table", s.Greptime.Table).Msg("greptimedb sink enabled")
		ws = append(ws, w)
	}
	if s.Postgres.DSN != "" {
		w, err := sim.NewPostgresWriter(ctx, s.Postgres.DSN, s.Postgres.Table)
		if err != nil {
			return ws, err
		}
		log.Info().Str("table", s.Postgres.Table).Msg("postgres sink enabled")
		ws = append(ws, w)
	}
	if s.SQLite.Path != "" {
		w, err := sim.NewSQLiteWriter(s.SQLite.Path)
		if err != nil {
			return ws, err
		}
		log.Info().Str("path", s.SQLite.Path).Msg("sqlite sink enabled")
		ws = append(ws, w)
	}
	if s.Redis.Addr != "" {
		w, err := sim.NewRedisWriter(ctx, s.Redis.Addr, s.Redis.Password, s.Redis.DB, s.Redis.Prefix)
		if err != nil {
			return ws, err
		}
		log.Info().Str("addr", s.Redis.Addr).Msg("redis sink enabled")
		ws = append(ws, w)
	}
	return ws, nil
}
