package main

import (
	"fmt"
	"time"

	"fortio.org/safecast"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"hearth/internal/asyncrt"
	"hearth/internal/config"
	"hearth/internal/hpet"
	"hearth/internal/trace"
	"hearth/internal/version"
)

// traceConfig merges the [trace] section with any trace flags set on the
// command line. Flags win.
func traceConfig(cmd *cobra.Command, cfg config.TraceConfig) (config.TraceConfig, time.Duration, error) {
	flags := cmd.Root().PersistentFlags()

	strFlags := []struct {
		name string
		dst  *string
	}{
		{"trace", &cfg.Output},
		{"trace-level", &cfg.Level},
		{"trace-mode", &cfg.Mode},
		{"trace-format", &cfg.Format},
	}
	for _, f := range strFlags {
		if !flags.Changed(f.name) {
			continue
		}
		v, err := flags.GetString(f.name)
		if err != nil {
			return cfg, 0, fmt.Errorf("failed to get %s flag: %w", f.name, err)
		}
		*f.dst = v
	}
	if flags.Changed("trace-ring-size") {
		n, err := flags.GetInt("trace-ring-size")
		if err != nil {
			return cfg, 0, fmt.Errorf("failed to get trace-ring-size flag: %w", err)
		}
		cfg.RingSize = n
	}
	heartbeat, err := flags.GetDuration("trace-heartbeat")
	if err != nil {
		return cfg, 0, fmt.Errorf("failed to get trace-heartbeat flag: %w", err)
	}

	// An output file without an explicit level records task lifecycles.
	if cfg.Output != "" && (cfg.Level == "" || cfg.Level == "off") && !flags.Changed("trace-level") {
		cfg.Level = "detail"
	}
	return cfg, heartbeat, nil
}

// setupTracing builds the tracer for a run and attaches it to the command
// context. It returns the requested heartbeat interval and a cleanup
// function that flushes and closes the outputs.
func setupTracing(cmd *cobra.Command, cfg config.Config, bootID uuid.UUID) (time.Duration, func(), error) {
	tc, heartbeatInterval, err := traceConfig(cmd, cfg.Trace)
	if err != nil {
		return 0, nil, err
	}
	level, err := trace.ParseLevel(tc.Level)
	if err != nil {
		return 0, nil, err
	}
	if level == trace.LevelOff {
		return 0, func() {}, nil
	}
	mode, err := trace.ParseMode(tc.Mode)
	if err != nil {
		return 0, nil, err
	}
	format, err := trace.ParseFormat(tc.Format)
	if err != nil {
		return 0, nil, err
	}

	tracer, err := trace.New(trace.Config{
		Level:      level,
		Mode:       mode,
		Format:     format,
		OutputPath: tc.Output,
		RingSize:   tc.RingSize,
		Header: trace.RecordingHeader{
			BootID:    bootID.String(),
			Version:   version.Version,
			TickNanos: tickNanos(cfg.Clock),
		},
	})
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create tracer: %w", err)
	}
	cmd.SetContext(trace.WithTracer(cmd.Context(), tracer))

	cleanup := func() {
		if err := tracer.Flush(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: flush error: %v\n", err)
		}
		if err := tracer.Close(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: close error: %v\n", err)
		}
	}
	return heartbeatInterval, cleanup, nil
}

func tickNanos(c config.ClockConfig) uint64 {
	tick := hpet.Period
	if c.Source == "virtual" {
		tick = asyncrt.NewVirtualClock(c.Tick.Duration, 0).TickDuration()
	}
	n, err := safecast.Conv[uint64](int64(tick))
	if err != nil {
		return 0
	}
	return n
}
