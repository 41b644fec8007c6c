package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"hearth/internal/config"
	"hearth/internal/kernel"
	"hearth/internal/klog"
	"hearth/internal/monitor"
	"hearth/internal/trace"
)

var runCmd = &cobra.Command{
	Use:   "run [flags]",
	Short: "Boot the kernel and run its tasks",
	Long: `Boot the simulated machine described by hearth.toml (or the defaults)
and run the executor until every task finished or the process is interrupted.`,
	Args: cobra.NoArgs,
	RunE: runKernel,
}

func init() {
	registerRunFlags(runCmd)
}

func registerRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "config file (default: nearest "+config.FileName+")")
	cmd.Flags().String("wake-mode", "", "executor wake mode (busy|timer)")
	cmd.Flags().String("clock", "", "clock source (hpet|virtual)")
	cmd.Flags().String("serial", "", "serial device (memory|tty|<path>|off)")
	cmd.Flags().String("log-level", "", "log level (debug|info|warn|error)")
	cmd.Flags().String("ui", "off", "live task board (auto|on|off)")
	cmd.Flags().String("monitor", "", "serve the HTTP monitor on this address")
	cmd.Flags().String("timings", "off", "print boot timings (off|text|json)")
	cmd.Flags().Lookup("timings").NoOptDefVal = "text"
}

// loadRunConfig resolves the config file and applies run flag overrides.
func loadRunConfig(cmd *cobra.Command) (config.Config, error) {
	explicit, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to get config flag: %w", err)
	}
	wd, err := os.Getwd()
	if err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Resolve(explicit, wd)
	if err != nil {
		return config.Config{}, err
	}

	overrides := []struct {
		flag string
		dst  *string
	}{
		{"wake-mode", &cfg.Executor.WakeMode},
		{"clock", &cfg.Clock.Source},
		{"log-level", &cfg.Log.Level},
	}
	for _, o := range overrides {
		if !cmd.Flags().Changed(o.flag) {
			continue
		}
		v, err := cmd.Flags().GetString(o.flag)
		if err != nil {
			return config.Config{}, fmt.Errorf("failed to get %s flag: %w", o.flag, err)
		}
		*o.dst = v
	}
	if cmd.Flags().Changed("serial") {
		device, err := cmd.Flags().GetString("serial")
		if err != nil {
			return config.Config{}, fmt.Errorf("failed to get serial flag: %w", err)
		}
		cfg.Serial.Enabled = device != "off"
		if cfg.Serial.Enabled {
			cfg.Serial.Device = device
		}
	}
	if root := cmd.Root().PersistentFlags(); root.Changed("color") {
		v, err := root.GetString("color")
		if err != nil {
			return config.Config{}, fmt.Errorf("failed to get color flag: %w", err)
		}
		cfg.Log.Color = v
	}
	if quiet, err := cmd.Root().PersistentFlags().GetBool("quiet"); err == nil && quiet {
		cfg.Log.Level = "warn"
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func runKernel(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}
	uiValue, err := cmd.Flags().GetString("ui")
	if err != nil {
		return fmt.Errorf("failed to get ui flag: %w", err)
	}
	mode, err := readUIMode(uiValue)
	if err != nil {
		return err
	}
	monitorAddr, err := cmd.Flags().GetString("monitor")
	if err != nil {
		return fmt.Errorf("failed to get monitor flag: %w", err)
	}
	timingsFormat, err := cmd.Flags().GetString("timings")
	if err != nil {
		return fmt.Errorf("failed to get timings flag: %w", err)
	}

	stopProfiling, err := setupProfiling(cmd)
	if err != nil {
		return err
	}
	defer stopProfiling()

	bootID := uuid.New()
	heartbeatInterval, stopTracing, err := setupTracing(cmd, cfg, bootID)
	if err != nil {
		return err
	}
	defer stopTracing()
	tracer := trace.FromContext(cmd.Context())

	var (
		feed    *boardFeed
		logs    *logBuffer
		logsOut = os.Stderr
	)
	opts := kernel.Options{
		Config: cfg,
		Out:    logsOut,
		Color:  useColor(cfg.Log.Color, logsOut),
		BootID: bootID,
	}
	if shouldUseTUI(mode) {
		feed = newBoardFeed()
		tracer = trace.NewMultiTracer(trace.LevelDebug, tracer, feed.Tracer())
		logs = &logBuffer{}
		opts.Out = logs
		defer func() {
			if _, err := logs.WriteTo(logsOut); err != nil {
				fmt.Fprintf(os.Stderr, "failed to flush log: %v\n", err)
			}
		}()
	}
	opts.Tracer = tracer
	opts.OnPanic = func(log klog.Sink) func(kernel.PanicInfo) {
		return kernel.LogPanics(log, trace.FindRing(tracer), logsOut)
	}

	k, err := kernel.Boot(opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := k.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "close: %v\n", err)
		}
	}()

	heartbeat := trace.StartHeartbeat(tracer, heartbeatInterval, func() string {
		st := k.Executor().Stats()
		return fmt.Sprintf("live=%d ready=%d polls=%d halts=%d", st.Live, st.Ready, st.Polls, st.Halts)
	})
	defer heartbeat.Stop()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancel()
		if feed != nil {
			defer feed.Stop()
		}
		return k.Run(gctx)
	})
	if monitorAddr != "" {
		g.Go(func() error {
			return monitor.Serve(gctx, monitorAddr, monitor.New(k, k.Log()), k.Log())
		})
	}
	if feed != nil {
		g.Go(func() error {
			return runBoard("hearth "+k.BootID().String()[:8], feed, cancel)
		})
	}
	runErr := g.Wait()

	if timingsFormat != "off" {
		if err := printBootTimings(cmd.ErrOrStderr(), k.Timings(), timingsFormat); err != nil {
			return err
		}
	}
	return runErr
}
