// Package kernel boots the simulated machine: it brings up the clock, the
// log, the serial console and the executor, spawns the demo tasks and runs
// them to completion.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"fortio.org/safecast"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"hearth/internal/asyncrt"
	"hearth/internal/config"
	"hearth/internal/hpet"
	"hearth/internal/irq"
	"hearth/internal/klog"
	"hearth/internal/observ"
	"hearth/internal/serial"
	"hearth/internal/trace"
)

// LoopbackPattern is the byte echoed during the serial self-test.
const LoopbackPattern = 0xAE

// Options control Boot. Zero fields fall back to Config.
type Options struct {
	Config config.Config
	// Out receives log output when Log is nil.
	Out io.Writer
	// Color forces colored log output when Log is nil.
	Color bool
	// Log replaces the kernel logger.
	Log    klog.Sink
	Tracer trace.Tracer
	// Clock replaces the configured clock source.
	Clock asyncrt.Clock
	// Port replaces the configured serial port.
	Port   serial.Port
	BootID uuid.UUID
	// OnPanic builds the panic handler from the kernel log. Boot installs
	// it as soon as the log is up, before any task is spawned.
	OnPanic func(log klog.Sink) func(PanicInfo)
}

// Kernel is a booted machine ready to run.
type Kernel struct {
	cfg    config.Config
	log    klog.Sink
	tracer trace.Tracer
	clock  asyncrt.Clock
	line   *irq.Line
	port   serial.Port
	exec   *asyncrt.Executor
	timer  *observ.Timer
	bootID uuid.UUID
	booted time.Time
	t0     asyncrt.Timestamp
	input  asyncrt.Signal
	tasks  []asyncrt.TaskHandle
}

// Boot brings the machine up and spawns every configured task. It does not
// run the executor.
func Boot(opts Options) (*Kernel, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	k := &Kernel{
		cfg:    cfg,
		tracer: opts.Tracer,
		line:   irq.NewLine(),
		timer:  observ.NewTimer(),
		bootID: opts.BootID,
		booted: time.Now(),
	}
	k.tracer = trace.OrNop(k.tracer)
	if k.bootID == uuid.Nil {
		k.bootID = uuid.New()
	}
	boot := trace.Begin(k.tracer, trace.ScopeKernel, "boot", 0, k.tick)
	defer boot.End(k.bootID.String())

	if err := k.phase(boot, "clock", func() error { return k.initClock(opts.Clock) }); err != nil {
		return nil, err
	}
	_ = k.phase(boot, "log", func() error {
		k.initLog(opts)
		if opts.OnPanic != nil {
			SetPanicHandler(opts.OnPanic(k.log))
		}
		return nil
	})
	k.infof("Booting hearth...")
	k.infof("boot id: %s", k.bootID)
	k.debugf("clock: %s, tick %s", k.cfg.Clock.Source, k.clock.TickDuration())
	klog.Hexdump(k.log, k.bootID[:])

	if err := k.phase(boot, "serial", func() error { return k.initSerial(opts.Port) }); err != nil {
		return nil, err
	}
	_ = k.phase(boot, "executor", func() error {
		k.exec = asyncrt.NewExecutor(asyncrt.Config{
			Clock:    k.clock,
			Log:      k.log,
			Tracer:   k.tracer,
			WakeMode: cfg.WakeMode(),
			MaxTasks: cfg.Executor.MaxTasks,
			IRQ:      k.line,
		})
		boot.Annotate("wake_mode", k.exec.WakeMode().String())
		k.infof("executor ready (wake mode %s)", k.exec.WakeMode())
		return nil
	})
	err := k.phase(boot, "spawn", func() error {
		k.t0 = k.clock.Now()
		return Guard(func() error {
			k.spawnTasks()
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	boot.Annotate("tasks", fmt.Sprint(len(k.tasks)))
	return k, nil
}

// phase runs one boot step under the boot timer and a child trace span.
func (k *Kernel) phase(boot *trace.Span, name string, fn func() error) error {
	span := boot.Child(name)
	err := k.timer.Measure(name, fn)
	if err != nil {
		span.End(err.Error())
		return err
	}
	span.End("")
	return nil
}

// tick reads the kernel clock for trace spans, zero before it is up.
func (k *Kernel) tick() uint64 {
	if k.clock == nil {
		return 0
	}
	return uint64(k.peek())
}

func (k *Kernel) initClock(override asyncrt.Clock) error {
	if override != nil {
		k.clock = override
		return nil
	}
	switch k.cfg.Clock.Source {
	case "virtual":
		k.clock = asyncrt.NewVirtualClock(k.cfg.Clock.Tick.Duration, k.cfg.Clock.Step)
	default:
		c, err := hpet.Open()
		if err != nil {
			return fmt.Errorf("hpet: %w", err)
		}
		k.clock = c.Clock()
	}
	return nil
}

func (k *Kernel) initLog(opts Options) {
	if opts.Log != nil {
		k.log = opts.Log
		return
	}
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	level, err := klog.ParseLevel(k.cfg.Log.Level)
	if err != nil {
		level = klog.LevelInfo
	}
	logOpts := []klog.Option{klog.WithLevel(level), klog.WithColor(opts.Color)}
	if k.cfg.Log.Timestamps {
		logOpts = append(logOpts, klog.WithStamp(k.stamp))
	}
	k.log = klog.New(out, logOpts...)
}

// stamp formats the current clock reading as seconds since boot.
func (k *Kernel) stamp() string {
	now := k.peek()
	d := asyncrt.Elapsed(k.clock, now.Sub(k.t0))
	return fmt.Sprintf("[%12.6f]", d.Seconds())
}

// peek reads the clock without advancing a virtual one.
func (k *Kernel) peek() asyncrt.Timestamp {
	if v, ok := k.clock.(*asyncrt.VirtualClock); ok {
		return v.Peek()
	}
	return k.clock.Now()
}

func (k *Kernel) initSerial(override serial.Port) error {
	if !k.cfg.Serial.Enabled && override == nil {
		return nil
	}
	switch {
	case override != nil:
		k.port = override
	case k.cfg.Serial.Device == "" || k.cfg.Serial.Device == "memory":
		k.port = serial.NewBufferPort(serial.DefaultFIFO, k.input.Notify)
	default:
		device := k.cfg.Serial.Device
		if device == "tty" {
			device = ""
		}
		p, err := serial.OpenTTY(device, k.input.Notify)
		if err != nil {
			return err
		}
		k.port = p
	}
	if k.cfg.Serial.Loopback {
		if err := serial.LoopbackTest(k.port, []byte{LoopbackPattern}); err != nil {
			k.errorf("serial: loopback test failed: %v", err)
		} else {
			k.debugf("serial: loopback test passed")
		}
	}
	return nil
}

func (k *Kernel) spawnTasks() {
	for _, tc := range k.cfg.Tasks {
		name := tc.Name
		if name == "" {
			name = fmt.Sprintf("timestamp-%d", tc.LabelStart)
		}
		k.tasks = append(k.tasks, k.exec.SpawnNamed(name, k.timestampLogger(tc)))
	}
	if k.port != nil {
		k.tasks = append(k.tasks, k.exec.SpawnNamed("serial-monitor", k.serialMonitor()))
	}
}

// timestampLogger logs the elapsed main counter, then sleeps, count times.
func (k *Kernel) timestampLogger(tc config.TaskConfig) asyncrt.Future {
	return asyncrt.Loop(tc.Count, func(i int) asyncrt.Future {
		return asyncrt.Seq(
			asyncrt.Do(func() error {
				if tc.FailAt > 0 && i+1 == tc.FailAt {
					return fmt.Errorf("injected failure at iteration %d", i+1)
				}
				k.infof("%d hpet.main_counter = %s", tc.LabelStart+i, k.Elapsed())
				return nil
			}),
			k.exec.Sleep(tc.Interval.Duration),
		)
	})
}

// serialMonitor drains received bytes every poll interval, or as soon as
// the receive interrupt fires.
func (k *Kernel) serialMonitor() asyncrt.Future {
	var lines serial.LineBuffer
	return asyncrt.Seq(
		asyncrt.Do(func() error {
			k.infof("Started to monitor serial port")
			return nil
		}),
		asyncrt.Loop(-1, func(int) asyncrt.Future {
			return asyncrt.Seq(
				asyncrt.Do(func() error {
					k.drainSerial(&lines)
					return nil
				}),
				k.waitInput(),
			)
		}),
	)
}

func (k *Kernel) drainSerial(lines *serial.LineBuffer) {
	for {
		b, ok := k.port.TryRead()
		if !ok {
			return
		}
		k.infof("serial input: %s", serial.Describe(b))
		if line, done := lines.Push(b); done {
			k.infof("serial line: %q", line)
		}
	}
}

func (k *Kernel) waitInput() asyncrt.Future {
	wait := asyncrt.WithTimeout(k.clock, k.cfg.Serial.PollInterval.Duration, k.input.Wait())
	return asyncrt.FutureFunc(func(cx *asyncrt.Context) asyncrt.Poll {
		p := wait.Poll(cx)
		if p.Ready() && errors.Is(p.Err(), asyncrt.ErrTimedOut) {
			return asyncrt.Done(nil)
		}
		return p
	})
}

// Run drives the executor until every task finished or ctx is done.
// Panics raised while running, scheduler faults included, go through the
// panic handler and come back as *PanicError.
func (k *Kernel) Run(ctx context.Context) error {
	idx := k.timer.Begin("run")
	err := GuardExecutor(k.exec, func() error { return k.exec.Run(ctx) })
	note := ""
	switch {
	case err == nil:
		note = "drained"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		note = "interrupted"
		err = nil
	default:
		note = err.Error()
	}
	k.timer.End(idx, note)

	st := k.exec.Stats()
	k.infof("executor %s after %s: %s polls, %d completed, %d failed, %d halts",
		note, k.Elapsed(), comma(st.Polls), st.Completed, st.Failed, st.Halts)
	return err
}

// Close drops unfinished tasks and releases the serial port.
func (k *Kernel) Close() error {
	if k.exec != nil && k.exec.State() != asyncrt.StateRunning {
		if n := k.exec.Shutdown(); n > 0 {
			k.warnf("dropped %d unfinished task(s)", n)
		}
	}
	if k.port != nil {
		return k.port.Close()
	}
	return nil
}

// Elapsed is the time on the kernel clock since the tasks were spawned.
func (k *Kernel) Elapsed() time.Duration {
	return asyncrt.Elapsed(k.clock, k.clock.Now().Sub(k.t0))
}

// Executor returns the kernel executor.
func (k *Kernel) Executor() *asyncrt.Executor { return k.exec }

// Clock returns the kernel clock.
func (k *Kernel) Clock() asyncrt.Clock { return k.clock }

// Port returns the serial port, or nil when the console is disabled.
func (k *Kernel) Port() serial.Port { return k.port }

// Log returns the kernel log sink.
func (k *Kernel) Log() klog.Sink { return k.log }

// BootID identifies this boot in logs, traces and the monitor.
func (k *Kernel) BootID() uuid.UUID { return k.bootID }

// BootedAt is the wall-clock boot time.
func (k *Kernel) BootedAt() time.Time { return k.booted }

// Timings returns the boot phase timer.
func (k *Kernel) Timings() *observ.Timer { return k.timer }

// Describe is a one-line summary of the machine.
func (k *Kernel) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "boot %s, clock %s", k.bootID, k.cfg.Clock.Source)
	if k.exec != nil {
		fmt.Fprintf(&b, ", wake mode %s, %d task(s)", k.exec.WakeMode(), k.exec.Len())
	}
	if k.port != nil {
		b.WriteString(", serial on")
	}
	return b.String()
}

func comma(n uint64) string {
	v, err := safecast.Conv[int64](n)
	if err != nil {
		return fmt.Sprint(n)
	}
	return humanize.Comma(v)
}

func (k *Kernel) debugf(format string, args ...any) {
	k.log.Log(klog.LevelDebug, fmt.Sprintf(format, args...))
}

func (k *Kernel) infof(format string, args ...any) {
	k.log.Log(klog.LevelInfo, fmt.Sprintf(format, args...))
}

func (k *Kernel) warnf(format string, args ...any) {
	k.log.Log(klog.LevelWarn, fmt.Sprintf(format, args...))
}

func (k *Kernel) errorf(format string, args ...any) {
	k.log.Log(klog.LevelError, fmt.Sprintf(format, args...))
}
