package kernel

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hearth/internal/asyncrt"
	"hearth/internal/config"
	"hearth/internal/klog"
	"hearth/internal/serial"
	"hearth/internal/trace"
)

func resetPanicState() {
	panicOnce = sync.Once{}
	panicActive.Store(false)
	panicHandler = atomic.Value{}
}

func virtualConfig() config.Config {
	cfg := config.Default()
	cfg.Executor.WakeMode = "timer"
	cfg.Clock.Source = "virtual"
	cfg.Clock.Tick = config.Duration{Duration: time.Millisecond}
	cfg.Clock.Step = 0
	return cfg
}

func infoLines(c *klog.Capture) []string {
	var out []string
	for _, e := range c.Filter(klog.LevelInfo) {
		out = append(out, e.Msg)
	}
	return out
}

func containsLine(lines []string, want string) bool {
	for _, l := range lines {
		if l == want {
			return true
		}
	}
	return false
}

func TestBootRunsTimestampLoggers(t *testing.T) {
	logs := &klog.Capture{}
	k, err := Boot(Options{Config: virtualConfig(), Log: logs})
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	if err := k.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	lines := infoLines(logs)
	for _, want := range []string{
		"100 hpet.main_counter = 0s",
		"101 hpet.main_counter = 1s",
		"103 hpet.main_counter = 3s",
		"200 hpet.main_counter = 0s",
		"202 hpet.main_counter = 4s",
		"203 hpet.main_counter = 6s",
	} {
		if !containsLine(lines, want) {
			t.Fatalf("missing %q in %q", want, lines)
		}
	}
	if k.Executor().State() != asyncrt.StateDrained {
		t.Fatalf("executor state = %s", k.Executor().State())
	}
	if len(k.Timings().Report().Phases) != 6 {
		t.Fatalf("phases = %+v", k.Timings().Report().Phases)
	}
}

func TestFailingTaskDoesNotStopOthers(t *testing.T) {
	cfg := virtualConfig()
	cfg.Tasks[0].FailAt = 2
	logs := &klog.Capture{}
	k, err := Boot(Options{Config: cfg, Log: logs})
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	if err := k.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	errs := logs.Filter(klog.LevelError)
	if len(errs) != 1 || !strings.Contains(errs[0].Msg, "(timestamp-1s) failed: injected failure at iteration 2") {
		t.Fatalf("error records = %+v", errs)
	}
	lines := infoLines(logs)
	if containsLine(lines, "101 hpet.main_counter = 1s") {
		t.Fatal("failed task kept logging")
	}
	if !containsLine(lines, "203 hpet.main_counter = 6s") {
		t.Fatalf("second logger did not finish: %q", lines)
	}
}

func TestSerialMonitorLogsInput(t *testing.T) {
	cfg := virtualConfig()
	cfg.Serial.Enabled = true
	cfg.Tasks = nil
	port := serial.NewBufferPort(16, nil)
	logs := &klog.Capture{}

	k, err := Boot(Options{Config: cfg, Log: logs, Port: port})
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	if len(logs.Filter(klog.LevelError)) != 0 {
		t.Fatalf("loopback test failed: %+v", logs.Entries())
	}
	port.Feed([]byte("hi\r"))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := k.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	lines := infoLines(logs)
	for _, want := range []string{
		"Started to monitor serial port",
		"serial input: 0x68 = 'h'",
		"serial input: 0x0D = '.'",
		`serial line: "hi"`,
	} {
		if !containsLine(lines, want) {
			t.Fatalf("missing %q in %q", want, lines)
		}
	}
	if err := k.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

type deafPort struct{ *serial.BufferPort }

func (deafPort) SetLoopback(bool) error { return errors.New("no loopback") }

func TestLoopbackFailureIsNotFatal(t *testing.T) {
	cfg := virtualConfig()
	cfg.Serial.Enabled = true
	logs := &klog.Capture{}

	k, err := Boot(Options{Config: cfg, Log: logs, Port: deafPort{serial.NewBufferPort(4, nil)}})
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	errs := logs.Filter(klog.LevelError)
	if len(errs) != 1 || !strings.HasPrefix(errs[0].Msg, "serial: loopback test failed") {
		t.Fatalf("error records = %+v", errs)
	}
	if k.Port() == nil {
		t.Fatal("port dropped after failed self-test")
	}
}

func TestBootFaultReachesPanicHandler(t *testing.T) {
	resetPanicState()
	defer resetPanicState()

	// Two loggers fill the table; the injected console adds a third task.
	cfg := virtualConfig()
	cfg.Executor.MaxTasks = 2
	logs := &klog.Capture{}
	var got []PanicInfo
	_, err := Boot(Options{
		Config: cfg,
		Log:    logs,
		Port:   serial.NewBufferPort(4, nil),
		OnPanic: func(log klog.Sink) func(PanicInfo) {
			report := LogPanics(log, nil, nil)
			return func(info PanicInfo) {
				got = append(got, info)
				report(info)
			}
		},
	})

	var perr *PanicError
	if !errors.As(err, &perr) {
		t.Fatalf("Boot = %v, want *PanicError", err)
	}
	var fault *asyncrt.Fault
	if !errors.As(err, &fault) || fault.Code != asyncrt.FaultTaskTableFull {
		t.Fatalf("Boot error does not carry KP1001: %v", err)
	}
	if len(got) != 1 || !InPanicMode() {
		t.Fatalf("handler calls = %d, panic mode = %v", len(got), InPanicMode())
	}
	errs := logs.Filter(klog.LevelError)
	if len(errs) != 1 || !strings.HasPrefix(errs[0].Msg, "PANIC: ") || !strings.Contains(errs[0].Msg, "KP1001") {
		t.Fatalf("error records = %+v", errs)
	}
}

func TestTaskPanicIsAttributedToTask(t *testing.T) {
	resetPanicState()
	defer resetPanicState()

	cfg := virtualConfig()
	cfg.Tasks = cfg.Tasks[:1]
	logs := &klog.Capture{}
	var got PanicInfo
	k, err := Boot(Options{
		Config: cfg,
		Log:    logs,
		OnPanic: func(klog.Sink) func(PanicInfo) {
			return func(info PanicInfo) { got = info }
		},
	})
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	var m map[string]int
	bad := k.Executor().SpawnNamed("bad-write", asyncrt.Do(func() error {
		m["x"] = 1
		return nil
	}))

	err = k.Run(context.Background())
	var perr *PanicError
	if !errors.As(err, &perr) {
		t.Fatalf("Run = %v, want *PanicError", err)
	}
	if perr.Info.TaskID != bad.ID || got.TaskID != bad.ID {
		t.Fatalf("panic attributed to task %d (handler saw %d), want %d", perr.Info.TaskID, got.TaskID, bad.ID)
	}
}

func TestTwoLoggersCompleteEightTimes(t *testing.T) {
	for _, mode := range []string{"busy", "timer"} {
		t.Run(mode, func(t *testing.T) {
			cfg := virtualConfig()
			cfg.Executor.WakeMode = mode
			if mode == "busy" {
				cfg.Clock.Step = 1
			}
			logs := &klog.Capture{}
			k, err := Boot(Options{Config: cfg, Log: logs})
			if err != nil {
				t.Fatalf("Boot: %v", err)
			}
			if err := k.Run(context.Background()); err != nil {
				t.Fatalf("Run: %v", err)
			}

			var order []int
			for _, line := range infoLines(logs) {
				label, _, ok := strings.Cut(line, " hpet.main_counter = ")
				if !ok {
					continue
				}
				n, err := strconv.Atoi(label)
				if err != nil {
					t.Fatalf("bad label in %q", line)
				}
				order = append(order, n)
			}
			if len(order) != 8 {
				t.Fatalf("logged %d lines, want 8: %v", len(order), order)
			}
			pos := make(map[int]int, len(order))
			for i, n := range order {
				pos[n] = i
			}
			for _, label := range []int{100, 101, 102, 103, 200, 201, 202, 203} {
				if _, ok := pos[label]; !ok {
					t.Fatalf("label %d missing from %v", label, order)
				}
			}
			if k.Executor().State() != asyncrt.StateDrained {
				t.Fatalf("state = %s, want drained", k.Executor().State())
			}
			st := k.Executor().Stats()
			if st.Completed != 2 || st.Live != 0 {
				t.Fatalf("stats = %+v", st)
			}
		})
	}
}

func TestPanicHandlerFiresOnce(t *testing.T) {
	resetPanicState()
	defer resetPanicState()

	calls := 0
	SetPanicHandler(func(PanicInfo) { calls++ })
	for i := 0; i < 3; i++ {
		err := Guard(func() error { panic("boom") })
		if err == nil || err.Error() != "kernel panic: boom" {
			t.Fatalf("Guard = %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times, want 1", calls)
	}
}

func TestLogPanicsFormat(t *testing.T) {
	logs := &klog.Capture{}
	LogPanics(logs, nil, nil)(PanicInfo{TaskID: 4, Value: "bad state", Stack: []byte("a\n\nb\n")})

	errs := logs.Filter(klog.LevelError)
	if len(errs) != 1 || errs[0].Msg != "PANIC: task=4 bad state" {
		t.Fatalf("error records = %+v", errs)
	}
	if n := len(logs.Filter(klog.LevelDebug)); n != 2 {
		t.Fatalf("stack lines logged = %d, want 2", n)
	}
}

func TestLogPanicsDumpsFaultingTask(t *testing.T) {
	ring := trace.NewRingTracer(16, trace.LevelDebug)
	ring.Emit(trace.Point(trace.ScopePoll, "poll", 1, 10, ""))
	ring.Emit(trace.Point(trace.ScopePoll, "poll", 2, 11, ""))
	ring.Emit(trace.Point(trace.ScopeExecutor, "halt", 0, 12, ""))
	ring.Emit(trace.Point(trace.ScopeTask, "fail", 2, 13, "boom"))

	var out bytes.Buffer
	LogPanics(&klog.Capture{}, ring, &out)(PanicInfo{TaskID: 2, Value: "bad state"})

	dump := out.String()
	if !strings.HasPrefix(dump, "last trace events of task 2:") {
		t.Fatalf("dump = %q", dump)
	}
	if strings.Contains(dump, "task=1") || !strings.Contains(dump, "executor/halt") || !strings.Contains(dump, "(boom)") {
		t.Fatalf("dump did not select task 2 history: %q", dump)
	}
}
