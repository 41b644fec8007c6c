package kernel

import (
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"

	"hearth/internal/asyncrt"
	"hearth/internal/klog"
	"hearth/internal/trace"
)

// PanicInfo contains details about a recovered panic.
type PanicInfo struct {
	TaskID asyncrt.TaskID
	Value  any
	Stack  []byte
}

// PanicError is returned by Guard after the panic handler ran.
type PanicError struct {
	Info PanicInfo
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("kernel panic: %v", e.Info.Value)
}

// Unwrap exposes a scheduler fault carried by the panic.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Info.Value.(error); ok {
		return err
	}
	return nil
}

var (
	panicActive atomic.Bool
	panicOnce   sync.Once

	panicHandler atomic.Value // func(PanicInfo)
)

// InPanicMode reports whether the kernel is in panic mode.
func InPanicMode() bool {
	return panicActive.Load()
}

// SetPanicHandler installs a process-wide panic handler.
//
// The handler is invoked at most once (on the first panic). It must not panic.
func SetPanicHandler(fn func(PanicInfo)) {
	panicHandler.Store(fn)
}

func triggerPanic(info PanicInfo) {
	panicOnce.Do(func() {
		panicActive.Store(true)
		if v := panicHandler.Load(); v != nil {
			if fn, ok := v.(func(PanicInfo)); ok && fn != nil {
				fn(info)
			}
		}
	})
}

// Guard runs fn and routes any panic through the panic handler, returning
// it as a *PanicError.
func Guard(fn func() error) error {
	return guard(nil, fn)
}

// GuardExecutor is Guard for code driving exec. A panic raised inside a
// task poll is attributed to that task even when it is not a scheduler
// fault.
func GuardExecutor(exec *asyncrt.Executor, fn func() error) error {
	return guard(exec.Current, fn)
}

func guard(current func() asyncrt.TaskID, fn func() error) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		info := PanicInfo{Value: r, Stack: debug.Stack()}
		var fault *asyncrt.Fault
		if e, ok := r.(error); ok && errors.As(e, &fault) {
			info.TaskID = fault.TaskID
		}
		if info.TaskID == 0 && current != nil {
			info.TaskID = current()
		}
		triggerPanic(info)
		err = &PanicError{Info: info}
	}()
	return fn()
}

// LogPanics returns a panic handler that reports to log and dumps the
// most recent trace events kept by ring, if any, to w. A task fault dumps
// only that task's history.
func LogPanics(log klog.Sink, ring *trace.RingTracer, w io.Writer) func(PanicInfo) {
	return func(info PanicInfo) {
		if info.TaskID != 0 {
			log.Log(klog.LevelError, fmt.Sprintf("PANIC: task=%d %v", info.TaskID, info.Value))
		} else {
			log.Log(klog.LevelError, fmt.Sprintf("PANIC: %v", info.Value))
		}
		for _, line := range strings.Split(string(info.Stack), "\n") {
			if line == "" {
				continue
			}
			log.Log(klog.LevelDebug, line)
		}
		if ring == nil || w == nil {
			return
		}
		if info.TaskID == 0 {
			fmt.Fprintln(w, "last trace events:")
			_ = ring.Dump(w, trace.FormatText)
			return
		}
		fmt.Fprintf(w, "last trace events of task %d:\n", info.TaskID)
		events := ring.Task(uint64(info.TaskID))
		for i := range events {
			_, _ = w.Write(trace.FormatEvent(&events[i], trace.FormatText))
		}
	}
}
