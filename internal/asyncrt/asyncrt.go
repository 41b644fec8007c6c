package asyncrt

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"hearth/internal/irq"
	"hearth/internal/klog"
	"hearth/internal/trace"
)

// DefaultMaxTasks bounds the task table when Config.MaxTasks is zero.
const DefaultMaxTasks = 4096

// WakeMode selects how tasks blocked on a deadline get back onto the ready
// queue.
type WakeMode uint8

const (
	// WakeBusyPoll requeues a time-blocked task after every pending poll.
	WakeBusyPoll WakeMode = iota
	// WakeTimer parks time-blocked tasks on a deadline heap and lets the
	// core halt until the earliest deadline.
	WakeTimer
)

// String returns the mode name accepted by ParseWakeMode.
func (m WakeMode) String() string {
	switch m {
	case WakeBusyPoll:
		return "busy"
	case WakeTimer:
		return "timer"
	default:
		return "unknown"
	}
}

// ParseWakeMode converts a mode name to a WakeMode.
func ParseWakeMode(s string) (WakeMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "busy", "busy-poll", "poll":
		return WakeBusyPoll, nil
	case "timer":
		return WakeTimer, nil
	default:
		return WakeBusyPoll, fmt.Errorf("invalid wake mode: %q (expected: busy|timer)", s)
	}
}

// ExecState is the coarse executor lifecycle state.
type ExecState uint8

const (
	StateIdle ExecState = iota
	StateRunning
	StateDrained
)

// String returns the lower-case state name.
func (s ExecState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDrained:
		return "drained"
	default:
		return "unknown"
	}
}

// Config configures executor scheduling behavior.
type Config struct {
	Clock    Clock
	Log      klog.Sink
	Tracer   trace.Tracer
	WakeMode WakeMode
	MaxTasks int
	// IRQ is raised by wakers when the core is halted. A private line is
	// created when nil.
	IRQ *irq.Line
}

// Stats are cumulative executor counters.
type Stats struct {
	Spawned       uint64 `json:"spawned" msgpack:"spawned"`
	Completed     uint64 `json:"completed" msgpack:"completed"`
	Failed        uint64 `json:"failed" msgpack:"failed"`
	Polls         uint64 `json:"polls" msgpack:"polls"`
	Wakes         uint64 `json:"wakes" msgpack:"wakes"`
	SpuriousWakes uint64 `json:"spurious_wakes" msgpack:"spurious_wakes"`
	Requeues      uint64 `json:"requeues" msgpack:"requeues"`
	TimerFires    uint64 `json:"timer_fires" msgpack:"timer_fires"`
	Halts         uint64 `json:"halts" msgpack:"halts"`
	Live          int    `json:"live" msgpack:"live"`
	Ready         int    `json:"ready" msgpack:"ready"`
}

// Executor runs tasks cooperatively on the goroutine that calls Run or
// BlockOn, taking them from a FIFO ready queue. When nothing is ready the
// executor halts the core until an interrupt or the next deadline.
//
// Spawn and Waker.Wake may be called from any goroutine; Run and BlockOn
// must not be entered again while one of them is active.
type Executor struct {
	cfg Config

	mu       irq.Mutex
	lastID   TaskID
	tasks    *taskArena
	ready    readyQueue
	timers   timerHeap
	timerSeq uint64
	state    ExecState
	idle     bool
	current  TaskID
	stats    Stats

	running atomic.Bool
}

// NewExecutor constructs an executor with the provided configuration.
func NewExecutor(cfg Config) *Executor {
	if cfg.Clock == nil {
		cfg.Clock = NewVirtualClock(time.Millisecond, 1)
	}
	if cfg.Log == nil {
		cfg.Log = klog.Discard
	}
	cfg.Tracer = trace.OrNop(cfg.Tracer)
	if cfg.MaxTasks <= 0 {
		cfg.MaxTasks = DefaultMaxTasks
	}
	if cfg.IRQ == nil {
		cfg.IRQ = irq.NewLine()
	}
	return &Executor{
		cfg:   cfg,
		tasks: newTaskArena(cfg.MaxTasks),
	}
}

// Clock returns the executor clock.
func (e *Executor) Clock() Clock { return e.cfg.Clock }

// WakeMode returns the configured wake mode.
func (e *Executor) WakeMode() WakeMode { return e.cfg.WakeMode }

// IRQ returns the interrupt line the executor halts on.
func (e *Executor) IRQ() *irq.Line { return e.cfg.IRQ }

// Sleep returns a future that resolves d after its first poll.
func (e *Executor) Sleep(d time.Duration) Future {
	return Sleep(e.cfg.Clock, d)
}

// Timeout creates a timeout on the executor clock, starting now.
func (e *Executor) Timeout(d time.Duration) *Timeout {
	return NewTimeout(e.cfg.Clock, d)
}

// Spawn registers f as a new task at the tail of the ready queue.
func (e *Executor) Spawn(f Future) TaskHandle {
	return e.SpawnNamed("", f)
}

// SpawnNamed is Spawn with a human readable task name.
//
// Spawn faults with FaultTaskTableFull when the task table is at capacity
// and FaultTaskIDExhausted when no fresh identifier is left.
func (e *Executor) SpawnNamed(name string, f Future) TaskHandle {
	if f == nil {
		raise(FaultNilFuture, 0, "spawn of nil future")
	}
	g := e.mu.Lock()
	defer g.Unlock()

	if e.lastID == math.MaxUint64 {
		raise(FaultTaskIDExhausted, 0, "task id space exhausted after %d spawns", e.stats.Spawned)
	}
	id := e.lastID + 1
	t := e.tasks.alloc(id)
	if t == nil {
		raise(FaultTaskTableFull, 0, "task table full (%d live tasks)", e.tasks.len())
	}
	e.lastID = id
	if name == "" {
		name = fmt.Sprintf("task-%d", id)
	}
	t.name = name
	t.fut = f
	t.status = TaskReady
	if !e.ready.push(id) {
		raise(FaultInvariant, id, "fresh task already queued")
	}
	e.stats.Spawned++
	if e.state == StateDrained {
		e.state = StateIdle
	}
	if e.idle {
		e.cfg.IRQ.Raise()
	}
	e.emit(trace.ScopeTask, "spawn", id, name)
	return TaskHandle{ID: id, Name: name}
}

// Waker returns a waker for id. It can be handed to interrupt handlers
// before the task ever runs.
func (e *Executor) Waker(id TaskID) Waker {
	return Waker{exec: e, id: id}
}

func (e *Executor) wake(id TaskID) {
	g := e.mu.Lock()
	defer g.Unlock()

	t := e.tasks.get(id)
	if t == nil {
		e.stats.SpuriousWakes++
		return
	}
	switch t.status {
	case TaskRunning:
		t.notified = true
		e.stats.Wakes++
	case TaskSuspended:
		t.status = TaskReady
		t.timeBlocked = false
		e.ready.push(id)
		e.stats.Wakes++
		if e.idle {
			e.cfg.IRQ.Raise()
		}
		e.emit(trace.ScopePoll, "wake", id, "")
	default:
		e.stats.SpuriousWakes++
	}
}

// Run polls tasks until none remain or ctx is done. It returns nil once
// the executor has drained and ctx.Err() on cancellation; tasks still alive
// at cancellation stay registered and a later Run resumes them.
func (e *Executor) Run(ctx context.Context) error {
	return e.run(ctx, nil)
}

// BlockOn spawns f and drives the executor until f completes, returning
// its result. Other tasks make progress meanwhile and stay registered
// after BlockOn returns.
func (e *Executor) BlockOn(ctx context.Context, f Future) error {
	if f == nil {
		raise(FaultNilFuture, 0, "block on nil future")
	}
	var (
		done   bool
		result error
	)
	e.SpawnNamed("block-on", FutureFunc(func(cx *Context) Poll {
		p := f.Poll(cx)
		if !p.Ready() {
			return p
		}
		done = true
		result = p.Err()
		return Done(nil)
	}))
	if err := e.run(ctx, func() bool { return done }); err != nil {
		return err
	}
	return result
}

type stepKind uint8

const (
	stepPoll stepKind = iota
	stepHalt
	stepDrained
)

type step struct {
	kind     stepKind
	id       TaskID
	deadline Timestamp
}

func (e *Executor) run(ctx context.Context, until func() bool) error {
	if !e.running.CompareAndSwap(false, true) {
		raise(FaultReentrantRun, e.Current(), "executor run loop entered while running")
	}
	defer e.running.Store(false)

	e.setState(StateRunning)
	e.emit(trace.ScopeExecutor, "run", 0, e.cfg.WakeMode.String())
	for {
		if until != nil && until() {
			e.setState(StateIdle)
			return nil
		}
		if err := ctx.Err(); err != nil {
			e.setState(StateIdle)
			return err
		}
		s := e.next()
		switch s.kind {
		case stepPoll:
			e.poll(s.id)
		case stepHalt:
			e.halt(ctx, s.deadline)
		case stepDrained:
			e.emit(trace.ScopeExecutor, "drained", 0, "")
			return nil
		}
	}
}

func (e *Executor) setState(s ExecState) {
	g := e.mu.Lock()
	e.state = s
	g.Unlock()
}

// next picks what the loop does next: poll the queue head, halt until a
// deadline, or stop because no task is left.
func (e *Executor) next() step {
	g := e.mu.Lock()
	defer g.Unlock()

	if e.cfg.WakeMode == WakeTimer && len(e.timers) > 0 {
		e.stats.TimerFires += uint64(e.fireTimers(e.cfg.Clock.Now()))
	}
	if id, ok := e.ready.pop(); ok {
		return step{kind: stepPoll, id: id}
	}
	if e.tasks.len() == 0 {
		e.state = StateDrained
		return step{kind: stepDrained}
	}
	deadline := Forever
	if e.cfg.WakeMode == WakeTimer {
		deadline = e.nextDeadline()
	}
	e.idle = true
	e.cfg.IRQ.Ack()
	e.stats.Halts++
	return step{kind: stepHalt, deadline: deadline}
}

func (e *Executor) halt(ctx context.Context, deadline Timestamp) {
	detail := "until interrupt"
	if deadline != Forever {
		detail = fmt.Sprintf("until tick %d", deadline)
	}
	e.emit(trace.ScopeExecutor, "halt", 0, detail)
	e.cfg.Clock.SleepUntil(ctx, deadline, e.cfg.IRQ.C())

	g := e.mu.Lock()
	e.idle = false
	g.Unlock()
}

func (e *Executor) poll(id TaskID) {
	g := e.mu.Lock()
	t := e.tasks.get(id)
	if t == nil {
		g.Unlock()
		raise(FaultInvariant, id, "queued task is not live")
	}
	if t.status != TaskReady {
		status := t.status
		g.Unlock()
		raise(FaultInvariant, id, "queued task has status %s", status)
	}
	t.status = TaskRunning
	t.notified = false
	t.polls++
	fut := t.fut
	e.current = id
	g.Unlock()

	e.emit(trace.ScopePoll, "poll", id, "")
	cx := Context{exec: e, id: id}
	p := fut.Poll(&cx)

	g = e.mu.Lock()
	e.current = 0
	e.stats.Polls++
	if p.Ready() {
		name := t.name
		t.status = TaskDone
		e.tasks.release(id)
		if p.Err() != nil {
			e.stats.Failed++
		} else {
			e.stats.Completed++
		}
		g.Unlock()
		e.finish(id, name, p.Err())
		return
	}
	defer g.Unlock()

	t.timeBlocked = cx.timeBlocked
	t.deadline = cx.deadline
	switch {
	case t.notified:
		t.notified = false
		t.status = TaskReady
		e.ready.push(id)
		e.stats.Requeues++
	case cx.timeBlocked && e.cfg.WakeMode == WakeBusyPoll:
		t.status = TaskReady
		e.ready.push(id)
		e.stats.Requeues++
	case cx.timeBlocked:
		t.status = TaskSuspended
		e.armTimer(t)
	default:
		t.status = TaskSuspended
	}
}

func (e *Executor) finish(id TaskID, name string, err error) {
	if err != nil {
		e.cfg.Log.Log(klog.LevelError, fmt.Sprintf("task %d (%s) failed: %v", id, name, err))
		e.emit(trace.ScopeTask, "fail", id, err.Error())
		return
	}
	e.emit(trace.ScopeTask, "complete", id, name)
}

// emit reads the clock only when the event would be recorded.
func (e *Executor) emit(scope trace.Scope, name string, id TaskID, detail string) {
	tr := e.cfg.Tracer
	if !tr.Enabled() || !tr.Level().ShouldEmit(scope) {
		return
	}
	ev := trace.Point(scope, name, uint64(id), uint64(e.cfg.Clock.Now()), detail)
	ev.Seq = trace.NextSeq()
	tr.Emit(ev)
}

// Current returns the id of the task being polled, or zero.
func (e *Executor) Current() TaskID {
	g := e.mu.Lock()
	defer g.Unlock()
	return e.current
}

// State returns the lifecycle state.
func (e *Executor) State() ExecState {
	g := e.mu.Lock()
	defer g.Unlock()
	return e.state
}

// Len returns the number of live tasks.
func (e *Executor) Len() int {
	g := e.mu.Lock()
	defer g.Unlock()
	return e.tasks.len()
}

// Stats returns a copy of the executor counters.
func (e *Executor) Stats() Stats {
	g := e.mu.Lock()
	defer g.Unlock()
	s := e.stats
	s.Live = e.tasks.len()
	s.Ready = e.ready.len()
	return s
}

// Status reports the status of id. Finished and unknown ids report
// TaskDone; ok is false for ids never handed out.
func (e *Executor) Status(id TaskID) (status TaskStatus, ok bool) {
	g := e.mu.Lock()
	defer g.Unlock()
	if id == 0 || id > e.lastID {
		return TaskDone, false
	}
	if t := e.tasks.get(id); t != nil {
		return t.status, true
	}
	return TaskDone, true
}

// Snapshot returns every live task ordered by id.
func (e *Executor) Snapshot() []TaskInfo {
	g := e.mu.Lock()
	defer g.Unlock()
	ids := e.tasks.ids()
	out := make([]TaskInfo, 0, len(ids))
	for _, id := range ids {
		out = append(out, e.tasks.get(id).info())
	}
	return out
}

// ReadyIDs returns the ready queue from head to tail.
func (e *Executor) ReadyIDs() []TaskID {
	g := e.mu.Lock()
	defer g.Unlock()
	return e.ready.snapshot()
}

// Shutdown drops every live task without polling it again and returns how
// many were dropped. It must not be called while Run or BlockOn is active.
func (e *Executor) Shutdown() int {
	if e.running.Load() {
		raise(FaultReentrantRun, e.Current(), "shutdown while running")
	}
	g := e.mu.Lock()
	defer g.Unlock()
	ids := e.tasks.ids()
	for _, id := range ids {
		e.tasks.release(id)
	}
	e.ready.reset()
	e.timers = nil
	e.state = StateDrained
	return len(ids)
}
