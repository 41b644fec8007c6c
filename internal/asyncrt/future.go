package asyncrt

import "time"

// Poll is the outcome of polling a future once.
type Poll struct {
	ready bool
	err   error
}

// Pending reports that the future reached a suspension point.
func Pending() Poll { return Poll{} }

// Done reports completion with err (nil for success).
func Done(err error) Poll { return Poll{ready: true, err: err} }

// Ready reports whether the future completed.
func (p Poll) Ready() bool { return p.ready }

// Err returns the completion error of a ready poll.
func (p Poll) Err() error { return p.err }

// Future is a resumable computation. The executor polls it until it
// reports Done; between polls it must keep its own progress state.
//
// A future that returns Pending must arrange to be woken: either by
// handing cx.Waker() to whatever it waits on, or by recording a deadline
// with cx.SuspendUntil.
type Future interface {
	Poll(cx *Context) Poll
}

// FutureFunc adapts a poll function to Future.
type FutureFunc func(cx *Context) Poll

// Poll calls f(cx).
func (f FutureFunc) Poll(cx *Context) Poll { return f(cx) }

// Context is handed to a future for the duration of one poll.
type Context struct {
	exec        *Executor
	id          TaskID
	timeBlocked bool
	deadline    Timestamp
}

// Waker returns a waker bound to the polled task.
func (cx *Context) Waker() Waker {
	return Waker{exec: cx.exec, id: cx.id}
}

// TaskID returns the id of the polled task.
func (cx *Context) TaskID() TaskID { return cx.id }

// Clock returns the executor clock.
func (cx *Context) Clock() Clock { return cx.exec.cfg.Clock }

// Now reads the executor clock.
func (cx *Context) Now() Timestamp { return cx.exec.cfg.Clock.Now() }

// Executor returns the executor driving the poll.
func (cx *Context) Executor() *Executor { return cx.exec }

// SuspendUntil records that the task is blocked on time until deadline.
// When several deadlines are recorded in one poll the earliest wins.
func (cx *Context) SuspendUntil(deadline Timestamp) {
	if !cx.timeBlocked || deadline < cx.deadline {
		cx.deadline = deadline
	}
	cx.timeBlocked = true
}

// Timeout resolves once its clock reads at or after the deadline fixed at
// construction.
type Timeout struct {
	clock    Clock
	start    Timestamp
	deadline Timestamp
}

// NewTimeout creates a timeout of d measured from now.
func NewTimeout(c Clock, d time.Duration) *Timeout {
	return NewTimeoutTicks(c, Ticks(c, d))
}

// NewTimeoutTicks creates a timeout of n ticks measured from now.
func NewTimeoutTicks(c Clock, n Timestamp) *Timeout {
	start := c.Now()
	return &Timeout{clock: c, start: start, deadline: start.Add(n)}
}

// Start returns the clock reading taken at construction.
func (t *Timeout) Start() Timestamp { return t.start }

// Deadline returns the resolving timestamp.
func (t *Timeout) Deadline() Timestamp { return t.deadline }

// Expired reports whether the deadline has passed.
func (t *Timeout) Expired() bool { return t.clock.Now() >= t.deadline }

// Poll resolves iff now >= deadline.
func (t *Timeout) Poll(cx *Context) Poll {
	if t.clock.Now() >= t.deadline {
		return Done(nil)
	}
	cx.SuspendUntil(t.deadline)
	return Pending()
}
