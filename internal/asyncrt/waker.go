package asyncrt

import "hearth/internal/irq"

// Waker reschedules one task. Wakers are small values and may be copied,
// stored and invoked from any goroutine, including interrupt context.
//
// Waking is idempotent: a task already in the ready queue is not queued
// again, and waking a finished task is a no-op.
type Waker struct {
	exec *Executor
	id   TaskID
}

// Wake makes the task ready if it is suspended, or marks it for a re-poll
// if it is being polled right now.
func (w Waker) Wake() {
	if w.exec == nil || w.id == 0 {
		return
	}
	w.exec.wake(w.id)
}

// TaskID returns the task the waker is bound to.
func (w Waker) TaskID() TaskID { return w.id }

// Signal is a latched notification raised from interrupt context and
// consumed by a single waiting task.
type Signal struct {
	mu     irq.Mutex
	set    bool
	waiter Waker
}

// Notify latches the signal and wakes the registered waiter, if any.
func (s *Signal) Notify() {
	g := s.mu.Lock()
	s.set = true
	w := s.waiter
	s.waiter = Waker{}
	g.Unlock()
	w.Wake()
}

// Pending reports whether the signal is latched.
func (s *Signal) Pending() bool {
	g := s.mu.Lock()
	defer g.Unlock()
	return s.set
}

// Wait returns a future that resolves once the signal is latched, clearing
// it.
func (s *Signal) Wait() Future {
	return FutureFunc(func(cx *Context) Poll {
		g := s.mu.Lock()
		defer g.Unlock()
		if s.set {
			s.set = false
			s.waiter = Waker{}
			return Done(nil)
		}
		s.waiter = cx.Waker()
		return Pending()
	})
}
