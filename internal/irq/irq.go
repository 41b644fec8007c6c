// Package irq models the two interrupt-related services the scheduler core
// needs from the surrounding kernel: a critical section that masks interrupt
// delivery while held, and an interrupt request line that wakes a halted core.
//
// On the host, "interrupt context" is any goroutine other than the one
// driving the executor (serial input pumps, timer tickers, monitors).
package irq

import (
	"sync"
	"sync/atomic"
)

// Mutex is a critical section that may be entered both from the normal
// execution path and from interrupt context.
//
// While a Mutex is held, interrupts are considered masked: other contexts
// that want the section wait for the holder. A Line raised by the holder is
// latched at once; a halted core waiting on it sees the edge and then blocks
// on the Mutex until the holder releases. Holders must not block or poll tasks.
type Mutex struct {
	_            [0]func() // prevent accidental copying.
	mu           sync.Mutex
	masked       atomic.Bool
	acquisitions atomic.Uint64
}

// Guard is the scoped release handle returned by Mutex.Lock.
type Guard struct {
	m *Mutex
}

// Lock enters the critical section and returns the guard that leaves it.
//
//	g := m.Lock()
//	defer g.Unlock()
func (m *Mutex) Lock() Guard {
	m.mu.Lock()
	m.masked.Store(true)
	m.acquisitions.Add(1)
	return Guard{m: m}
}

// Unlock leaves the critical section. Unlocking a zero Guard panics.
func (g Guard) Unlock() {
	if g.m == nil {
		panic("irq: unlock of zero guard")
	}
	g.m.masked.Store(false)
	g.m.mu.Unlock()
}

// Masked reports whether some context currently holds the critical section.
func (m *Mutex) Masked() bool {
	return m.masked.Load()
}

// Acquisitions returns how many times the section has been entered.
func (m *Mutex) Acquisitions() uint64 {
	return m.acquisitions.Load()
}

// Line is an edge-triggered interrupt request line. Raising it while
// nothing is waiting latches a single pending edge; further raises coalesce.
type Line struct {
	once   sync.Once
	ch     chan struct{}
	raised atomic.Uint64
}

// NewLine returns a ready to use interrupt line.
func NewLine() *Line {
	l := &Line{}
	l.init()
	return l
}

func (l *Line) init() {
	l.once.Do(func() {
		l.ch = make(chan struct{}, 1)
	})
}

// Raise signals the line without blocking.
func (l *Line) Raise() {
	if l == nil {
		return
	}
	l.init()
	l.raised.Add(1)
	select {
	case l.ch <- struct{}{}:
	default:
	}
}

// C returns the channel a halted core waits on.
func (l *Line) C() <-chan struct{} {
	if l == nil {
		return nil
	}
	l.init()
	return l.ch
}

// Ack consumes a latched edge, reporting whether one was pending.
func (l *Line) Ack() bool {
	if l == nil {
		return false
	}
	l.init()
	select {
	case <-l.ch:
		return true
	default:
		return false
	}
}

// Raised returns the total number of raises, including coalesced ones.
func (l *Line) Raised() uint64 {
	if l == nil {
		return 0
	}
	return l.raised.Load()
}
