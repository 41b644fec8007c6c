package asyncrt

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"fortio.org/safecast"
)

// Timestamp is a clock reading in ticks. The domain is unsigned and
// arithmetic on it saturates instead of wrapping.
type Timestamp uint64

// Forever is the deadline that never passes.
const Forever Timestamp = math.MaxUint64

// Add returns t+d, saturating at Forever.
func (t Timestamp) Add(d Timestamp) Timestamp {
	if d > Forever-t {
		return Forever
	}
	return t + d
}

// Sub returns t-u, or 0 when u is later than t.
func (t Timestamp) Sub(u Timestamp) Timestamp {
	if u >= t {
		return 0
	}
	return t - u
}

// Clock supplies the monotonic timestamp and the low-power wait used when
// every task is suspended.
//
// Now must be side-effect free from the scheduler's point of view and safe
// to call from any context.
type Clock interface {
	Now() Timestamp
	TickDuration() time.Duration
	// SleepUntil halts until deadline passes, wake delivers an edge or ctx
	// is done, whichever happens first. A deadline of Forever waits for wake
	// or ctx only.
	SleepUntil(ctx context.Context, deadline Timestamp, wake <-chan struct{})
}

// Ticks converts d to clock ticks, rounding up so that a delay never
// resolves early because of tick granularity. Negative durations are zero.
func Ticks(c Clock, d time.Duration) Timestamp {
	if d <= 0 {
		return 0
	}
	tick := tickOf(c)
	ns, err := safecast.Conv[uint64](int64(d))
	if err != nil {
		return 0
	}
	per, err := safecast.Conv[uint64](int64(tick))
	if err != nil || per == 0 {
		per = 1
	}
	n := ns / per
	if ns%per != 0 {
		n++
	}
	return Timestamp(n)
}

// Elapsed converts ticks to a duration, saturating at the largest duration.
func Elapsed(c Clock, ticks Timestamp) time.Duration {
	tick := tickOf(c)
	per, err := safecast.Conv[uint64](int64(tick))
	if err != nil || per == 0 {
		per = 1
	}
	if uint64(ticks) > math.MaxInt64/per {
		return time.Duration(math.MaxInt64)
	}
	ns, err := safecast.Conv[int64](uint64(ticks) * per)
	if err != nil {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ns)
}

func tickOf(c Clock) time.Duration {
	if c == nil {
		return time.Nanosecond
	}
	tick := c.TickDuration()
	if tick <= 0 {
		return time.Nanosecond
	}
	return tick
}

// VirtualClock is a deterministic clock. Every Now call advances time by
// Step ticks, modelling a free-running counter while the core spins;
// SleepUntil jumps straight to the deadline.
type VirtualClock struct {
	now  atomic.Uint64
	step uint64
	tick time.Duration
}

// NewVirtualClock creates a virtual clock starting at zero.
func NewVirtualClock(tick time.Duration, step uint64) *VirtualClock {
	if tick <= 0 {
		tick = time.Millisecond
	}
	return &VirtualClock{step: step, tick: tick}
}

// Now returns the current reading, then advances it by the step.
func (c *VirtualClock) Now() Timestamp {
	if c == nil {
		return 0
	}
	for {
		cur := c.now.Load()
		if c.step == 0 {
			return Timestamp(cur)
		}
		next := uint64(Timestamp(cur).Add(Timestamp(c.step)))
		if c.now.CompareAndSwap(cur, next) {
			return Timestamp(cur)
		}
	}
}

// Peek returns the current reading without advancing it.
func (c *VirtualClock) Peek() Timestamp {
	if c == nil {
		return 0
	}
	return Timestamp(c.now.Load())
}

// TickDuration returns the configured tick length.
func (c *VirtualClock) TickDuration() time.Duration {
	if c == nil {
		return time.Millisecond
	}
	return c.tick
}

// Advance moves time forward by d ticks.
func (c *VirtualClock) Advance(d Timestamp) {
	if c == nil {
		return
	}
	for {
		cur := c.now.Load()
		next := uint64(Timestamp(cur).Add(d))
		if c.now.CompareAndSwap(cur, next) {
			return
		}
	}
}

// Set moves time forward to t. Time never moves backwards.
func (c *VirtualClock) Set(t Timestamp) {
	if c == nil {
		return
	}
	for {
		cur := c.now.Load()
		if uint64(t) <= cur {
			return
		}
		if c.now.CompareAndSwap(cur, uint64(t)) {
			return
		}
	}
}

// SleepUntil jumps to deadline unless a wake edge is already pending.
func (c *VirtualClock) SleepUntil(ctx context.Context, deadline Timestamp, wake <-chan struct{}) {
	if c == nil {
		return
	}
	select {
	case <-wake:
		return
	default:
	}
	if deadline != Forever {
		c.Set(deadline)
		return
	}
	select {
	case <-wake:
	case <-ctx.Done():
	}
}

// RealClock reads a hardware-style counter through NowFunc and blocks the
// OS thread while halted.
type RealClock struct {
	NowFunc func() uint64
	Tick    time.Duration
}

// Now returns the counter value.
func (c *RealClock) Now() Timestamp {
	if c == nil || c.NowFunc == nil {
		return 0
	}
	return Timestamp(c.NowFunc())
}

// TickDuration returns the counter period.
func (c *RealClock) TickDuration() time.Duration {
	if c == nil || c.Tick <= 0 {
		return time.Nanosecond
	}
	return c.Tick
}

// SleepUntil blocks until deadline, a wake edge or ctx cancellation.
func (c *RealClock) SleepUntil(ctx context.Context, deadline Timestamp, wake <-chan struct{}) {
	if c == nil {
		return
	}
	if deadline == Forever {
		select {
		case <-wake:
		case <-ctx.Done():
		}
		return
	}
	now := c.Now()
	if deadline <= now {
		return
	}
	delay := Elapsed(c, deadline-now)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-wake:
	case <-ctx.Done():
	}
}
