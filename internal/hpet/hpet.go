// Package hpet provides the host stand-in for the high precision event
// timer: a free-running monotonic counter with a fixed period, exposed as
// an executor clock.
package hpet

import (
	"time"

	"hearth/internal/asyncrt"
)

// Period is the counter tick length.
const Period = time.Nanosecond

// Counter reads the main counter. The value starts near zero when the
// process boots and never goes backwards.
type Counter struct {
	base uint64
}

// Open samples the current counter value as the boot base.
func Open() (*Counter, error) {
	base, err := readRaw()
	if err != nil {
		return nil, err
	}
	return &Counter{base: base}, nil
}

// MainCounter returns ticks since Open.
func (c *Counter) MainCounter() uint64 {
	v, err := readRaw()
	if err != nil || v < c.base {
		return 0
	}
	return v - c.base
}

// Clock wraps the counter as an executor clock.
func (c *Counter) Clock() *asyncrt.RealClock {
	return &asyncrt.RealClock{NowFunc: c.MainCounter, Tick: Period}
}
