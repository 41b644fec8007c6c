package hpet

import (
	"context"
	"testing"
	"time"

	"hearth/internal/asyncrt"
)

func TestMainCounterIsMonotonic(t *testing.T) {
	c, err := Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	prev := c.MainCounter()
	for i := 0; i < 1000; i++ {
		cur := c.MainCounter()
		if cur < prev {
			t.Fatalf("counter went backwards: %d after %d", cur, prev)
		}
		prev = cur
	}
}

func TestClockSleepsUntilDeadline(t *testing.T) {
	c, err := Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	clock := c.Clock()
	deadline := clock.Now().Add(asyncrt.Ticks(clock, 2*time.Millisecond))
	clock.SleepUntil(context.Background(), deadline, nil)
	if now := clock.Now(); now < deadline {
		t.Fatalf("woke at %d before deadline %d", now, deadline)
	}
}
