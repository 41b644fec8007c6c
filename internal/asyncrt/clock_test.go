package asyncrt

import (
	"context"
	"testing"
	"time"
)

func TestTicksRoundsUp(t *testing.T) {
	c := NewVirtualClock(time.Millisecond, 0)
	tests := []struct {
		d    time.Duration
		want Timestamp
	}{
		{0, 0},
		{-time.Second, 0},
		{time.Millisecond, 1},
		{1500 * time.Microsecond, 2},
		{time.Nanosecond, 1},
		{2 * time.Second, 2000},
	}
	for _, tt := range tests {
		if got := Ticks(c, tt.d); got != tt.want {
			t.Fatalf("Ticks(%s) = %d, want %d", tt.d, got, tt.want)
		}
	}
}

func TestElapsedSaturates(t *testing.T) {
	c := NewVirtualClock(time.Millisecond, 0)
	if got := Elapsed(c, 250); got != 250*time.Millisecond {
		t.Fatalf("Elapsed(250) = %s", got)
	}
	if got := Elapsed(c, Forever); got != time.Duration(1<<63-1) {
		t.Fatalf("Elapsed(Forever) = %d, want max duration", got)
	}
}

func TestTimestampArithmeticSaturates(t *testing.T) {
	if got := Forever.Add(1); got != Forever {
		t.Fatalf("Forever+1 = %d", got)
	}
	if got := (Forever - 5).Add(10); got != Forever {
		t.Fatalf("near-max add = %d, want Forever", got)
	}
	if got := Timestamp(5).Sub(7); got != 0 {
		t.Fatalf("5-7 = %d, want 0", got)
	}
}

func TestTimeoutNearEndOfTimeNeverExpires(t *testing.T) {
	c := NewVirtualClock(time.Millisecond, 0)
	c.Set(Forever - 10)
	tm := NewTimeoutTicks(c, 100)
	if tm.Deadline() != Forever {
		t.Fatalf("deadline = %d, want Forever", tm.Deadline())
	}
	c.Advance(9)
	if tm.Expired() {
		t.Fatal("saturated timeout expired")
	}
}

func TestVirtualClockStepsOnRead(t *testing.T) {
	c := NewVirtualClock(time.Millisecond, 3)
	if got := c.Now(); got != 0 {
		t.Fatalf("first read = %d, want 0", got)
	}
	if got := c.Now(); got != 3 {
		t.Fatalf("second read = %d, want 3", got)
	}
	c.Set(1)
	if got := c.Peek(); got != 6 {
		t.Fatalf("clock moved backwards to %d", got)
	}
}

func TestVirtualClockSleepHonoursPendingWake(t *testing.T) {
	c := NewVirtualClock(time.Millisecond, 0)
	wake := make(chan struct{}, 1)
	wake <- struct{}{}

	c.SleepUntil(context.Background(), 500, wake)
	if c.Peek() != 0 {
		t.Fatalf("clock jumped to %d despite pending wake", c.Peek())
	}
	c.SleepUntil(context.Background(), 500, wake)
	if c.Peek() != 500 {
		t.Fatalf("clock = %d, want 500", c.Peek())
	}
}

func TestRealClockSleepReturnsOnWake(t *testing.T) {
	start := time.Now()
	c := &RealClock{
		NowFunc: func() uint64 { return uint64(time.Since(start)) },
		Tick:    time.Nanosecond,
	}
	wake := make(chan struct{}, 1)
	go func() {
		time.Sleep(5 * time.Millisecond)
		wake <- struct{}{}
	}()

	c.SleepUntil(context.Background(), Forever, wake)
	if time.Since(start) > 2*time.Second {
		t.Fatal("halt did not return on wake")
	}
}

func TestRealClockSleepReachesDeadline(t *testing.T) {
	start := time.Now()
	c := &RealClock{
		NowFunc: func() uint64 { return uint64(time.Since(start).Microseconds()) },
		Tick:    time.Microsecond,
	}
	deadline := c.Now().Add(Ticks(c, 5*time.Millisecond))
	c.SleepUntil(context.Background(), deadline, nil)
	if c.Now() < deadline {
		t.Fatalf("woke at %d before deadline %d", c.Now(), deadline)
	}
}

func TestVirtualClockStepSaturates(t *testing.T) {
	c := NewVirtualClock(time.Millisecond, 10)
	c.Set(Forever - 3)
	if got := c.Now(); got != Forever-3 {
		t.Fatalf("read = %d, want Forever-3", got)
	}
	for i := 0; i < 3; i++ {
		if got := c.Now(); got != Forever {
			t.Fatalf("read %d = %d, want Forever", i, got)
		}
	}
}
