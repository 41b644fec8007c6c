package testkit

import (
	"context"
	"testing"
	"time"

	"hearth/internal/asyncrt"
)

func TestSchedulerInvariantsHoldUnderLoad(t *testing.T) {
	for _, mode := range []asyncrt.WakeMode{asyncrt.WakeBusyPoll, asyncrt.WakeTimer} {
		clock := asyncrt.NewVirtualClock(time.Millisecond, 1)
		exec := asyncrt.NewExecutor(asyncrt.Config{Clock: clock, WakeMode: mode})

		var sig asyncrt.Signal
		for i := 0; i < 8; i++ {
			d := time.Duration(i+1) * 3 * time.Millisecond
			exec.Spawn(asyncrt.Seq(exec.Sleep(d), asyncrt.Yield(), exec.Sleep(d)))
		}
		exec.Spawn(sig.Wait())
		exec.Spawn(asyncrt.Seq(exec.Sleep(10*time.Millisecond), asyncrt.Do(func() error {
			sig.Notify()
			sig.Notify()
			return nil
		})))

		var failure error
		exec.Spawn(Watch(exec, 200, &failure))

		if err := exec.Run(context.Background()); err != nil {
			t.Fatalf("%s: Run: %v", mode, err)
		}
		if failure != nil {
			t.Fatalf("%s: invariant violated: %v", mode, failure)
		}
		if err := CheckScheduler(exec); err != nil {
			t.Fatalf("%s: after drain: %v", mode, err)
		}
	}
}

func TestCheckSchedulerOnFreshExecutor(t *testing.T) {
	exec := asyncrt.NewExecutor(asyncrt.Config{})
	exec.Spawn(asyncrt.Return(nil))
	exec.Spawn(asyncrt.Return(nil))
	if err := CheckScheduler(exec); err != nil {
		t.Fatalf("CheckScheduler: %v", err)
	}
}
