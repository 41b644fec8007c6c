package asyncrt

import (
	"context"
	"testing"
)

func TestReadyQueueRejectsDuplicatesAndWraps(t *testing.T) {
	var q readyQueue
	for id := TaskID(1); id <= 20; id++ {
		if !q.push(id) {
			t.Fatalf("push(%d) rejected", id)
		}
	}
	if q.push(7) {
		t.Fatal("duplicate push accepted")
	}
	for want := TaskID(1); want <= 10; want++ {
		if got, _ := q.pop(); got != want {
			t.Fatalf("pop = %d, want %d", got, want)
		}
	}
	for id := TaskID(21); id <= 30; id++ {
		q.push(id)
	}
	if !q.push(1) {
		t.Fatal("re-push of popped id rejected")
	}
	snap := q.snapshot()
	if len(snap) != q.len() || snap[0] != 11 || snap[len(snap)-1] != 1 {
		t.Fatalf("snapshot = %v", snap)
	}
	if q.contains(5) || !q.contains(25) {
		t.Fatal("membership set out of sync with ring")
	}
}

func TestArenaReusesSlots(t *testing.T) {
	exec, _, _ := newTestExecutor(WakeBusyPoll, 1)
	for round := 0; round < 3; round++ {
		for i := 0; i < 100; i++ {
			exec.Spawn(Return(nil))
		}
		if err := exec.Run(context.Background()); err != nil {
			t.Fatalf("Run: %v", err)
		}
	}
	if got := len(exec.tasks.chunks); got != 2 {
		t.Fatalf("arena holds %d chunks, want 2", got)
	}
	if exec.Stats().Completed != 300 {
		t.Fatalf("completed = %d, want 300", exec.Stats().Completed)
	}
}

func TestArenaPointersStayPut(t *testing.T) {
	a := newTaskArena(0)
	first := a.alloc(1)
	for id := TaskID(2); id <= 200; id++ {
		a.alloc(id)
	}
	if a.get(1) != first {
		t.Fatal("task moved while the arena grew")
	}
	a.release(1)
	if a.get(1) != nil || a.len() != 199 {
		t.Fatalf("release left id 1 reachable or len = %d", a.len())
	}
}
