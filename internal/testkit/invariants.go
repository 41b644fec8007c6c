// Package testkit holds checks shared by scheduler tests.
package testkit

import (
	"fmt"

	"hearth/internal/asyncrt"
)

// CheckScheduler verifies the ready-queue invariants of a quiescent or
// mid-poll executor:
// 1) no task id appears twice in the ready queue
// 2) every queued id is a live task with status ready
// 3) every live task with status ready is queued
// 4) at most one task is running
func CheckScheduler(e *asyncrt.Executor) error {
	if e == nil {
		return fmt.Errorf("nil executor")
	}
	ready := e.ReadyIDs()
	tasks := e.Snapshot()

	byID := make(map[asyncrt.TaskID]asyncrt.TaskInfo, len(tasks))
	running := 0
	for _, info := range tasks {
		byID[info.ID] = info
		if info.Status == asyncrt.TaskRunning {
			running++
		}
	}

	queued := make(map[asyncrt.TaskID]bool, len(ready))
	for pos, id := range ready {
		if queued[id] {
			return fmt.Errorf("task %d queued twice (second at position %d)", id, pos)
		}
		queued[id] = true
		info, ok := byID[id]
		if !ok {
			return fmt.Errorf("queued task %d is not live", id)
		}
		if info.Status != asyncrt.TaskReady {
			return fmt.Errorf("queued task %d has status %s", id, info.Status)
		}
	}

	for _, info := range tasks {
		if info.Status == asyncrt.TaskReady && !queued[info.ID] {
			return fmt.Errorf("ready task %d is missing from the queue", info.ID)
		}
	}
	if running > 1 {
		return fmt.Errorf("%d tasks running at once", running)
	}
	return nil
}

// Watch returns a future that runs CheckScheduler on every poll for n
// turns of the ready queue, recording the first violation in *failure.
func Watch(e *asyncrt.Executor, n int, failure *error) asyncrt.Future {
	return asyncrt.Loop(n, func(int) asyncrt.Future {
		return asyncrt.Seq(asyncrt.Do(func() error {
			if err := CheckScheduler(e); err != nil && *failure == nil {
				*failure = err
			}
			return nil
		}), asyncrt.Yield())
	})
}
