package asyncrt

import "container/heap"

// timerEntry is one armed deadline. Entries are never removed eagerly: an
// entry whose task was woken some other way, re-armed, or finished is
// dropped when it reaches the top of the heap.
type timerEntry struct {
	deadline Timestamp
	seq      uint64
	id       TaskID
}

type timerHeap []timerEntry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline == h[j].deadline {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline < h[j].deadline
}

func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) {
	entry, ok := x.(timerEntry)
	if !ok {
		return
	}
	*h = append(*h, entry)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	if n == 0 {
		return timerEntry{}
	}
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// armTimer records a deadline for a task suspended on time. Caller holds
// the executor lock.
func (e *Executor) armTimer(t *Task) {
	e.timerSeq++
	heap.Push(&e.timers, timerEntry{deadline: t.deadline, seq: e.timerSeq, id: t.id})
}

func (e *Executor) timerLive(entry timerEntry) bool {
	t := e.tasks.get(entry.id)
	return t != nil && t.status == TaskSuspended && t.timeBlocked && t.deadline == entry.deadline
}

// fireTimers readies every task whose deadline is at or before now, in
// deadline order. Caller holds the executor lock.
func (e *Executor) fireTimers(now Timestamp) int {
	fired := 0
	for len(e.timers) > 0 {
		top := e.timers[0]
		if !e.timerLive(top) {
			heap.Pop(&e.timers)
			continue
		}
		if top.deadline > now {
			break
		}
		heap.Pop(&e.timers)
		t := e.tasks.get(top.id)
		t.status = TaskReady
		t.timeBlocked = false
		e.ready.push(t.id)
		fired++
	}
	return fired
}

// nextDeadline returns the earliest live deadline, or Forever. Caller holds
// the executor lock.
func (e *Executor) nextDeadline() Timestamp {
	for len(e.timers) > 0 {
		top := e.timers[0]
		if e.timerLive(top) {
			return top.deadline
		}
		heap.Pop(&e.timers)
	}
	return Forever
}
