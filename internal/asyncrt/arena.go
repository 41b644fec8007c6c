package asyncrt

import (
	"slices"
)

const arenaChunk = 64

// taskArena keeps tasks at fixed locations. Storage grows one chunk at a
// time and is never moved; freed slots are recycled.
type taskArena struct {
	chunks []*[arenaChunk]Task
	free   []int
	index  map[TaskID]int
	limit  int
}

func newTaskArena(limit int) *taskArena {
	return &taskArena{
		index: make(map[TaskID]int),
		limit: limit,
	}
}

// alloc places a new task. It returns nil when the table is at its limit.
func (a *taskArena) alloc(id TaskID) *Task {
	if a.limit > 0 && len(a.index) >= a.limit {
		return nil
	}
	if len(a.free) == 0 {
		base := len(a.chunks) * arenaChunk
		a.chunks = append(a.chunks, new([arenaChunk]Task))
		for i := arenaChunk - 1; i >= 0; i-- {
			a.free = append(a.free, base+i)
		}
	}
	slot := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]
	t := a.at(slot)
	*t = Task{id: id, slot: slot}
	a.index[id] = slot
	return t
}

func (a *taskArena) at(slot int) *Task {
	return &a.chunks[slot/arenaChunk][slot%arenaChunk]
}

func (a *taskArena) get(id TaskID) *Task {
	slot, ok := a.index[id]
	if !ok {
		return nil
	}
	return a.at(slot)
}

func (a *taskArena) release(id TaskID) {
	slot, ok := a.index[id]
	if !ok {
		return
	}
	delete(a.index, id)
	*a.at(slot) = Task{}
	a.free = append(a.free, slot)
}

func (a *taskArena) len() int {
	return len(a.index)
}

// ids returns live task ids in ascending order.
func (a *taskArena) ids() []TaskID {
	out := make([]TaskID, 0, len(a.index))
	for id := range a.index {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
