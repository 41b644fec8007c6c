package asyncrt

// readyQueue is a FIFO ring of task ids paired with a membership set, so a
// task is queued at most once no matter how often it is woken.
type readyQueue struct {
	buf  []TaskID
	head int
	n    int
	set  map[TaskID]struct{}
}

// push appends id and reports whether it was added.
func (q *readyQueue) push(id TaskID) bool {
	if q.set == nil {
		q.set = make(map[TaskID]struct{})
	}
	if _, ok := q.set[id]; ok {
		return false
	}
	if q.n == len(q.buf) {
		q.grow()
	}
	q.buf[(q.head+q.n)%len(q.buf)] = id
	q.n++
	q.set[id] = struct{}{}
	return true
}

func (q *readyQueue) pop() (TaskID, bool) {
	if q.n == 0 {
		return 0, false
	}
	id := q.buf[q.head]
	q.buf[q.head] = 0
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	delete(q.set, id)
	return id, true
}

func (q *readyQueue) grow() {
	size := len(q.buf) * 2
	if size == 0 {
		size = 16
	}
	buf := make([]TaskID, size)
	for i := 0; i < q.n; i++ {
		buf[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf = buf
	q.head = 0
}

func (q *readyQueue) len() int {
	return q.n
}

func (q *readyQueue) contains(id TaskID) bool {
	_, ok := q.set[id]
	return ok
}

// snapshot returns queued ids from head to tail.
func (q *readyQueue) snapshot() []TaskID {
	out := make([]TaskID, q.n)
	for i := 0; i < q.n; i++ {
		out[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	return out
}

func (q *readyQueue) reset() {
	q.buf = nil
	q.head = 0
	q.n = 0
	q.set = nil
}
