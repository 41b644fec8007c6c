package asyncrt

// TaskID identifies a spawned task. Identifiers are never reused within one
// executor; zero is never a valid task.
type TaskID uint64

// TaskStatus describes task scheduling state.
type TaskStatus uint8

const (
	TaskReady TaskStatus = iota
	TaskRunning
	TaskSuspended
	TaskDone
)

// String returns the lower-case status name.
func (s TaskStatus) String() string {
	switch s {
	case TaskReady:
		return "ready"
	case TaskRunning:
		return "running"
	case TaskSuspended:
		return "suspended"
	case TaskDone:
		return "done"
	default:
		return "unknown"
	}
}

// Task stores executor-visible task state. Tasks live in fixed arena slots
// so that a pointer taken before a poll stays valid across it.
type Task struct {
	id          TaskID
	name        string
	fut         Future
	status      TaskStatus
	notified    bool
	timeBlocked bool
	deadline    Timestamp
	polls       uint64
	slot        int
}

// TaskHandle is returned by Spawn.
type TaskHandle struct {
	ID   TaskID
	Name string
}

// TaskInfo is a point-in-time copy of a live task.
type TaskInfo struct {
	ID          TaskID     `json:"id" msgpack:"id"`
	Name        string     `json:"name" msgpack:"name"`
	Status      TaskStatus `json:"-" msgpack:"status"`
	StatusName  string     `json:"status" msgpack:"-"`
	Polls       uint64     `json:"polls" msgpack:"polls"`
	TimeBlocked bool       `json:"time_blocked" msgpack:"time_blocked"`
	Deadline    Timestamp  `json:"deadline,omitempty" msgpack:"deadline,omitempty"`
}

func (t *Task) info() TaskInfo {
	info := TaskInfo{
		ID:          t.id,
		Name:        t.name,
		Status:      t.status,
		StatusName:  t.status.String(),
		Polls:       t.polls,
		TimeBlocked: t.timeBlocked,
	}
	if t.timeBlocked {
		info.Deadline = t.deadline
	}
	return info
}
