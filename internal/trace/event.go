package trace

import "time"

// Kind represents the type of trace event.
type Kind uint8

const (
	// KindSpanBegin marks the start of a logical operation.
	KindSpanBegin Kind = iota + 1
	// KindSpanEnd marks the end of a logical operation.
	KindSpanEnd
	// KindPoint represents an instant event.
	KindPoint
	KindHeartbeat // periodic liveness signal
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindSpanBegin:
		return "begin"
	case KindSpanEnd:
		return "end"
	case KindPoint:
		return "point"
	case KindHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// Scope indicates the granularity level of the event.
// Lower numeric values represent higher-level/coarser events.
type Scope uint8

const (
	// ScopeKernel covers boot phases and kernel panics.
	ScopeKernel Scope = iota + 1
	// ScopeExecutor covers run loop state changes and idle halts.
	ScopeExecutor
	// ScopeTask covers task spawn and retirement.
	ScopeTask
	ScopePoll // individual polls and wakes (most detailed)
)

// String returns the string representation of Scope.
func (s Scope) String() string {
	switch s {
	case ScopeKernel:
		return "kernel"
	case ScopeExecutor:
		return "executor"
	case ScopeTask:
		return "task"
	case ScopePoll:
		return "poll"
	default:
		return "unknown"
	}
}

// Event represents a single trace event.
type Event struct {
	Time     time.Time         `msgpack:"time"`             // wall-clock timestamp
	Tick     uint64            `msgpack:"tick"`             // kernel clock timestamp
	Seq      uint64            `msgpack:"seq"`              // global sequence number (monotonic)
	Kind     Kind              `msgpack:"kind"`             // event kind
	Scope    Scope             `msgpack:"scope"`            // granularity level
	SpanID   uint64            `msgpack:"span,omitempty"`   // unique span identifier
	ParentID uint64            `msgpack:"parent,omitempty"` // parent span (0 if root)
	TaskID   uint64            `msgpack:"task,omitempty"`   // task the event concerns (0 if none)
	Name     string            `msgpack:"name"`             // e.g. "spawn", "poll", "boot"
	Detail   string            `msgpack:"detail,omitempty"` // optional detail message
	Extra    map[string]string `msgpack:"extra,omitempty"`  // extensible key-value pairs
}

// Point builds an instant event.
func Point(scope Scope, name string, task uint64, tick uint64, detail string) *Event {
	return &Event{
		Time:   time.Now(),
		Tick:   tick,
		Kind:   KindPoint,
		Scope:  scope,
		TaskID: task,
		Name:   name,
		Detail: detail,
	}
}
