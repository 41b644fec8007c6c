package trace

import (
	"sync/atomic"
	"time"
)

var (
	globalSeq   uint64
	globalSpans uint64
)

// NextSeq returns a monotonically increasing sequence number.
func NextSeq() uint64 {
	return atomic.AddUint64(&globalSeq, 1)
}

// NextSpanID returns a unique span ID.
func NextSpanID() uint64 {
	return atomic.AddUint64(&globalSpans, 1)
}

// Span brackets a kernel phase with begin and end events. Both events carry
// the kernel clock reading from tick, so spans line up with task events.
type Span struct {
	tracer  Tracer
	tick    func() uint64
	id      uint64
	parent  uint64
	scope   Scope
	name    string
	started time.Time
	extra   map[string]string
}

// Begin opens a span under parent (0 for a root span). tick may be nil
// while the kernel clock is not up yet.
func Begin(t Tracer, scope Scope, name string, parent uint64, tick func() uint64) *Span {
	if t == nil || !t.Enabled() || !t.Level().ShouldEmit(scope) {
		return &Span{tracer: Nop}
	}
	s := &Span{
		tracer:  t,
		tick:    tick,
		id:      NextSpanID(),
		parent:  parent,
		scope:   scope,
		name:    name,
		started: time.Now(),
	}
	s.emit(KindSpanBegin, "", nil)
	return s
}

// Child opens a nested span in the same scope.
func (s *Span) Child(name string) *Span {
	if s == nil || s.id == 0 {
		return &Span{tracer: Nop}
	}
	return Begin(s.tracer, s.scope, name, s.id, s.tick)
}

// Annotate attaches a key-value pair to the end event.
func (s *Span) Annotate(key, value string) *Span {
	if s == nil || s.id == 0 {
		return s
	}
	if s.extra == nil {
		s.extra = make(map[string]string)
	}
	s.extra[key] = value
	return s
}

// End emits the end event and returns the wall-clock duration of the span.
func (s *Span) End(detail string) time.Duration {
	if s == nil || s.id == 0 {
		return 0
	}
	s.emit(KindSpanEnd, detail, s.extra)
	return time.Since(s.started)
}

// ID returns the span ID, zero for a disabled span.
func (s *Span) ID() uint64 {
	if s == nil {
		return 0
	}
	return s.id
}

func (s *Span) emit(kind Kind, detail string, extra map[string]string) {
	var tick uint64
	if s.tick != nil {
		tick = s.tick()
	}
	s.tracer.Emit(&Event{
		Time:     time.Now(),
		Tick:     tick,
		Kind:     kind,
		Scope:    s.scope,
		SpanID:   s.id,
		ParentID: s.parent,
		Name:     s.name,
		Detail:   detail,
		Extra:    extra,
	})
}
