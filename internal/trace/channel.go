package trace

// ChannelTracer forwards events to a channel for live views. Events are
// dropped when the channel is full so the executor never blocks on a viewer.
type ChannelTracer struct {
	ch    chan<- Event
	level Level
}

// NewChannelTracer creates a ChannelTracer.
func NewChannelTracer(ch chan<- Event, level Level) *ChannelTracer {
	return &ChannelTracer{ch: ch, level: level}
}

// Emit forwards the event without blocking.
func (t *ChannelTracer) Emit(ev *Event) {
	if !t.level.ShouldEmit(ev.Scope) {
		return
	}
	select {
	case t.ch <- *ev:
	default:
	}
}

func (t *ChannelTracer) Flush() error { return nil }

func (t *ChannelTracer) Close() error { return nil }

// Level returns the current tracing level.
func (t *ChannelTracer) Level() Level { return t.level }

// Enabled returns true if tracing is active.
func (t *ChannelTracer) Enabled() bool { return t.level > LevelOff }
