// Package klog is the kernel log sink. It is the only channel through which
// the scheduler reports task failures and fatal conditions.
package klog

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Level is a log severity.
type Level uint8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the lower-case level name.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseLevel converts a level name to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("invalid log level: %q (expected: debug|info|warn|error)", s)
	}
}

// Sink receives kernel log records. Implementations must not block on the
// executor and must be safe to call from interrupt context.
type Sink interface {
	Log(level Level, msg string)
}

// Logger writes one line per record: an optional stamp, the level tag and
// the message.
type Logger struct {
	mu    sync.Mutex
	w     io.Writer
	min   Level
	stamp func() string
	tags  [4]*color.Color
}

// Option configures a Logger.
type Option func(*Logger)

// WithLevel drops records below min.
func WithLevel(min Level) Option {
	return func(l *Logger) { l.min = min }
}

// WithColor forces colored level tags on or off.
func WithColor(on bool) Option {
	return func(l *Logger) {
		for _, c := range l.tags {
			if on {
				c.EnableColor()
			} else {
				c.DisableColor()
			}
		}
	}
}

// WithStamp prefixes every record with the result of fn, typically the
// current clock timestamp.
func WithStamp(fn func() string) Option {
	return func(l *Logger) { l.stamp = fn }
}

// New creates a logger writing to w.
func New(w io.Writer, opts ...Option) *Logger {
	l := &Logger{
		w:   w,
		min: LevelInfo,
		tags: [4]*color.Color{
			LevelDebug: color.New(color.FgHiBlack),
			LevelInfo:  color.New(color.FgGreen, color.Bold),
			LevelWarn:  color.New(color.FgYellow, color.Bold),
			LevelError: color.New(color.FgRed, color.Bold),
		},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Enabled reports whether records at level are written.
func (l *Logger) Enabled(level Level) bool {
	return l != nil && level >= l.min
}

// Log implements Sink.
func (l *Logger) Log(level Level, msg string) {
	if !l.Enabled(level) || l.w == nil {
		return
	}
	var sb strings.Builder
	if l.stamp != nil {
		sb.WriteString(l.stamp())
		sb.WriteByte(' ')
	}
	tag := "[" + strings.ToUpper(level.String()) + "]"
	if int(level) < len(l.tags) {
		tag = l.tags[level].Sprint(tag)
	}
	sb.WriteString(tag)
	sb.WriteByte(' ')
	sb.WriteString(msg)
	sb.WriteByte('\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	// Logging must never fail the caller.
	_, _ = io.WriteString(l.w, sb.String()) //nolint:errcheck
}

// Discard drops every record.
var Discard Sink = discard{}

type discard struct{}

func (discard) Log(Level, string) {}

// Entry is one captured record.
type Entry struct {
	Level Level
	Msg   string
}

// Capture records entries in memory.
type Capture struct {
	mu      sync.Mutex
	entries []Entry
}

// Log implements Sink.
func (c *Capture) Log(level Level, msg string) {
	c.mu.Lock()
	c.entries = append(c.entries, Entry{Level: level, Msg: msg})
	c.mu.Unlock()
}

// Entries returns a copy of the captured records.
func (c *Capture) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Entry(nil), c.entries...)
}

// Filter returns captured records at exactly level.
func (c *Capture) Filter(level Level) []Entry {
	var out []Entry
	for _, e := range c.Entries() {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// Tee fans records out to several sinks.
func Tee(sinks ...Sink) Sink {
	return tee(sinks)
}

type tee []Sink

func (t tee) Log(level Level, msg string) {
	for _, s := range t {
		if s != nil {
			s.Log(level, msg)
		}
	}
}
