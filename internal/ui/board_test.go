package ui

import (
	"strings"
	"testing"

	"hearth/internal/trace"
)

func feed(m *boardModel, evs ...*trace.Event) {
	for _, ev := range evs {
		m.applyEvent(ev)
	}
}

func TestBoardTracksTaskLifecycle(t *testing.T) {
	m := NewBoardModel("hearth", make(chan trace.Event)).(*boardModel)
	feed(m,
		trace.Point(trace.ScopeTask, "spawn", 1, 0, "timestamp-1s"),
		trace.Point(trace.ScopeTask, "spawn", 2, 0, "timestamp-2s"),
		trace.Point(trace.ScopePoll, "poll", 1, 1, ""),
		trace.Point(trace.ScopeExecutor, "halt", 0, 2, "until tick 1000"),
		trace.Point(trace.ScopePoll, "poll", 1, 1000, ""),
		trace.Point(trace.ScopeTask, "complete", 1, 1000, "timestamp-1s"),
		trace.Point(trace.ScopeTask, "fail", 2, 1001, "boom"),
	)

	if len(m.items) != 2 {
		t.Fatalf("items = %+v", m.items)
	}
	if m.items[0].status != "done" || m.items[0].polls != 2 {
		t.Fatalf("task 1 = %+v", m.items[0])
	}
	if m.items[1].status != "failed" {
		t.Fatalf("task 2 = %+v", m.items[1])
	}
	if m.halts != 1 || m.lastTick != 1001 || m.completion() != 1 {
		t.Fatalf("halts=%d tick=%d completion=%f", m.halts, m.lastTick, m.completion())
	}
}

func TestBoardIgnoresUnknownTasks(t *testing.T) {
	m := NewBoardModel("hearth", make(chan trace.Event)).(*boardModel)
	feed(m, trace.Point(trace.ScopePoll, "poll", 9, 0, ""))
	if len(m.items) != 0 {
		t.Fatalf("poll for unseen task created a row: %+v", m.items)
	}
}

func TestBoardViewListsTasks(t *testing.T) {
	m := NewBoardModel("hearth", make(chan trace.Event)).(*boardModel)
	feed(m, trace.Point(trace.ScopeTask, "spawn", 1, 0, "serial-monitor"))
	m.done = true
	view := m.View()
	if !strings.Contains(view, "serial-monitor") || !strings.Contains(view, "done: hearth") {
		t.Fatalf("view = %q", view)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("timestamp-logger", 10); got != "time..." {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("abc", 10); got != "abc" {
		t.Fatalf("truncate = %q", got)
	}
}
