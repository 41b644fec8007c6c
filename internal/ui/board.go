// Package ui renders a live task board for a running kernel.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"hearth/internal/trace"
)

type boardModel struct {
	title    string
	events   <-chan trace.Event
	spinner  spinner.Model
	prog     progress.Model
	items    []taskItem
	index    map[uint64]int
	halts    int
	lastTick uint64
	width    int
	done     bool
}

type taskItem struct {
	id     uint64
	name   string
	status string
	polls  int
}

type eventMsg trace.Event
type doneMsg struct{}

// NewBoardModel returns a Bubble Tea model that renders one row per task
// from executor trace events. The board quits when events is closed.
func NewBoardModel(title string, events <-chan trace.Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	return &boardModel{
		title:   title,
		events:  events,
		spinner: sp,
		prog:    prog,
		index:   make(map[uint64]int),
		width:   80,
	}
}

func (m *boardModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *boardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		ev := trace.Event(msg)
		cmd := m.applyEvent(&ev)
		return m, tea.Batch(cmd, m.listenForEvent())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
		return m, nil
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.prog.Width = msg.Width - 4
		}
		return m, nil
	case progress.FrameMsg:
		progressModel, cmd := m.prog.Update(msg)
		m.prog = progressModel.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *boardModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	header := fmt.Sprintf("%s (tick %d, %d halts)", m.title, m.lastTick, m.halts)
	if m.done {
		header = "done: " + header
	} else {
		header = fmt.Sprintf("%s %s", m.spinner.View(), header)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	statusWidth := 10
	nameWidth := m.width - statusWidth - 20
	if nameWidth < 20 {
		nameWidth = 20
	}
	for _, item := range m.items {
		statusStyled := styleStatus(item.status).Render(fmt.Sprintf("%10s", item.status))
		fmt.Fprintf(&b, "  %s %4d  %-*s %6d polls\n", statusStyled, item.id, nameWidth, truncate(item.name, nameWidth), item.polls)
	}

	b.WriteString("\n")
	if m.done {
		b.WriteString(m.prog.ViewAs(1.0))
	} else {
		b.WriteString(m.prog.View())
	}
	b.WriteString("\n")
	return b.String()
}

// Done reports whether the event stream ended.
func (m *boardModel) Done() bool { return m.done }

func (m *boardModel) listenForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *boardModel) applyEvent(ev *trace.Event) tea.Cmd {
	if ev.Tick > m.lastTick {
		m.lastTick = ev.Tick
	}
	if ev.Scope == trace.ScopeExecutor {
		if ev.Name == "halt" {
			m.halts++
			for i := range m.items {
				if !finished(m.items[i].status) {
					m.items[i].status = "waiting"
				}
			}
		}
		return nil
	}
	if ev.TaskID == 0 {
		return nil
	}
	idx, ok := m.index[ev.TaskID]
	if !ok {
		if ev.Name != "spawn" {
			return nil
		}
		m.items = append(m.items, taskItem{id: ev.TaskID, name: ev.Detail, status: "ready"})
		idx = len(m.items) - 1
		m.index[ev.TaskID] = idx
	}
	item := &m.items[idx]
	switch ev.Name {
	case "poll":
		item.status = "polling"
		item.polls++
	case "wake":
		item.status = "woken"
	case "complete":
		item.status = "done"
	case "fail":
		item.status = "failed"
	}
	return m.prog.SetPercent(m.completion())
}

func (m *boardModel) completion() float64 {
	if len(m.items) == 0 {
		return 0
	}
	n := 0
	for _, item := range m.items {
		if finished(item.status) {
			n++
		}
	}
	return float64(n) / float64(len(m.items))
}

func finished(status string) bool {
	return status == "done" || status == "failed"
}

func styleStatus(status string) lipgloss.Style {
	switch status {
	case "done":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case "failed":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case "polling", "woken":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	}
}

func truncate(value string, width int) string {
	if width <= 0 {
		return value
	}
	if runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width-3, "...")
}
