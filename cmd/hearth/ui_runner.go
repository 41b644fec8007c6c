package main

import (
	"bytes"
	"io"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"hearth/internal/trace"
	"hearth/internal/ui"
)

// boardFeed carries executor events to the task board. The tracer side may
// keep emitting after the run ends, so the board reads from a separate
// channel that Stop closes.
type boardFeed struct {
	events chan trace.Event
	board  chan trace.Event
	stop   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

func newBoardFeed() *boardFeed {
	f := &boardFeed{
		events: make(chan trace.Event, 256),
		board:  make(chan trace.Event, 256),
		stop:   make(chan struct{}),
	}
	f.wg.Add(1)
	go f.pump()
	return f
}

// Tracer returns a tracer that forwards every scope to the board.
func (f *boardFeed) Tracer() trace.Tracer {
	return trace.NewChannelTracer(f.events, trace.LevelDebug)
}

func (f *boardFeed) pump() {
	defer f.wg.Done()
	defer close(f.board)
	for {
		select {
		case ev := <-f.events:
			select {
			case f.board <- ev:
			case <-f.stop:
				return
			}
		case <-f.stop:
			f.drain()
			return
		}
	}
}

func (f *boardFeed) drain() {
	for {
		select {
		case ev := <-f.events:
			select {
			case f.board <- ev:
			default:
				return
			}
		default:
			return
		}
	}
}

// Stop ends the feed; the board quits once it drained what was sent.
func (f *boardFeed) Stop() {
	f.once.Do(func() { close(f.stop) })
	f.wg.Wait()
}

// runBoard shows the live task board until the feed stops or the user quits.
// quit is called when the user leaves the board before the run finished.
func runBoard(title string, feed *boardFeed, quit func()) error {
	model := ui.NewBoardModel(title, feed.board)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	final, err := program.Run()
	if done, ok := final.(interface{ Done() bool }); !ok || !done.Done() {
		quit()
	}
	return err
}

// logBuffer holds kernel log output while the board owns the terminal.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) WriteTo(w io.Writer) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.WriteTo(w)
}
