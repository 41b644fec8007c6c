package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"hearth/internal/trace"
)

var replayCmd = &cobra.Command{
	Use:   "replay [flags] <file.trace>",
	Short: "Summarize a msgpack trace recording",
	Long:  `Read a recording written with --trace=<file>.trace and print one row per task`,
	Args:  cobra.ExactArgs(1),
	RunE:  runReplay,
}

func init() {
	replayCmd.Flags().Bool("events", false, "print every recorded event before the summary")
}

// taskSummary aggregates the recorded events of one task.
type taskSummary struct {
	ID       uint64
	Name     string
	Polls    uint64
	Wakes    uint64
	Spawned  uint64
	Finished uint64
	Outcome  string
	Detail   string
	ended    bool
}

type replaySummary struct {
	Tasks  []taskSummary
	Halts  uint64
	Events int
	First  uint64
	Last   uint64
}

func runReplay(cmd *cobra.Command, args []string) error {
	showEvents, err := cmd.Flags().GetBool("events")
	if err != nil {
		return fmt.Errorf("failed to get events flag: %w", err)
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	hdr, events, err := trace.ReadRecording(f)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	out := cmd.OutOrStdout()
	if showEvents {
		for i := range events {
			if _, err := out.Write(trace.FormatEvent(&events[i], trace.FormatText)); err != nil {
				return err
			}
		}
		fmt.Fprintln(out)
	}
	renderReplay(out, hdr, summarizeRecording(events))
	return nil
}

func summarizeRecording(events []trace.Event) replaySummary {
	var sum replaySummary
	byID := make(map[uint64]*taskSummary)
	sum.Events = len(events)
	for i, ev := range events {
		if i == 0 || ev.Tick < sum.First {
			sum.First = ev.Tick
		}
		if ev.Tick > sum.Last {
			sum.Last = ev.Tick
		}
		if ev.Scope == trace.ScopeExecutor && ev.Name == "halt" {
			sum.Halts++
			continue
		}
		if ev.TaskID == 0 {
			continue
		}
		ts, ok := byID[ev.TaskID]
		if !ok {
			ts = &taskSummary{ID: ev.TaskID, Outcome: "running", Spawned: ev.Tick}
			byID[ev.TaskID] = ts
		}
		switch ev.Name {
		case "spawn":
			ts.Name = ev.Detail
			ts.Spawned = ev.Tick
		case "poll":
			ts.Polls++
		case "wake":
			ts.Wakes++
		case "complete":
			ts.Outcome = "done"
			ts.Finished = ev.Tick
			ts.ended = true
		case "fail":
			ts.Outcome = "failed"
			ts.Detail = ev.Detail
			ts.Finished = ev.Tick
			ts.ended = true
		}
	}
	for _, ts := range byID {
		sum.Tasks = append(sum.Tasks, *ts)
	}
	sort.Slice(sum.Tasks, func(i, j int) bool { return sum.Tasks[i].ID < sum.Tasks[j].ID })
	return sum
}

func renderReplay(out io.Writer, hdr trace.RecordingHeader, sum replaySummary) {
	tick := time.Duration(hdr.TickNanos)
	span := func(from, to uint64) string {
		if tick <= 0 || to < from {
			return "-"
		}
		return (time.Duration(to-from) * tick).String()
	}

	titleStyle := lipgloss.NewStyle().Bold(true)
	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("boot %s (hearth %s)", hdr.BootID, hdr.Version)))
	fmt.Fprintf(out, "%s events over %s, %s idle halts\n\n",
		humanize.Comma(int64(sum.Events)), span(sum.First, sum.Last), humanize.Comma(int64(sum.Halts)))

	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "TASK", "POLLS", "WAKES", "LIFETIME", "OUTCOME").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == 0 {
				return header
			}
			return cell
		})
	for _, ts := range sum.Tasks {
		lifetime := "-"
		if ts.ended {
			lifetime = span(ts.Spawned, ts.Finished)
		}
		outcome := lipgloss.NewStyle().Foreground(outcomeColor(ts.Outcome)).Render(ts.Outcome)
		if ts.Detail != "" {
			outcome += ": " + ts.Detail
		}
		t.Row(
			strconv.FormatUint(ts.ID, 10),
			ts.Name,
			humanize.Comma(int64(ts.Polls)),
			humanize.Comma(int64(ts.Wakes)),
			lifetime,
			outcome,
		)
	}
	fmt.Fprintln(out, t.Render())
}

func outcomeColor(outcome string) lipgloss.Color {
	switch outcome {
	case "done":
		return lipgloss.Color("2")
	case "failed":
		return lipgloss.Color("1")
	default:
		return lipgloss.Color("3")
	}
}
