package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"hearth/internal/observ"
	"hearth/internal/trace"
)

func newTestRunCmd(t *testing.T) *cobra.Command {
	t.Helper()
	root := &cobra.Command{Use: "hearth"}
	root.PersistentFlags().String("color", "auto", "")
	root.PersistentFlags().Bool("quiet", false, "")
	cmd := &cobra.Command{Use: "run"}
	registerRunFlags(cmd)
	root.AddCommand(cmd)
	return cmd
}

func TestLoadRunConfigAppliesOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	cmd := newTestRunCmd(t)
	for flag, value := range map[string]string{
		"wake-mode": "timer",
		"clock":     "virtual",
		"serial":    "off",
	} {
		if err := cmd.Flags().Set(flag, value); err != nil {
			t.Fatalf("set %s: %v", flag, err)
		}
	}
	if err := cmd.Root().PersistentFlags().Set("quiet", "true"); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadRunConfig(cmd)
	if err != nil {
		t.Fatalf("loadRunConfig: %v", err)
	}
	if cfg.Executor.WakeMode != "timer" || cfg.Clock.Source != "virtual" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Serial.Enabled {
		t.Fatal("--serial=off left the console enabled")
	}
	if cfg.Log.Level != "warn" {
		t.Fatalf("quiet log level = %q", cfg.Log.Level)
	}
}

func TestLoadRunConfigRejectsBadWakeMode(t *testing.T) {
	t.Chdir(t.TempDir())
	cmd := newTestRunCmd(t)
	if err := cmd.Flags().Set("wake-mode", "spin"); err != nil {
		t.Fatal(err)
	}
	if _, err := loadRunConfig(cmd); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadRunConfigRejectsTaskTableBelowBootTasks(t *testing.T) {
	dir := t.TempDir()
	body := "[executor]\nmax_tasks = 1\n\n[clock]\nsource = \"virtual\"\n"
	if err := os.WriteFile(filepath.Join(dir, "hearth.toml"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	cmd := newTestRunCmd(t)
	_, err := loadRunConfig(cmd)
	if err == nil {
		t.Fatal("expected max_tasks to be rejected before boot")
	}
	if !strings.Contains(err.Error(), "[executor].max_tasks") {
		t.Fatalf("error = %v, want a max_tasks complaint", err)
	}
}

func TestReadUIMode(t *testing.T) {
	tests := []struct {
		in      string
		want    uiMode
		wantErr bool
	}{
		{"", uiModeOff, false},
		{"auto", uiModeAuto, false},
		{" ON ", uiModeOn, false},
		{"maybe", "", true},
	}
	for _, tt := range tests {
		got, err := readUIMode(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Fatalf("readUIMode(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestPrintBootTimings(t *testing.T) {
	timer := observ.NewTimer()
	_ = timer.Measure("clock", func() error { return nil })

	var text bytes.Buffer
	if err := printBootTimings(&text, timer, "text"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text.String(), "clock") {
		t.Fatalf("text timings = %q", text.String())
	}

	var js bytes.Buffer
	if err := printBootTimings(&js, timer, "json"); err != nil {
		t.Fatal(err)
	}
	var report observ.Report
	if err := json.Unmarshal(js.Bytes(), &report); err != nil {
		t.Fatalf("json timings: %v", err)
	}
	if len(report.Phases) != 1 || report.Phases[0].Name != "clock" {
		t.Fatalf("report = %+v", report)
	}

	if err := printBootTimings(&js, timer, "yaml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestSummarizeRecording(t *testing.T) {
	events := []trace.Event{
		*trace.Point(trace.ScopeTask, "spawn", 1, 0, "timestamp-1s"),
		*trace.Point(trace.ScopeTask, "spawn", 2, 0, "timestamp-2s"),
		*trace.Point(trace.ScopePoll, "poll", 1, 0, ""),
		*trace.Point(trace.ScopePoll, "poll", 2, 0, ""),
		*trace.Point(trace.ScopeExecutor, "halt", 0, 1, ""),
		*trace.Point(trace.ScopePoll, "wake", 1, 1000, ""),
		*trace.Point(trace.ScopePoll, "poll", 1, 1000, ""),
		*trace.Point(trace.ScopeTask, "complete", 1, 1000, "timestamp-1s"),
		*trace.Point(trace.ScopeTask, "fail", 2, 2000, "boom"),
	}
	sum := summarizeRecording(events)
	if sum.Events != 9 || sum.Halts != 1 || sum.First != 0 || sum.Last != 2000 {
		t.Fatalf("summary = %+v", sum)
	}
	if len(sum.Tasks) != 2 {
		t.Fatalf("tasks = %+v", sum.Tasks)
	}
	one, two := sum.Tasks[0], sum.Tasks[1]
	if one.Name != "timestamp-1s" || one.Polls != 2 || one.Wakes != 1 || one.Outcome != "done" || one.Finished != 1000 {
		t.Fatalf("task 1 = %+v", one)
	}
	if two.Outcome != "failed" || two.Detail != "boom" {
		t.Fatalf("task 2 = %+v", two)
	}

	var out bytes.Buffer
	renderReplay(&out, trace.RecordingHeader{BootID: "b00t", Version: "test", TickNanos: 1_000_000}, sum)
	for _, want := range []string{"OUTCOME", "timestamp-2s", "over 2s"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("render missing %q: %q", want, out.String())
		}
	}
}
