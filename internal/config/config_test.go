package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hearth/internal/asyncrt"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if len(cfg.Tasks) != 2 || cfg.Tasks[0].LabelStart != 100 || cfg.Tasks[1].Interval.Duration != 2*time.Second {
		t.Fatalf("default tasks = %+v", cfg.Tasks)
	}
}

func TestLoadTOMLOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, FileName, `
[executor]
wake_mode = "timer"

[clock]
source = "virtual"
tick = "1ms"
step = 0

[[task]]
name = "fast"
label_start = 1
interval = "250ms"
count = 3
fail_at = 2
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WakeMode() != asyncrt.WakeTimer {
		t.Fatalf("wake mode = %s", cfg.WakeMode())
	}
	if cfg.Clock.Tick.Duration != time.Millisecond || cfg.Clock.Step != 0 {
		t.Fatalf("clock = %+v", cfg.Clock)
	}
	if cfg.Log.Level != "info" || cfg.Serial.PollInterval.Duration != 20*time.Millisecond {
		t.Fatalf("defaults lost: log=%+v serial=%+v", cfg.Log, cfg.Serial)
	}
	if len(cfg.Tasks) != 1 || cfg.Tasks[0].Name != "fast" || cfg.Tasks[0].FailAt != 2 {
		t.Fatalf("tasks = %+v", cfg.Tasks)
	}
	if cfg.Path != path {
		t.Fatalf("Path = %q", cfg.Path)
	}
}

func TestLoadTOMLKeepsDefaultTasksWhenNoneGiven(t *testing.T) {
	path := writeFile(t, t.TempDir(), FileName, "[log]\nlevel = \"debug\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Tasks) != 2 {
		t.Fatalf("tasks = %+v, want defaults", cfg.Tasks)
	}
}

func TestLoadTOMLRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, t.TempDir(), FileName, "[executor]\nwake = \"timer\"\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "executor.wake") {
		t.Fatalf("Load = %v, want unknown key error", err)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "hearth.yaml", `
executor:
  wake_mode: timer
serial:
  enabled: true
  poll_interval: 5ms
task:
  - name: only
    label_start: 7
    interval: 1s
    count: -1
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Serial.Enabled || cfg.Serial.PollInterval.Duration != 5*time.Millisecond {
		t.Fatalf("serial = %+v", cfg.Serial)
	}
	if len(cfg.Tasks) != 1 || cfg.Tasks[0].Count != -1 {
		t.Fatalf("tasks = %+v", cfg.Tasks)
	}
}

func TestLoadYAMLRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, t.TempDir(), "hearth.yml", "clock:\n  speed: 2\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected unknown field error")
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Executor.WakeMode = "sometimes"
	cfg.Clock.Source = "sundial"
	cfg.Tasks = append(cfg.Tasks, TaskConfig{Name: "timestamp-1s", Count: 0})

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"wake_mode", "[clock].source", "duplicate name", "count must be non-zero"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}
}

func TestResolveWalksUp(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, FileName, "[executor]\nwake_mode = \"timer\"\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	cfg, err := Resolve("", nested)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.WakeMode() != asyncrt.WakeTimer || cfg.Path != filepath.Join(root, FileName) {
		t.Fatalf("resolved %q with wake mode %s", cfg.Path, cfg.WakeMode())
	}
}

func TestResolveFallsBackToDefault(t *testing.T) {
	cfg, err := Resolve("", t.TempDir())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.Path != "" || cfg.WakeMode() != asyncrt.WakeBusyPoll {
		t.Fatalf("fallback config = %+v", cfg)
	}
}

func TestValidateRejectsTaskTableBelowBootTasks(t *testing.T) {
	tests := []struct {
		max    int
		serial bool
		ok     bool
	}{
		{0, true, true},
		{2, false, true},
		{2, true, false},
		{1, false, false},
		{3, true, true},
	}
	for _, tt := range tests {
		cfg := Default()
		cfg.Executor.MaxTasks = tt.max
		cfg.Serial.Enabled = tt.serial
		err := cfg.Validate()
		if (err == nil) != tt.ok {
			t.Fatalf("max_tasks=%d serial=%v: Validate = %v", tt.max, tt.serial, err)
		}
		if err != nil && !strings.Contains(err.Error(), "[executor].max_tasks") {
			t.Fatalf("error does not name the field: %v", err)
		}
	}
}
