// Package config loads hearth.toml (or a YAML equivalent) describing how the
// kernel simulator boots: executor wake mode, clock source, logging, tracing,
// the serial console and the demo tasks to spawn.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"hearth/internal/asyncrt"
	"hearth/internal/klog"
	"hearth/internal/trace"
)

// FileName is the config file looked up from the working directory.
const FileName = "hearth.toml"

// Duration is a time.Duration written as "250ms", "1s" and so on.
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config is the full boot configuration.
type Config struct {
	Executor ExecutorConfig `toml:"executor" yaml:"executor"`
	Clock    ClockConfig    `toml:"clock" yaml:"clock"`
	Log      LogConfig      `toml:"log" yaml:"log"`
	Trace    TraceConfig    `toml:"trace" yaml:"trace"`
	Serial   SerialConfig   `toml:"serial" yaml:"serial"`
	Tasks    []TaskConfig   `toml:"task" yaml:"task"`

	// Path is the file the config was read from, empty for defaults.
	Path string `toml:"-" yaml:"-"`
}

type ExecutorConfig struct {
	WakeMode string `toml:"wake_mode" yaml:"wake_mode"`
	MaxTasks int    `toml:"max_tasks" yaml:"max_tasks"`
}

type ClockConfig struct {
	// Source is "hpet" for the host counter or "virtual" for a
	// deterministic clock.
	Source string   `toml:"source" yaml:"source"`
	Tick   Duration `toml:"tick" yaml:"tick"`
	// Step is how far a virtual clock advances on every read.
	Step uint64 `toml:"step" yaml:"step"`
}

type LogConfig struct {
	Level      string `toml:"level" yaml:"level"`
	Color      string `toml:"color" yaml:"color"`
	Timestamps bool   `toml:"timestamps" yaml:"timestamps"`
}

type TraceConfig struct {
	Level    string `toml:"level" yaml:"level"`
	Mode     string `toml:"mode" yaml:"mode"`
	Format   string `toml:"format" yaml:"format"`
	Output   string `toml:"output" yaml:"output"`
	RingSize int    `toml:"ring_size" yaml:"ring_size"`
}

type SerialConfig struct {
	Enabled      bool     `toml:"enabled" yaml:"enabled"`
	Device       string   `toml:"device" yaml:"device"`
	PollInterval Duration `toml:"poll_interval" yaml:"poll_interval"`
	Loopback     bool     `toml:"loopback" yaml:"loopback"`
}

// TaskConfig describes one periodic timestamp logger.
type TaskConfig struct {
	Name       string   `toml:"name" yaml:"name"`
	LabelStart int      `toml:"label_start" yaml:"label_start"`
	Interval   Duration `toml:"interval" yaml:"interval"`
	// Count is the number of lines to log; negative logs forever.
	Count int `toml:"count" yaml:"count"`
	// FailAt makes the task fail on that iteration (1-based); zero never.
	FailAt int `toml:"fail_at" yaml:"fail_at"`
}

// DefaultTasks reproduces the boot demo: two loggers, one every second
// and one every two seconds.
func DefaultTasks() []TaskConfig {
	return []TaskConfig{
		{Name: "timestamp-1s", LabelStart: 100, Interval: Duration{time.Second}, Count: 4},
		{Name: "timestamp-2s", LabelStart: 200, Interval: Duration{2 * time.Second}, Count: 4},
	}
}

// Default returns the configuration used when no file is found.
func Default() Config {
	return Config{
		Executor: ExecutorConfig{WakeMode: "busy", MaxTasks: asyncrt.DefaultMaxTasks},
		Clock:    ClockConfig{Source: "hpet", Step: 1},
		Log:      LogConfig{Level: "info", Color: "auto", Timestamps: true},
		Trace:    TraceConfig{Level: "off", Mode: "stream", Format: "auto", RingSize: 4096},
		Serial: SerialConfig{
			PollInterval: Duration{20 * time.Millisecond},
			Loopback:     true,
		},
		Tasks: DefaultTasks(),
	}
}

// Find walks up from startDir looking for hearth.toml.
func Find(startDir string) (path string, ok bool, err error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Resolve loads explicit when set, otherwise the nearest hearth.toml above
// startDir, otherwise the defaults.
func Resolve(explicit, startDir string) (Config, error) {
	if explicit != "" {
		return Load(explicit)
	}
	path, ok, err := Find(startDir)
	if err != nil {
		return Config{}, err
	}
	if !ok {
		return Default(), nil
	}
	return Load(path)
}

// Load reads a TOML or YAML file over the defaults and validates it.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		cfg, err = decodeYAML(data)
	default:
		cfg, err = decodeTOML(data)
	}
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Path = path
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func decodeTOML(data []byte) (Config, error) {
	cfg := Default()
	cfg.Tasks = nil
	meta, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse TOML: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return Config{}, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	if !meta.IsDefined("task") {
		cfg.Tasks = DefaultTasks()
	}
	return cfg, nil
}

func decodeYAML(data []byte) (Config, error) {
	cfg := Default()
	cfg.Tasks = nil
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if cfg.Tasks == nil {
		cfg.Tasks = DefaultTasks()
	}
	return cfg, nil
}

// Validate checks every field that would otherwise fail late during boot.
func (c *Config) Validate() error {
	var errs []error
	if _, err := asyncrt.ParseWakeMode(c.Executor.WakeMode); err != nil {
		errs = append(errs, fmt.Errorf("[executor].wake_mode: %w", err))
	}
	if c.Executor.MaxTasks < 0 {
		errs = append(errs, fmt.Errorf("[executor].max_tasks must not be negative"))
	} else if need := c.BootTasks(); need > c.taskLimit() {
		errs = append(errs, fmt.Errorf("[executor].max_tasks %d is below the %d task(s) spawned at boot", c.taskLimit(), need))
	}
	switch c.Clock.Source {
	case "hpet", "virtual":
	default:
		errs = append(errs, fmt.Errorf("[clock].source: invalid value %q (expected: hpet|virtual)", c.Clock.Source))
	}
	if c.Clock.Tick.Duration < 0 {
		errs = append(errs, fmt.Errorf("[clock].tick must not be negative"))
	}
	if _, err := klog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("[log].level: %w", err))
	}
	switch c.Log.Color {
	case "", "auto", "on", "off":
	default:
		errs = append(errs, fmt.Errorf("[log].color: invalid value %q (expected: auto|on|off)", c.Log.Color))
	}
	if _, err := trace.ParseLevel(c.Trace.Level); err != nil {
		errs = append(errs, fmt.Errorf("[trace].level: %w", err))
	}
	if _, err := trace.ParseMode(c.Trace.Mode); err != nil {
		errs = append(errs, fmt.Errorf("[trace].mode: %w", err))
	}
	if _, err := trace.ParseFormat(c.Trace.Format); err != nil {
		errs = append(errs, fmt.Errorf("[trace].format: %w", err))
	}
	if c.Serial.PollInterval.Duration <= 0 {
		errs = append(errs, fmt.Errorf("[serial].poll_interval must be positive"))
	}
	seen := make(map[string]bool, len(c.Tasks))
	for i, task := range c.Tasks {
		where := fmt.Sprintf("[[task]] #%d", i+1)
		if task.Name != "" {
			where = fmt.Sprintf("[[task]] %q", task.Name)
			if seen[task.Name] {
				errs = append(errs, fmt.Errorf("%s: duplicate name", where))
			}
			seen[task.Name] = true
		}
		if task.Interval.Duration < 0 {
			errs = append(errs, fmt.Errorf("%s: interval must not be negative", where))
		}
		if task.Count == 0 {
			errs = append(errs, fmt.Errorf("%s: count must be non-zero (negative runs forever)", where))
		}
		if task.FailAt < 0 || (task.Count > 0 && task.FailAt > task.Count) {
			errs = append(errs, fmt.Errorf("%s: fail_at %d outside 1..%d", where, task.FailAt, task.Count))
		}
	}
	return errors.Join(errs...)
}

// BootTasks is the number of tasks the kernel spawns at boot: every
// [[task]] plus the serial monitor when the console is enabled.
func (c *Config) BootTasks() int {
	n := len(c.Tasks)
	if c.Serial.Enabled {
		n++
	}
	return n
}

func (c *Config) taskLimit() int {
	if c.Executor.MaxTasks == 0 {
		return asyncrt.DefaultMaxTasks
	}
	return c.Executor.MaxTasks
}

// WakeMode returns the parsed executor wake mode.
func (c *Config) WakeMode() asyncrt.WakeMode {
	mode, err := asyncrt.ParseWakeMode(c.Executor.WakeMode)
	if err != nil {
		return asyncrt.WakeBusyPoll
	}
	return mode
}
