package klog

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerFormatsLevelAndStamp(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, WithColor(false), WithStamp(func() string { return "[   42]" }))

	l.Log(LevelInfo, "hello 7")

	want := "[   42] [INFO] hello 7\n"
	if got := buf.String(); got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
}

func TestLoggerDropsBelowMinimum(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, WithColor(false), WithLevel(LevelWarn))

	l.Log(LevelInfo, "quiet")
	l.Log(LevelDebug, "quieter")
	l.Log(LevelWarn, "heads up")
	l.Log(LevelError, "loud")

	if got := buf.String(); got != "[WARN] heads up\n[ERROR] loud\n" {
		t.Fatalf("output = %q, want the warn and error records", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseLevel(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("ParseLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestCaptureAndTee(t *testing.T) {
	var a, b Capture
	s := Tee(&a, nil, &b)
	s.Log(LevelWarn, "w")
	s.Log(LevelError, "e")

	if got := len(a.Entries()); got != 2 {
		t.Fatalf("capture a has %d entries, want 2", got)
	}
	errs := b.Filter(LevelError)
	if len(errs) != 1 || errs[0].Msg != "e" {
		t.Fatalf("capture b errors = %+v, want one entry with msg e", errs)
	}
}

func TestHexdumpLines(t *testing.T) {
	data := []byte("ABCDEFGHIJKLMNOPqr\x00")
	lines := HexdumpLines(data)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if !strings.HasPrefix(lines[0], "00000000: 41 42 43") {
		t.Fatalf("first line = %q", lines[0])
	}
	if !strings.HasSuffix(lines[0], "|ABCDEFGHIJKLMNOP|") {
		t.Fatalf("first line ascii column = %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], "|qr.|") {
		t.Fatalf("second line ascii column = %q", lines[1])
	}
}

func TestHexdumpRespectsLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	Hexdump(New(&buf, WithColor(false)), []byte{1, 2, 3})
	if buf.Len() != 0 {
		t.Fatalf("hexdump written at info level: %q", buf.String())
	}
	Hexdump(New(&buf, WithColor(false), WithLevel(LevelDebug)), []byte{1, 2, 3})
	if !strings.Contains(buf.String(), "01 02 03") {
		t.Fatalf("hexdump missing at debug level: %q", buf.String())
	}
}
