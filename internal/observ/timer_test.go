package observ

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func fakeClock(step time.Duration) func() time.Time {
	base := time.Unix(0, 0)
	return func() time.Time {
		base = base.Add(step)
		return base
	}
}

func TestReportSumsPhases(t *testing.T) {
	tm := &Timer{now: fakeClock(2 * time.Millisecond)}
	a := tm.Begin("clock")
	tm.End(a, "")
	b := tm.Begin("serial")
	tm.End(b, "loopback ok")
	tm.End(7, "ignored")

	r := tm.Report()
	if len(r.Phases) != 2 {
		t.Fatalf("phases = %+v", r.Phases)
	}
	if r.Phases[0].DurationMS != 2 || r.TotalMS != 4 {
		t.Fatalf("report = %+v", r)
	}
	if r.Phases[1].Note != "loopback ok" {
		t.Fatalf("note = %q", r.Phases[1].Note)
	}
}

func TestMeasureRecordsFailure(t *testing.T) {
	tm := &Timer{now: fakeClock(time.Millisecond)}
	err := tm.Measure("serial", func() error { return errors.New("no echo") })
	if err == nil {
		t.Fatal("Measure swallowed the error")
	}
	if !strings.Contains(tm.Summary(), "// failed: no echo") {
		t.Fatalf("summary = %q", tm.Summary())
	}
}

func TestEmptyReport(t *testing.T) {
	if r := NewTimer().Report(); r.TotalMS != 0 || r.Phases != nil {
		t.Fatalf("empty report = %+v", r)
	}
}
