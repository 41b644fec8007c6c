// Package prof wires the host profilers around a kernel run.
package prof

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
)

// Session holds the profile outputs requested on the command line. Empty
// paths disable the corresponding profile.
type Session struct {
	CPU   string
	Mem   string
	Trace string

	cpuFile   *os.File
	traceFile *os.File
}

// Start begins CPU profiling and runtime tracing.
func (s *Session) Start() error {
	if s.CPU != "" {
		f, err := os.Create(s.CPU)
		if err != nil {
			return fmt.Errorf("cpu profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return fmt.Errorf("cpu profile: %w", err)
		}
		s.cpuFile = f
	}
	if s.Trace != "" {
		f, err := os.Create(s.Trace)
		if err != nil {
			s.stopCPU()
			return fmt.Errorf("runtime trace: %w", err)
		}
		if err := trace.Start(f); err != nil {
			_ = f.Close()
			s.stopCPU()
			return fmt.Errorf("runtime trace: %w", err)
		}
		s.traceFile = f
	}
	return nil
}

// Stop ends the active profiles and writes the heap profile.
func (s *Session) Stop() error {
	var errs []error
	if s.traceFile != nil {
		trace.Stop()
		errs = append(errs, s.traceFile.Close())
		s.traceFile = nil
	}
	errs = append(errs, s.stopCPU())
	if s.Mem != "" {
		errs = append(errs, writeMem(s.Mem))
	}
	return errors.Join(errs...)
}

func (s *Session) stopCPU() error {
	if s.cpuFile == nil {
		return nil
	}
	pprof.StopCPUProfile()
	err := s.cpuFile.Close()
	s.cpuFile = nil
	return err
}

func writeMem(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("heap profile: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("heap profile: %w", err)
	}
	return nil
}
