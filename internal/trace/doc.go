// Package trace provides the scheduler tracing subsystem.
//
// Tracing records what the executor does: task spawns, polls, wake-ups,
// suspensions, completions and idle halts. It is the tool for diagnosing
// starvation, lost wake-ups and stalls in the kernel simulator.
//
// # Usage
//
// Enable tracing via command-line flags:
//
//	hearth run --trace=- --trace-level=detail
//	hearth run --trace=boot.trace --trace-format=msgpack --trace-level=debug
//	hearth replay boot.trace
//
// # Architecture
//
// The package provides several tracer implementations:
//
//   - Nop: zero-overhead no-op tracer when disabled
//   - StreamTracer: immediate write to output (file/stderr)
//   - RingTracer: circular buffer, dumped on kernel panic
//   - MultiTracer: combines multiple tracers
//   - ChannelTracer: forwards events to a live view
//
// # Levels
//
//   - LevelOff: no tracing
//   - LevelError: only crash dumps
//   - LevelPhase: kernel boot phases and executor state changes
//   - LevelDetail: task lifecycle (spawn, complete, fail)
//   - LevelDebug: every poll and wake
//
// # Context Propagation
//
//	ctx = trace.WithTracer(ctx, tracer)
//	t := trace.FromContext(ctx)
//
//	boot := trace.Begin(t, trace.ScopeKernel, "boot", 0, clockTick)
//	phase := boot.Child("serial")
//	phase.End("loopback ok")
//	boot.End("")
package trace
