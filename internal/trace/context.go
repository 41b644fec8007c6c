package trace

import "context"

type tracerKey struct{}

// FromContext returns the tracer the CLI attached before booting the kernel,
// or Nop when the command runs without tracing.
func FromContext(ctx context.Context) Tracer {
	if ctx == nil {
		return Nop
	}
	t, _ := ctx.Value(tracerKey{}).(Tracer)
	return OrNop(t)
}

// WithTracer returns a context carrying t, so the executor and the serial
// pump started from it emit into the same sink.
func WithTracer(ctx context.Context, t Tracer) context.Context {
	return context.WithValue(ctx, tracerKey{}, OrNop(t))
}
