package tracing

import (
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	// SamplerAlways keeps every trace.
	SamplerAlways = "always"

	// SamplerNever keeps no traces.
	SamplerNever = "never"

	// SamplerRatio keeps a fraction of traces, decided by trace ID hash so
	// every service in a distributed trace makes the same call.
	SamplerRatio = "ratio"
)

// newSampler builds the configured sampler wrapped in ParentBased, so a
// parent span's sampling decision always wins over the local strategy.
func newSampler(strategy string, ratio float64) (sdktrace.Sampler, error) {
	var base sdktrace.Sampler
	switch strategy {
	case SamplerAlways:
		base = sdktrace.AlwaysSample()
	case SamplerNever:
		base = sdktrace.NeverSample()
	case SamplerRatio:
		if ratio < 0 || ratio > 1 {
			return nil, fmt.Errorf("sample ratio must be between 0 and 1, got %v", ratio)
		}
		base = sdktrace.TraceIDRatioBased(ratio)
	default:
		return nil, fmt.Errorf("unknown sampler %q (valid: always, never, ratio)", strategy)
	}
	return sdktrace.ParentBased(base), nil
}
