package tracing

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc/credentials/insecure"
)

const instrumentationName = "traceforge-hq/traceforge"

// propagator handles W3C trace context regardless of whether span export
// is enabled, so inbound traceparent headers still thread through to
// upstream calls on a disabled tracer.
var propagator = propagation.NewCompositeTextMapPropagator(
	propagation.TraceContext{},
	propagation.Baggage{},
)

// Config controls span export.
type Config struct {
	// Enabled turns span export on. When false, Start returns noop spans.
	// Default: false.
	Enabled bool

	// ServiceName identifies this process in exported spans.
	// Default: "traceforge".
	ServiceName string

	// Version is reported as the service version resource attribute.
	Version string

	// Endpoint is the OTLP gRPC collector address, host:port.
	// Default: "localhost:4317".
	Endpoint string

	// Insecure disables TLS on the collector connection.
	Insecure bool

	// ExportTimeout bounds each export batch.
	// Default: 10s.
	ExportTimeout time.Duration

	// Sampler selects the sampling strategy: SamplerAlways, SamplerNever
	// or SamplerRatio. Default: SamplerAlways.
	Sampler string

	// SampleRatio is the fraction of traces kept under SamplerRatio,
	// between 0 and 1.
	SampleRatio float64
}

// Tracer wraps the OpenTelemetry SDK behind a small surface: Start spans,
// shut down cleanly, and stay a noop when disabled.
type Tracer struct {
	config   Config
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	enabled  bool
}

// New builds a Tracer. A nil or disabled config yields a noop tracer with
// no exporter and near-zero per-span cost.
func New(cfg *Config) (*Tracer, error) {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.ServiceName == "" {
		c.ServiceName = "traceforge"
	}
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4317"
	}
	if c.ExportTimeout <= 0 {
		c.ExportTimeout = 10 * time.Second
	}
	if c.Sampler == "" {
		c.Sampler = SamplerAlways
	}

	t := &Tracer{config: c, enabled: c.Enabled}
	if !c.Enabled {
		t.tracer = noop.NewTracerProvider().Tracer(instrumentationName)
		return t, nil
	}

	sampler, err := newSampler(c.Sampler, c.SampleRatio)
	if err != nil {
		return nil, err
	}

	exporter, err := newOTLPExporter(c)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(c.ServiceName),
		semconv.ServiceVersion(c.Version),
	))
	if err != nil {
		return nil, fmt.Errorf("build trace resource: %w", err)
	}

	t.provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(t.provider)
	otel.SetTextMapPropagator(propagator)

	t.tracer = t.provider.Tracer(instrumentationName)
	return t, nil
}

// newOTLPExporter dials the collector lazily; a collector that is down at
// startup surfaces as export errors, not a failed boot.
func newOTLPExporter(cfg Config) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithTimeout(cfg.ExportTimeout),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
	}

	exporter, err := otlptracegrpc.New(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}
	return exporter, nil
}

// Start opens a span named name. The caller must End it:
//
//	ctx, span := tracer.Start(ctx, "proxy.request")
//	defer span.End()
func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// Shutdown flushes pending spans and releases the exporter.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// Enabled reports whether spans are exported.
func (t *Tracer) Enabled() bool {
	return t.enabled
}

// Extract pulls W3C trace context from inbound request headers.
func Extract(ctx context.Context, headers http.Header) context.Context {
	return propagator.Extract(ctx, propagation.HeaderCarrier(headers))
}

// Inject writes the current trace context into outbound request headers.
func Inject(ctx context.Context, headers http.Header) {
	propagator.Inject(ctx, propagation.HeaderCarrier(headers))
}

// TraceID returns the current trace ID, or "" when the context carries no
// valid span.
func TraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}

// SpanID returns the current span ID, or "" when the context carries no
// valid span.
func SpanID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.SpanID().String()
}

// SetError records err on the span and marks it failed. A nil err is a
// no-op.
func SetError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.SetAttributes(attribute.Bool("error", true))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetOK marks the span as completed successfully.
func SetOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
