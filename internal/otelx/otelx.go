// Package otelx installs the global tracer provider and propagator used by
// the otelhttp server middleware.
package otelx

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/keithlinneman/filterkit/internal/xerrors"
)

// bounds exporter setup; the gRPC connection itself is established lazily
const dialTimeout = 3 * time.Second

type Options struct {
	Enabled   bool
	Endpoint  string // host:port of an OTLP gRPC collector
	Insecure  bool
	Sample    float64 // parent-based ratio for root spans
	Service   string
	Component string
	Version   string

	// Attributes are added to the resource, e.g. the API mount pattern.
	Attributes map[string]string
}

// Shutdown flushes pending spans and stops the exporter.
type Shutdown func(context.Context) error

// Propagator is the W3C trace context plus baggage propagator installed by
// Init.
func Propagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
}

// Init installs the global tracer provider. When tracing is disabled an
// unexported provider is installed so request IDs and trace headers still
// work, and the returned Shutdown does nothing.
func Init(ctx context.Context, o Options) (Shutdown, error) {
	otel.SetTextMapPropagator(Propagator())

	if !o.Enabled {
		otel.SetTracerProvider(sdktrace.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}
	if o.Endpoint == "" {
		return nil, xerrors.New("otlp endpoint is required when tracing is enabled")
	}

	exp, err := newExporter(ctx, o)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(o.Sample))),
		sdktrace.WithBatcher(exp,
			sdktrace.WithMaxQueueSize(2048),
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(newResource(ctx, o)),
	)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		return xerrors.Wrap(tp.Shutdown(ctx), "shutdown tracer provider")
	}, nil
}

func newExporter(ctx context.Context, o Options) (*otlptrace.Exporter, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(o.Endpoint)}
	if o.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	exp, err := otlptracegrpc.New(dialCtx, opts...)
	if err != nil {
		return nil, xerrors.Wrapf(err, "create otlp exporter for %s", o.Endpoint)
	}
	return exp, nil
}

// newResource describes this process. Detector errors are partial results,
// so whatever was detected is kept.
func newResource(ctx context.Context, o Options) *resource.Resource {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(serviceName(o)),
		semconv.ServiceVersion(o.Version),
	}
	for k, v := range o.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	res, _ := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithOS(),
		resource.WithHost(),
		resource.WithAttributes(attrs...),
	)
	if res == nil {
		return resource.NewSchemaless(attrs...)
	}
	return res
}

func serviceName(o Options) string {
	switch {
	case o.Component == "":
		return o.Service
	case o.Service == "":
		return o.Component
	}
	return o.Service + "." + o.Component
}
