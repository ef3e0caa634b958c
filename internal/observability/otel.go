// Package observability bootstraps OpenTelemetry tracing. Spans from Gin
// (otelgin), GORM and the realtime engine are exported over OTLP/gRPC to the
// collector named in config.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc/credentials"

	"github.com/tbourn/go-chat-rooms/internal/config"
)

// Test seams.
var (
	newExporter = func(ctx context.Context, opts ...otlptracegrpc.Option) (*otlptrace.Exporter, error) {
		return otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
	}
	newResource = func(ctx context.Context, service, version string) (*resource.Resource, error) {
		return resource.New(ctx,
			resource.WithAttributes(
				semconv.ServiceName(service),
				semconv.ServiceVersion(version),
			),
			resource.WithProcessRuntimeName(),
			resource.WithProcessRuntimeVersion(),
		)
	}
)

// Shutdown flushes and stops the tracer provider.
type Shutdown func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// SetupOTel installs a global tracer provider and W3C propagators. When
// tracing is disabled it leaves the globals alone and returns a no-op
// Shutdown. Globals are only replaced once every component was built.
func SetupOTel(ctx context.Context, cfg config.OTELConfig, version string) (Shutdown, error) {
	if !cfg.Enabled {
		return noopShutdown, nil
	}

	exp, err := newExporter(ctx, exporterOptions(cfg)...)
	if err != nil {
		return nil, err
	}
	res, err := newResource(ctx, cfg.ServiceName, version)
	if err != nil {
		_ = exp.Shutdown(ctx)
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

func exporterOptions(cfg config.OTELConfig) []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		return append(opts, otlptracegrpc.WithInsecure())
	}
	return append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
}

// sampler honors an upstream decision and otherwise samples ratio of roots.
func sampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case ratio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}
