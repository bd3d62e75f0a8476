package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// TelemetryConfig selects the OTLP export target for traces and metrics.
// An empty endpoint leaves the global no-op tracer in place, with zero
// export overhead.
type TelemetryConfig struct {
	ServiceName  string
	Version      string
	OTLPEndpoint string
	OTLPInsecure bool
}

// InitTelemetry installs the global tracer provider and propagators. The
// returned shutdown flushes pending spans and must be called before process
// exit; when no endpoint is configured it is a no-op.
func InitTelemetry(ctx context.Context, cfg TelemetryConfig) (func(context.Context) error, error) {
	if cfg.OTLPEndpoint == "" {
		return noopShutdown, nil
	}

	res, resErr := telemetryResource(ctx, cfg)
	if resErr != nil {
		return nil, resErr
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.OTLPInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, expErr := otlptracegrpc.New(ctx, opts...)
	if expErr != nil {
		return nil, fmt.Errorf("create trace exporter: %w", expErr)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return provider.Shutdown, nil
}

func telemetryResource(ctx context.Context, cfg TelemetryConfig) (*resource.Resource, error) {
	attrs := []resource.Option{
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	}

	if cfg.Version != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceVersion(cfg.Version)))
	}

	res, err := resource.New(ctx, attrs...)
	if err != nil {
		return nil, fmt.Errorf("build telemetry resource: %w", err)
	}

	return res, nil
}

func noopShutdown(_ context.Context) error { return nil }
