package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// NewMeterProvider creates an OTel MeterProvider exporting through a private
// Prometheus registry, plus the [http.Handler] serving its /metrics scrape
// endpoint. Instruments built on the returned provider's meters appear in
// the scrape output. When cfg carries an OTLP endpoint, the same instruments
// are additionally pushed over gRPC.
func NewMeterProvider(ctx context.Context, cfg TelemetryConfig) (*sdkmetric.MeterProvider, http.Handler, error) {
	registry := prometheus.NewRegistry()

	exporter, err := promexporter.New(
		promexporter.WithRegisterer(registry),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	opts := []sdkmetric.Option{sdkmetric.WithReader(exporter)}

	if cfg.OTLPEndpoint != "" {
		pushOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			pushOpts = append(pushOpts, otlpmetricgrpc.WithInsecure())
		}

		pushExporter, pushErr := otlpmetricgrpc.New(ctx, pushOpts...)
		if pushErr != nil {
			return nil, nil, fmt.Errorf("create otlp metric exporter: %w", pushErr)
		}

		res, resErr := telemetryResource(ctx, cfg)
		if resErr != nil {
			return nil, nil, resErr
		}

		opts = append(opts,
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(pushExporter)),
			sdkmetric.WithResource(res),
		)
	}

	provider := sdkmetric.NewMeterProvider(opts...)

	return provider, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}
