package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/vibek01/ECOM-D1/internal/platform/config"
)

// Telemetry holds the installed providers and the /metrics handler.
type Telemetry struct {
	metricsHandler http.Handler
	shutdowns      []func(context.Context) error
}

// MetricsHandler serves the Prometheus exposition. It responds 404 when metrics are disabled.
func (t *Telemetry) MetricsHandler() http.Handler {
	if t == nil || t.metricsHandler == nil {
		return http.NotFoundHandler()
	}
	return t.metricsHandler
}

// Shutdown flushes and stops every installed provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	for i := len(t.shutdowns) - 1; i >= 0; i-- {
		if err := t.shutdowns[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetupTelemetry installs the global propagator, a Prometheus backed meter provider when metrics are
// enabled and an OTLP gRPC tracer provider when an endpoint is configured.
func SetupTelemetry(ctx context.Context, cfg config.TelemetryConfig, version string) (*Telemetry, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(version),
	)

	tel := &Telemetry{}

	if cfg.MetricsEnabled {
		registry := prom.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
		if err != nil {
			return nil, fmt.Errorf("telemetry: prometheus exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(exporter),
			sdkmetric.WithResource(res),
		)
		otel.SetMeterProvider(mp)
		tel.metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
		tel.shutdowns = append(tel.shutdowns, mp.Shutdown)
	}

	if cfg.OTLPEndpoint != "" {
		exporter, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			_ = tel.Shutdown(ctx)
			return nil, fmt.Errorf("telemetry: otlp exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		tel.shutdowns = append(tel.shutdowns, tp.Shutdown)
	}

	return tel, nil
}
