package telemetry

import (
	"context"

	"chatintent/internal"
	"chatintent/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "chatintent"

// InitTracer installs a global tracer provider exporting to stdout. When
// telemetry is disabled the global no-op provider stays in place and the
// returned shutdown does nothing.
func InitTracer(cfg config.TelemetryConfig, logger *internal.Logger, opts ...stdouttrace.Option) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	if len(opts) == 0 {
		opts = []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.Named("Telemetry").Info("OpenTelemetry initialized (service=%s)", cfg.ServiceName)
	return tp.Shutdown, nil
}

// Tracer returns the pipeline tracer from the current global provider
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}
