package config

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/echook/telemetry-manager-go/log"
	"github.com/echook/telemetry-manager-go/version"
)

// Telemetry holds the configured OpenTelemetry providers.
type Telemetry struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
}

// SetupTelemetry initializes tracing and metrics and registers the global
// providers. With an empty TelemetryEndpoint the exporters write to stdout.
func SetupTelemetry(ctx context.Context) (*Telemetry, error) {
	res, err := resource.Merge(resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL,
			semconv.ServiceName("telemetry-manager"),
			semconv.ServiceVersion(version.Version),
		))
	if err != nil {
		return nil, err
	}

	ret := Telemetry{}
	if ret.tracerProvider, err = setupTraceProvider(ctx, res); err != nil {
		return nil, err
	}
	if ret.meterProvider, err = setupMeterProvider(ctx, res); err != nil {
		return nil, err
	}
	otel.SetTracerProvider(ret.tracerProvider)
	otel.SetMeterProvider(ret.meterProvider)
	return &ret, nil
}

func (t *Telemetry) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.tracerProvider.Shutdown(ctx); err != nil {
		log.Warn("could not shutdown tracer provider", log.ErrorField(err))
	}
	if err := t.meterProvider.Shutdown(ctx); err != nil {
		log.Warn("could not shutdown meter provider", log.ErrorField(err))
	}
}

//nolint:whitespace // can't make both editor and linter happy
func setupTraceProvider(ctx context.Context, res *resource.Resource) (
	*sdktrace.TracerProvider, error,
) {
	var exporter sdktrace.SpanExporter
	var err error
	if TelemetryEndpoint == "" {
		exporter, err = stdouttrace.New()
	} else {
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(TelemetryEndpoint),
			otlptracegrpc.WithInsecure())
	}
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

//nolint:whitespace // can't make both editor and linter happy
func setupMeterProvider(ctx context.Context, res *resource.Resource) (
	*sdkmetric.MeterProvider, error,
) {
	var exporter sdkmetric.Exporter
	var err error
	if TelemetryEndpoint == "" {
		exporter, err = stdoutmetric.New()
	} else {
		exporter, err = otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(TelemetryEndpoint),
			otlpmetricgrpc.WithInsecure())
	}
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(15*time.Second))),
		sdkmetric.WithResource(res),
	), nil
}
