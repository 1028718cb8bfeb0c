package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/go-arrower/fixturedb"
)

type telemetry struct {
	tracerProvider trace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	shutdown       []func(context.Context) error
}

// newTelemetry exports metrics into registry and, if a collector is configured, traces via OTLP.
func newTelemetry(ctx context.Context, conf fixturedb.Config, registry *prometheus.Registry) (*telemetry, error) {
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String("fixturedb"),
		attribute.String("environment", string(conf.Environment)),
	)

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("could not create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	t := &telemetry{
		tracerProvider: noop.NewTracerProvider(),
		meterProvider:  meterProvider,
		shutdown:       []func(context.Context) error{meterProvider.Shutdown},
	}

	if conf.OTEL.Host == "" {
		return t, nil
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(fmt.Sprintf("%s:%d", conf.OTEL.Host, conf.OTEL.Port)),
		otlptracegrpc.WithInsecure(),
	}

	if conf.Environment == fixturedb.TestEnv {
		opts = append(opts, otlptracegrpc.WithTimeout(10*time.Millisecond)) //nolint:mnd
	}

	traceExporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not create trace exporter: %w", err)
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)

	t.tracerProvider = tracerProvider
	t.shutdown = append(t.shutdown, tracerProvider.Shutdown)

	return t, nil
}

func (t *telemetry) Shutdown(ctx context.Context) error {
	var errs []error

	for _, shutdown := range t.shutdown {
		errs = append(errs, shutdown(ctx))
	}

	return errors.Join(errs...)
}
