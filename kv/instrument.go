package kv

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/go-arrower/fixturedb/alog"
)

const instrumentationName = "github.com/go-arrower/fixturedb/kv"

type InstrumentOption func(*instrumented)

// WithLogger logs every operation on the alog.LevelDebug level.
func WithLogger(logger *slog.Logger) InstrumentOption {
	return func(s *instrumented) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithTracerProvider(tp trace.TracerProvider) InstrumentOption {
	return func(s *instrumented) {
		if tp != nil {
			s.tracer = tp.Tracer(instrumentationName)
		}
	}
}

// WithMeterProvider records the metrics kv_operations_total and kv_operation_duration_seconds.
func WithMeterProvider(mp metric.MeterProvider) InstrumentOption {
	return func(s *instrumented) {
		if mp != nil {
			s.meter = mp.Meter(instrumentationName)
		}
	}
}

// Instrument wraps storage with logs, traces and metrics for each operation.
func Instrument(storage StorageCloser, opts ...InstrumentOption) StorageCloser { //nolint:ireturn
	s := &instrumented{
		next:   storage,
		logger: alog.NewNoop(),
		tracer: noop.NewTracerProvider().Tracer(instrumentationName),
		meter:  metricnoop.NewMeterProvider().Meter(instrumentationName),
	}

	for _, opt := range opts {
		opt(s)
	}

	var err error

	s.operations, err = s.meter.Int64Counter("kv_operations",
		metric.WithDescription("Number of operations on the durable storage."),
	)
	if err != nil {
		s.logger.Warn("could not create storage metric", slog.String("metric", "kv_operations"), slog.String("err", err.Error()))
		s.operations = metricnoop.Int64Counter{}
	}

	s.duration, err = s.meter.Float64Histogram("kv_operation_duration_seconds",
		metric.WithDescription("Duration of operations on the durable storage."),
		metric.WithUnit("s"),
	)
	if err != nil {
		s.logger.Warn("could not create storage metric", slog.String("metric", "kv_operation_duration_seconds"), slog.String("err", err.Error()))
		s.duration = metricnoop.Float64Histogram{}
	}

	return s
}

type instrumented struct {
	next StorageCloser

	logger *slog.Logger
	tracer trace.Tracer
	meter  metric.Meter

	operations metric.Int64Counter
	duration   metric.Float64Histogram
}

func (s *instrumented) Get(ctx context.Context, key Key) (string, error) {
	var value string

	err := s.observe(ctx, "get", key, func(ctx context.Context) error {
		var err error
		value, err = s.next.Get(ctx, key)

		return err
	})

	return value, err
}

func (s *instrumented) Set(ctx context.Context, key Key, value string) error {
	return s.observe(ctx, "set", key, func(ctx context.Context) error {
		return s.next.Set(ctx, key, value)
	})
}

func (s *instrumented) Delete(ctx context.Context, key Key) error {
	return s.observe(ctx, "delete", key, func(ctx context.Context) error {
		return s.next.Delete(ctx, key)
	})
}

func (s *instrumented) Close() error {
	return s.next.Close() //nolint:wrapcheck
}

func (s *instrumented) observe(ctx context.Context, op string, key Key, next func(ctx context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, "kv."+op, trace.WithAttributes(attribute.String("kv.key", key.String())))
	defer span.End()

	start := time.Now()
	err := next(ctx)
	elapsed := time.Since(start)

	status := "success"

	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		status = "not_found"
	default:
		status = "failure"

		span.SetStatus(codes.Error, err.Error())
	}

	attrs := metric.WithAttributes(attribute.String("operation", op), attribute.String("status", status))
	s.operations.Add(ctx, 1, attrs)
	s.duration.Record(ctx, elapsed.Seconds(), attrs)

	s.logger.Log(ctx, alog.LevelDebug, "storage "+op,
		slog.String("key", key.String()),
		slog.String("status", status),
		slog.Duration("duration", elapsed),
	)

	return err
}
