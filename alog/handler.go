package alog

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// newHandler returns the main handler of fixturedb.
// It does not output anything directly and relies on other slog.Handlers to do so.
// If no handlers are provided via WithHandler, a default JSON handler logs to os.Stderr.
func newHandler(opts ...LoggerOpt) *handler {
	level := &slog.LevelVar{}
	level.Set(slog.LevelInfo)

	h := &handler{
		handlers: []slog.Handler{},
		level:    level,
	}

	for _, opt := range opts {
		opt(h)
	}

	if len(h.handlers) == 0 {
		h.handlers = []slog.Handler{slog.NewJSONHandler(os.Stderr, getDefaultHandlerOptions())}
	}

	return h
}

var _ slog.Handler = (*handler)(nil)

// handler logs to multiple handlers and correlates records with the active span.
type handler struct {
	// level reports the minimum record level that will be logged.
	// It IS the level for all handlers; the level of individual handlers is ignored.
	// It is shared with all handlers derived via WithAttrs and WithGroup.
	level *slog.LevelVar

	// handlers is a list which all get called with the same log record.
	handlers []slog.Handler
}

func (h *handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *handler) Handle(ctx context.Context, record slog.Record) error {
	span := trace.SpanFromContext(ctx)

	record = addTraceAndSpanIDsToLogs(span, record)

	if attrs := FromContext(ctx); len(attrs) > 0 {
		record.AddAttrs(attrs...)
	}

	addLogsToActiveSpanAsEvent(span, record)

	var retErr error

	for _, hdl := range h.handlers {
		err := hdl.Handle(ctx, record)
		retErr = errors.Join(retErr, err)
	}

	return retErr
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))

	for i, hdl := range h.handlers {
		handlers[i] = hdl.WithAttrs(attrs)
	}

	return &handler{handlers: handlers, level: h.level}
}

func (h *handler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))

	for i, hdl := range h.handlers {
		handlers[i] = hdl.WithGroup(name)
	}

	return &handler{handlers: handlers, level: h.level}
}

// SetLevel changes the level for all handlers set with WithHandler.
// Even the ones "copied" via any WithX method.
func (h *handler) SetLevel(level slog.Level) {
	h.level.Set(level)
}

// Level returns the log level of the handler.
func (h *handler) Level() slog.Level {
	return h.level.Level()
}

func addTraceAndSpanIDsToLogs(span trace.Span, record slog.Record) slog.Record {
	sCtx := span.SpanContext()
	attrs := make([]slog.Attr, 0)

	if sCtx.HasTraceID() {
		attrs = append(attrs, slog.String("traceID", sCtx.TraceID().String()))
	}

	if sCtx.HasSpanID() {
		attrs = append(attrs, slog.String("spanID", sCtx.SpanID().String()))
	}

	if len(attrs) > 0 {
		record.AddAttrs(attrs...)
	}

	return record
}

func addLogsToActiveSpanAsEvent(span trace.Span, record slog.Record) {
	if !span.IsRecording() {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("log.severity", record.Level.String()),
		attribute.String("log.message", record.Message),
	}

	record.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, attribute.String(a.Key, a.Value.String()))

		return true // process next attr
	})

	span.AddEvent("log", trace.WithAttributes(attrs...))

	if record.Level >= slog.LevelError {
		span.SetStatus(codes.Error, record.Message)
	}
}

// LevelController offers control over the logger at run time.
// Unwrap a logger to get access to it.
type LevelController interface {
	SetLevel(level slog.Level)
	Level() slog.Level
}

// Unwrap returns the LevelController of the given logger.
// In case the logger was not created by this package, it returns nil.
func Unwrap(logger Logger) LevelController { //nolint:ireturn // interface required to return a TestLogger and handler
	switch l := logger.(type) {
	case *TestLogger:
		return l
	case *slog.Logger:
		if h, ok := l.Handler().(*handler); ok {
			return h
		}
	}

	return nil
}
