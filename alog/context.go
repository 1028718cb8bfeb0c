package alog

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// AddAttr adds attr to ctx, so every record logged with ctx contains it.
func AddAttr(ctx context.Context, attr slog.Attr) context.Context {
	return AddAttrs(ctx, attr)
}

// AddAttrs adds all attrs to ctx, so every record logged with ctx contains them.
func AddAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	existing := FromContext(ctx)

	all := make([]slog.Attr, 0, len(existing)+len(attrs))
	all = append(all, existing...)
	all = append(all, attrs...)

	return context.WithValue(ctx, ctxKey{}, all)
}

// FromContext returns all attributes added to ctx.
func FromContext(ctx context.Context) []slog.Attr {
	if attrs, ok := ctx.Value(ctxKey{}).([]slog.Attr); ok {
		return attrs
	}

	return nil
}
