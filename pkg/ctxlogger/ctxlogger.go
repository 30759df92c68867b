package ctxlogger

import (
	"context"
	"log/slog"
)

type ctxKey string

const slogFields ctxKey = "slog_fields"

// ContextHandler wraps a slog.Handler and emits the attributes
// accumulated on the context via AppendCtx with every record.
type ContextHandler struct {
	slog.Handler
}

func (h ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs, ok := ctx.Value(slogFields).([]slog.Attr); ok {
		for _, attr := range attrs {
			r.AddAttrs(attr)
		}
	}

	return h.Handler.Handle(ctx, r)
}

// AppendCtx returns a context carrying attr in addition to any
// attributes already present.
func AppendCtx(parent context.Context, attr slog.Attr) context.Context {
	if parent == nil {
		parent = context.Background()
	}

	if attrs, ok := parent.Value(slogFields).([]slog.Attr); ok {
		attrs = append(attrs[:len(attrs):len(attrs)], attr)
		return context.WithValue(parent, slogFields, attrs)
	}

	return context.WithValue(parent, slogFields, []slog.Attr{attr})
}
