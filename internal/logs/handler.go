package logs

import (
	"context"
	"log/slog"
)

type programKey struct{}

// WithProgram tags records logged with ctx by the guest program name.
func WithProgram(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, programKey{}, name)
}

type Handler struct {
	slog.Handler
}

func (h *Handler) Handle(ctx context.Context, record slog.Record) error {
	if v, ok := ctx.Value(programKey{}).(string); ok {
		record.Add("program", v)
	}
	return h.Handler.Handle(ctx, record)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{Handler: h.Handler.WithGroup(name)}
}
