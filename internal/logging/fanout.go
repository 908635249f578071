package logging

import (
	"context"
	"errors"
	"log/slog"
)

// ContextProvider returns attributes evaluated at the time each record is handled,
// such as the number of connected clients or open panes.
type ContextProvider func() []slog.Attr

// fanout forwards every record to each output enabled for its level.
type fanout []slog.Handler

func newFanout(outputs ...slog.Handler) fanout {
	f := make(fanout, 0, len(outputs))
	for _, h := range outputs {
		if h != nil {
			f = append(f, h)
		}
	}
	return f
}

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle delivers r to all enabled outputs. A failing output does not stop
// delivery to the rest; the failures are joined into the returned error.
func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f fanout) WithGroup(name string) slog.Handler {
	if name == "" {
		return f
	}
	return f.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f fanout) each(fn func(slog.Handler) slog.Handler) fanout {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = fn(h)
	}
	return out
}

// dynamic appends the provider's attributes to each record before passing it on.
// The provider only runs for records that some output will actually write.
type dynamic struct {
	next     slog.Handler
	provider ContextProvider
}

func withDynamic(next slog.Handler, provider ContextProvider) slog.Handler {
	if provider == nil {
		return next
	}
	return &dynamic{next: next, provider: provider}
}

func (d *dynamic) Enabled(ctx context.Context, level slog.Level) bool {
	return d.next.Enabled(ctx, level)
}

func (d *dynamic) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(d.provider()...)
	return d.next.Handle(ctx, r)
}

func (d *dynamic) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &dynamic{next: d.next.WithAttrs(attrs), provider: d.provider}
}

func (d *dynamic) WithGroup(name string) slog.Handler {
	if name == "" {
		return d
	}
	return &dynamic{next: d.next.WithGroup(name), provider: d.provider}
}
