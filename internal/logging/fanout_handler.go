package logging

import (
	"context"
	"errors"
	"log/slog"
)

// fanoutHandler writes each record to the console handler and the JSON log
// file handler. A failing output does not stop the others.
type fanoutHandler struct {
	outputs []slog.Handler
}

func newFanoutHandler(outputs ...slog.Handler) slog.Handler {
	live := make([]slog.Handler, 0, len(outputs))
	for _, h := range outputs {
		if h != nil {
			live = append(live, h)
		}
	}
	switch len(live) {
	case 0:
		return NoopHandler{}
	case 1:
		return live[0]
	}
	return &fanoutHandler{outputs: live}
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, out := range h.outputs {
		if out.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	last := len(h.outputs) - 1
	for i, out := range h.outputs {
		if !out.Enabled(ctx, record.Level) {
			continue
		}
		rec := record
		if i < last {
			// Handlers may add attrs to the record; the last one can keep the original.
			rec = record.Clone()
		}
		if err := out.Handle(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.each(func(out slog.Handler) slog.Handler { return out.WithAttrs(attrs) })
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	return h.each(func(out slog.Handler) slog.Handler { return out.WithGroup(name) })
}

func (h *fanoutHandler) each(fn func(slog.Handler) slog.Handler) slog.Handler {
	next := make([]slog.Handler, len(h.outputs))
	for i, out := range h.outputs {
		next[i] = fn(out)
	}
	return &fanoutHandler{outputs: next}
}
