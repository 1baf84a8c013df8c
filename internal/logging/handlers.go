package logging

import (
	"context"
	"errors"
	"log/slog"
)

// ContextProvider supplies attributes computed at log time, such as the
// number of vehicles currently connected.
type ContextProvider func() []slog.Attr

// teeHandler copies each record to every sink whose level admits it. Setup
// uses it to write the console and session file in one pass.
type teeHandler struct {
	sinks []slog.Handler
}

func newTeeHandler(sinks ...slog.Handler) *teeHandler {
	kept := make([]slog.Handler, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &teeHandler{sinks: kept}
}

func (t *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, s := range t.sinks {
		if s.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, s := range t.sinks {
		if !s.Enabled(ctx, r.Level) {
			continue
		}
		if err := s.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	sinks := make([]slog.Handler, len(t.sinks))
	for i, s := range t.sinks {
		sinks[i] = s.WithAttrs(attrs)
	}
	return &teeHandler{sinks: sinks}
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return t
	}
	sinks := make([]slog.Handler, len(t.sinks))
	for i, s := range t.sinks {
		sinks[i] = s.WithGroup(name)
	}
	return &teeHandler{sinks: sinks}
}

// liveAttrsHandler asks the provider for fresh attributes on every record
// and appends them before delegating, so each line carries the ground
// link's state at the moment it was written.
type liveAttrsHandler struct {
	next     slog.Handler
	provider ContextProvider
}

// withLiveAttrs wraps next so the provider's attributes are stamped onto
// every record. A nil provider leaves next untouched.
func withLiveAttrs(next slog.Handler, provider ContextProvider) slog.Handler {
	if provider == nil {
		return next
	}
	return &liveAttrsHandler{next: next, provider: provider}
}

func (h *liveAttrsHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *liveAttrsHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(h.provider()...)
	return h.next.Handle(ctx, r)
}

func (h *liveAttrsHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &liveAttrsHandler{next: h.next.WithAttrs(attrs), provider: h.provider}
}

func (h *liveAttrsHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &liveAttrsHandler{next: h.next.WithGroup(name), provider: h.provider}
}
