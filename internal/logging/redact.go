package logging

import (
	"context"
	"log/slog"
	"regexp"
)

const redacted = "[REDACTED]"

var secretPatterns = []*regexp.Regexp{
	// Anthropic
	regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{20,}`),
	// Google AI
	regexp.MustCompile(`AIza[a-zA-Z0-9_-]{35}`),
	regexp.MustCompile(`(?i)api[_-]?key["'\s:=]+[a-zA-Z0-9_-]{20,}`),
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._-]{20,}`),
}

// Redact replaces anything that looks like a credential with a placeholder.
func Redact(s string) string {
	for _, p := range secretPatterns {
		s = p.ReplaceAllString(s, redacted)
	}
	return s
}

type redactingHandler struct {
	next slog.Handler
}

func newRedactingHandler(next slog.Handler) *redactingHandler {
	return &redactingHandler{next: next}
}

func (h *redactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *redactingHandler) Handle(ctx context.Context, r slog.Record) error {
	clean := slog.NewRecord(r.Time, r.Level, Redact(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(redactAttr(a))
		return true
	})
	return h.next.Handle(ctx, clean)
}

func (h *redactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = redactAttr(a)
	}
	return &redactingHandler{next: h.next.WithAttrs(out)}
}

func (h *redactingHandler) WithGroup(name string) slog.Handler {
	return &redactingHandler{next: h.next.WithGroup(name)}
}

func redactAttr(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, Redact(v.String()))
	case slog.KindGroup:
		group := v.Group()
		out := make([]any, len(group))
		for i, g := range group {
			out[i] = redactAttr(g)
		}
		return slog.Group(a.Key, out...)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return slog.String(a.Key, Redact(err.Error()))
		}
	}
	return a
}
