package logging

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// LogCallback is called when a new log entry is written.
type LogCallback func(entry LogEntry)

// BufferHandler records log entries into a RingBuffer for the log API and
// forwards each stored entry to the installed LogCallback.
type BufferHandler struct {
	buffer   *RingBuffer
	level    slog.Leveler
	callback func() LogCallback
	scope    scope
}

// NewBufferHandler creates a handler that writes to buffer. callback is
// resolved per record so it can be installed after loggers exist.
func NewBufferHandler(buffer *RingBuffer, level slog.Leveler, callback func() LogCallback) *BufferHandler {
	return &BufferHandler{buffer: buffer, level: level, callback: callback}
}

// Enabled implements slog.Handler.
func (h *BufferHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *BufferHandler) Handle(_ context.Context, r slog.Record) error {
	entry := LogEntry{
		Timestamp:  r.Time,
		Level:      levelName(r.Level),
		Module:     "main",
		Message:    r.Message,
		Attributes: make(map[string]any),
	}
	h.scope.each(r, func(groups []string, a slog.Attr) {
		if len(groups) == 0 && a.Key == "module" {
			entry.Module = a.Value.String()
			return
		}
		flatten(entry.Attributes, groups, a)
	})

	entry = h.buffer.Write(entry)
	if h.callback == nil {
		return nil
	}
	if cb := h.callback(); cb != nil {
		cb(entry)
	}
	return nil
}

// flatten stores a under its dotted group path, expanding nested groups.
func flatten(dst map[string]any, groups []string, a slog.Attr) {
	if a.Value.Kind() == slog.KindGroup {
		inner := append(groups[:len(groups):len(groups)], a.Key)
		for _, ga := range a.Value.Group() {
			ga.Value = ga.Value.Resolve()
			flatten(dst, inner, ga)
		}
		return
	}

	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}
	switch v := a.Value; v.Kind() {
	case slog.KindTime:
		dst[key] = v.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		dst[key] = v.Duration().String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			dst[key] = err.Error()
			return
		}
		dst[key] = v.Any()
	default:
		dst[key] = v.Any()
	}
}

// WithAttrs implements slog.Handler.
func (h *BufferHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.scope = h.scope.withAttrs(attrs)
	return &next
}

// WithGroup implements slog.Handler.
func (h *BufferHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.scope = h.scope.withGroup(name)
	return &next
}
