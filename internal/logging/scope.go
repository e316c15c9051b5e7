package logging

import (
	"log/slog"
	"slices"
)

// scopedAttr is an attribute together with the groups open when it was added.
type scopedAttr struct {
	groups []string
	attr   slog.Attr
}

// scope is the attribute context a handler accumulates through WithAttrs
// and WithGroup. Attrs added before a group is opened stay outside it.
type scope struct {
	attrs  []scopedAttr
	groups []string
}

func (s scope) withAttrs(attrs []slog.Attr) scope {
	next := scope{attrs: slices.Clip(s.attrs), groups: s.groups}
	for _, a := range attrs {
		next.attrs = append(next.attrs, scopedAttr{groups: s.groups, attr: a})
	}
	return next
}

func (s scope) withGroup(name string) scope {
	if name == "" {
		return s
	}
	return scope{attrs: s.attrs, groups: append(slices.Clip(s.groups), name)}
}

// each visits the scoped attrs and then the record's own, resolved, with
// their group path. Empty attrs are skipped.
func (s scope) each(r slog.Record, fn func(groups []string, a slog.Attr)) {
	visit := func(groups []string, a slog.Attr) {
		a.Value = a.Value.Resolve()
		if a.Equal(slog.Attr{}) {
			return
		}
		fn(groups, a)
	}
	for _, sa := range s.attrs {
		visit(sa.groups, sa.attr)
	}
	r.Attrs(func(a slog.Attr) bool {
		visit(s.groups, a)
		return true
	})
}

// levelName converts slog.Level to a lowercase name.
func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
