package logging

import (
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
)

const defaultBufferSize = 1000

// Logger is a duck-typed interface satisfied by *slog.Logger.
// Use this interface instead of *slog.Logger to decouple from the concrete type.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

// levelFor returns the configured level for module, falling back to the
// global level and then to info.
func (c Config) levelFor(module string) slog.Level {
	if s, ok := c.Modules[module]; ok {
		if l, ok := ParseLevel(s); ok {
			return l
		}
	}
	if l, ok := ParseLevel(c.Level); ok {
		return l
	}
	return slog.LevelInfo
}

type module struct {
	level  *slog.LevelVar
	logger *slog.Logger
}

var (
	mutex       sync.RWMutex
	config      Config
	modules     = make(map[string]*module)
	globalLevel = &slog.LevelVar{}
	logBuffer   = NewRingBuffer(defaultBufferSize)
	logCallback LogCallback
)

// Initialize sets up the logging system and rebuilds every module logger
// with the configured format.
func Initialize(cfg Config) {
	mutex.Lock()
	defer mutex.Unlock()

	config = cfg
	globalLevel.Set(cfg.levelFor(""))
	for name, m := range modules {
		m.level.Set(cfg.levelFor(name))
		m.logger = slog.New(newHandler(cfg.Format, m.level)).With("module", name)
	}
	slog.SetDefault(slog.New(newHandler(cfg.Format, globalLevel)))
}

// SetLevels updates levels in place. Loggers already handed out pick up the
// change; the output format is left alone.
func SetLevels(cfg Config) {
	mutex.Lock()
	defer mutex.Unlock()

	config.Level = cfg.Level
	config.Modules = cfg.Modules
	globalLevel.Set(config.levelFor(""))
	for name, m := range modules {
		m.level.Set(config.levelFor(name))
	}
}

// Levels returns the effective level of every known module.
func Levels() map[string]string {
	mutex.RLock()
	defer mutex.RUnlock()
	out := make(map[string]string, len(modules))
	for name, m := range modules {
		out[name] = levelName(m.level.Level())
	}
	return out
}

// GlobalLevel returns the level applied to modules without an override.
func GlobalLevel() string {
	return levelName(globalLevel.Level())
}

// Modules returns the names of the registered module loggers, sorted.
func Modules() []string {
	mutex.RLock()
	defer mutex.RUnlock()
	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetBuffer returns the log ring buffer for reading historical logs.
func GetBuffer() *RingBuffer {
	return logBuffer
}

// SetLogCallback sets a callback to be called for each new log entry.
// Used for publishing log events to SSE clients.
func SetLogCallback(callback LogCallback) {
	mutex.Lock()
	defer mutex.Unlock()
	logCallback = callback
}

func currentCallback() LogCallback {
	mutex.RLock()
	defer mutex.RUnlock()
	return logCallback
}

// GetLogger returns a logger for the specified module, creating it if needed.
func GetLogger(name string) *slog.Logger {
	mutex.RLock()
	if m, ok := modules[name]; ok {
		defer mutex.RUnlock()
		return m.logger
	}
	mutex.RUnlock()

	mutex.Lock()
	defer mutex.Unlock()
	// Double-check in case another goroutine created it
	if m, ok := modules[name]; ok {
		return m.logger
	}
	level := &slog.LevelVar{}
	level.Set(config.levelFor(name))
	m := &module{
		level:  level,
		logger: slog.New(newHandler(config.Format, level)).With("module", name),
	}
	modules[name] = m
	return m.logger
}

// newHandler builds the handler chain: stdout, journal when available and
// the ring buffer.
func newHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var stdout slog.Handler
	if format == "json" {
		stdout = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		stdout = slog.NewTextHandler(os.Stdout, opts)
	}

	var handlers []slog.Handler
	if isStdoutAvailable() {
		handlers = append(handlers, stdout)
	}
	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}
	handlers = append(handlers, NewBufferHandler(logBuffer, level, currentCallback))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return NewMultiHandler(handlers...)
}

// isStdoutAvailable checks if stdout is connected to a terminal, pipe, socket, or file.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	// /dev/null is a char device too, but harmless to write to
	return (mode&os.ModeCharDevice) != 0 || (mode&os.ModeNamedPipe) != 0 || (mode&os.ModeSocket) != 0 || mode.IsRegular()
}

// ParseLevel converts a level name to slog.Level.
func ParseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
