// Package logger is the prefix logger shared by every cmdgate package.
// Output defaults to stderr; the hook command relies on that because
// stdout carries the decision.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Level represents log level
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

type levelInfo struct {
	tag   string
	style lipgloss.Style
}

var levels = [...]levelInfo{
	LevelTrace: {"TRACE", lipgloss.NewStyle().Foreground(lipgloss.Color("#8FA1B3"))},
	LevelDebug: {"DEBUG", lipgloss.NewStyle().Foreground(lipgloss.Color("#96B5B4"))},
	LevelInfo:  {"INFO", lipgloss.NewStyle().Foreground(lipgloss.Color("#A3BE8C"))},
	LevelWarn:  {"WARN", lipgloss.NewStyle().Foreground(lipgloss.Color("#EBCB8B"))},
	LevelError: {"ERROR", lipgloss.NewStyle().Foreground(lipgloss.Color("#BF616A"))},
}

var faint = lipgloss.NewStyle().Faint(true)

// String returns the level tag, e.g. "WARN".
func (l Level) String() string {
	if l < LevelTrace || l > LevelError {
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
	return levels[l].tag
}

// sink is the process-wide logging state.
var sink = struct {
	sync.RWMutex
	level   Level
	colored bool
	out     io.Writer
}{level: LevelWarn, colored: true, out: os.Stderr}

// Logger writes lines tagged with a component prefix.
type Logger struct {
	prefix string
}

// New creates a new logger with the given prefix
func New(prefix string) *Logger {
	return &Logger{prefix: prefix}
}

// ParseLevel converts a string to a Level, returning an error if unrecognized.
// Empty selects warn, the hook default.
func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "warning":
		return LevelWarn, nil
	}
	for l, info := range levels {
		if strings.ToLower(info.tag) == s {
			return Level(l), nil
		}
	}
	return 0, fmt.Errorf("unknown log level %q (valid: trace, debug, info, warn, error)", s)
}

// SetGlobalLevel sets the minimum level written by every logger.
func SetGlobalLevel(level Level) {
	sink.Lock()
	sink.level = level
	sink.Unlock()
}

// SetGlobalLevelFromString is SetGlobalLevel for config values; unknown
// names leave the level unchanged.
func SetGlobalLevelFromString(level string) {
	if l, err := ParseLevel(level); err == nil {
		SetGlobalLevel(l)
	}
}

// SetColored enables or disables lipgloss styling of the level tags.
func SetColored(colored bool) {
	sink.Lock()
	sink.colored = colored
	sink.Unlock()
}

// SetOutput redirects all loggers. Passing nil restores os.Stderr.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	sink.Lock()
	sink.out = w
	sink.Unlock()
}

// Enabled reports whether a message at level would be written.
func Enabled(level Level) bool {
	sink.RLock()
	defer sink.RUnlock()
	return level >= sink.level
}

func (l *Logger) write(level Level, format string, args ...any) {
	sink.RLock()
	if level < sink.level {
		sink.RUnlock()
		return
	}
	colored, out := sink.colored, sink.out
	sink.RUnlock()

	ts := time.Now().Format("15:04:05")
	msg := fmt.Sprintf(format, args...)
	info := levels[level]
	if !colored {
		fmt.Fprintf(out, "%s [%s] [%s] %s\n", ts, info.tag, l.prefix, msg)
		return
	}
	fmt.Fprintf(out, "%s %s %s %s\n",
		faint.Render(ts), info.style.Render("["+info.tag+"]"), faint.Render("["+l.prefix+"]"), msg)
}

// Trace logs a trace message (most verbose)
func (l *Logger) Trace(format string, args ...any) { l.write(LevelTrace, format, args...) }

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...any) { l.write(LevelDebug, format, args...) }

// Info logs an info message
func (l *Logger) Info(format string, args ...any) { l.write(LevelInfo, format, args...) }

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...any) { l.write(LevelWarn, format, args...) }

// Error logs an error message
func (l *Logger) Error(format string, args ...any) { l.write(LevelError, format, args...) }
