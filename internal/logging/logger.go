package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Logger provides leveled logging with redaction support
type Logger struct {
	debug   bool
	noColor bool

	mu  sync.Mutex
	out io.Writer
}

// New creates a new logger writing to stderr
func New(debug, noColor bool) *Logger {
	return NewWithWriter(os.Stderr, debug, noColor)
}

// NewWithWriter creates a logger writing to w
func NewWithWriter(w io.Writer, debug, noColor bool) *Logger {
	return &Logger{
		debug:   debug,
		noColor: noColor,
		out:     w,
	}
}

// DebugEnabled reports whether Debug messages are emitted
func (l *Logger) DebugEnabled() bool {
	return l.debug
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.print("\033[32m✓\033[0m ", "✓ ", format, args)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.print("\033[33m⚠\033[0m ", "⚠ ", format, args)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.print("\033[31m✗\033[0m ", "✗ ", format, args)
}

// Debug logs a debug message if debug mode is enabled
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.print("\033[36m[DEBUG]\033[0m ", "[DEBUG] ", format, args)
}

func (l *Logger) print(colored, plain, format string, args []interface{}) {
	prefix := colored
	if l.noColor {
		prefix = plain
	}
	msg := fmt.Sprintf(format, args...)

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "%s%s\n", prefix, msg)
}

// Secret represents sensitive bytes that must never reach a log line
type Secret []byte

// String implements the Stringer interface, always returning a redacted value
func (s Secret) String() string {
	return fmt.Sprintf("[REDACTED %d bytes]", len(s))
}

// GoString implements the GoStringer interface for %#v formatting
func (s Secret) GoString() string {
	return s.String()
}
