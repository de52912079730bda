package memsec

import (
	"sync/atomic"

	"github.com/oblique/memsec/internal/logging"
)

// Logger receives diagnostics. Debug carries best-effort failures such as a
// refused mlock; Error carries the line written before a fatal abort.
type Logger interface {
	Debug(format string, args ...interface{})
	Error(format string, args ...interface{})
}

type loggerBox struct{ Logger }

var currentLogger atomic.Value

func init() {
	currentLogger.Store(loggerBox{logging.New(false, false)})
}

// SetLogger replaces the package logger. A nil logger restores the default,
// which writes errors to stderr and drops debug messages.
func SetLogger(l Logger) {
	if l == nil {
		l = logging.New(false, false)
	}
	currentLogger.Store(loggerBox{l})
}

func getLogger() Logger {
	return currentLogger.Load().(loggerBox).Logger
}
