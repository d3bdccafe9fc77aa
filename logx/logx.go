// Package logx provides the printf-style logger used throughout mcpcontent.
package logx

import (
	"io"
	"log"
	"os"
	"sync"

	"github.com/localrivet/mcpcontent/protocol"
)

// Logger defines the interface for logging.
type Logger interface {
	Debug(format string, v ...interface{})
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
	SetLevel(level protocol.LoggingLevel)
}

// DefaultLogger provides a levelled logger on top of the standard log package.
type DefaultLogger struct {
	logger *log.Logger
	level  protocol.LoggingLevel
	mu     sync.RWMutex
}

// NewDefaultLogger creates a new logger writing to stderr at info level.
func NewDefaultLogger() *DefaultLogger {
	return NewLogger(os.Stderr, "[mcpcontent] ")
}

// NewLogger creates a logger writing to w with the given prefix.
func NewLogger(w io.Writer, prefix string) *DefaultLogger {
	return &DefaultLogger{
		logger: log.New(w, prefix, log.LstdFlags|log.Lmsgprefix),
		level:  protocol.LogLevelInfo,
	}
}

func (l *DefaultLogger) Debug(msg string, args ...interface{}) {
	l.logf(protocol.LogLevelDebug, "DEBUG: ", msg, args...)
}
func (l *DefaultLogger) Info(msg string, args ...interface{}) {
	l.logf(protocol.LogLevelInfo, "INFO: ", msg, args...)
}
func (l *DefaultLogger) Warn(msg string, args ...interface{}) {
	l.logf(protocol.LogLevelWarn, "WARN: ", msg, args...)
}
func (l *DefaultLogger) Error(msg string, args ...interface{}) {
	l.logf(protocol.LogLevelError, "ERROR: ", msg, args...)
}

// SetLevel updates the minimum level that is written.
func (l *DefaultLogger) SetLevel(level protocol.LoggingLevel) {
	if levelToSeverity(level) < 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Level returns the current minimum level.
func (l *DefaultLogger) Level() protocol.LoggingLevel {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

func (l *DefaultLogger) logf(level protocol.LoggingLevel, tag, msg string, args ...interface{}) {
	if levelToSeverity(level) > levelToSeverity(l.Level()) {
		return
	}
	l.logger.Printf(tag+msg, args...)
}

// levelToSeverity maps a protocol level to its RFC 5424 severity (lower is more severe).
// Unknown levels map to -1.
func levelToSeverity(level protocol.LoggingLevel) int {
	switch level {
	case protocol.LogLevelEmergency:
		return 0
	case protocol.LogLevelAlert:
		return 1
	case protocol.LogLevelCritical:
		return 2
	case protocol.LogLevelError:
		return 3
	case protocol.LogLevelWarn:
		return 4
	case protocol.LogLevelNotice:
		return 5
	case protocol.LogLevelInfo:
		return 6
	case protocol.LogLevelDebug:
		return 7
	default:
		return -1
	}
}

// ParseLevel converts a configuration string into a LoggingLevel.
// "warn" is accepted as an alias for "warning".
func ParseLevel(s string) (protocol.LoggingLevel, bool) {
	if s == "warn" {
		return protocol.LogLevelWarn, true
	}
	level := protocol.LoggingLevel(s)
	return level, levelToSeverity(level) >= 0
}

// nopLogger discards everything.
type nopLogger struct{}

// NewNopLogger returns a Logger that discards all output.
func NewNopLogger() Logger { return nopLogger{} }

func (nopLogger) Debug(string, ...interface{})   {}
func (nopLogger) Info(string, ...interface{})    {}
func (nopLogger) Warn(string, ...interface{})    {}
func (nopLogger) Error(string, ...interface{})   {}
func (nopLogger) SetLevel(protocol.LoggingLevel) {}

// Ensure interface compliance
var (
	_ Logger = (*DefaultLogger)(nil)
	_ Logger = nopLogger{}
)
