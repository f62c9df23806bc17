// Package observability provides the logging, metrics, and tracing surface
// shared by every other package in this module.
package observability

import (
	"fmt"
	"log"
	"os"
	"time"
)

// LogLevel is the severity of a log record.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
	LogLevelFatal LogLevel = "fatal"
)

var levelOrder = map[LogLevel]int{
	LogLevelDebug: 0,
	LogLevelInfo:  1,
	LogLevelWarn:  2,
	LogLevelError: 3,
	LogLevelFatal: 4,
}

// Logger is the structured logging interface used throughout the module.
// Every call site passes a message and a flat field map rather than
// building format strings, so log lines stay greppable.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Fatal(msg string, fields map[string]interface{})

	// With returns a child logger that merges fields into every call.
	With(fields map[string]interface{}) Logger
	// WithPrefix returns a child logger tagged with a component name.
	WithPrefix(prefix string) Logger
}

// StandardLogger writes timestamped, leveled lines to stderr. Stderr is
// mandatory, not a preference: stdio MCP transports use stdout as the
// wire, and a stray log line there corrupts every in-flight tool call.
type StandardLogger struct {
	prefix string
	level  LogLevel
	logger *log.Logger
	fields map[string]interface{}
}

// NewStandardLogger creates a logger at LogLevelInfo writing to stderr.
func NewStandardLogger(prefix string) Logger {
	return &StandardLogger{
		prefix: prefix,
		level:  LogLevelInfo,
		logger: log.New(os.Stderr, "", 0),
	}
}

// NewLogger returns a StandardLogger, defaulting the prefix to "rag-mcp"
// when it is empty.
func NewLogger(prefix string) Logger {
	if prefix == "" {
		prefix = "rag-mcp"
	}
	return NewStandardLogger(prefix)
}

func (l *StandardLogger) Debug(msg string, fields map[string]interface{}) {
	l.emit(LogLevelDebug, msg, fields)
}

func (l *StandardLogger) Info(msg string, fields map[string]interface{}) {
	l.emit(LogLevelInfo, msg, fields)
}

func (l *StandardLogger) Warn(msg string, fields map[string]interface{}) {
	l.emit(LogLevelWarn, msg, fields)
}

func (l *StandardLogger) Error(msg string, fields map[string]interface{}) {
	l.emit(LogLevelError, msg, fields)
}

func (l *StandardLogger) Fatal(msg string, fields map[string]interface{}) {
	l.emit(LogLevelFatal, msg, fields)
	os.Exit(1)
}

func (l *StandardLogger) With(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &StandardLogger{prefix: l.prefix, level: l.level, logger: l.logger, fields: merged}
}

func (l *StandardLogger) WithPrefix(prefix string) Logger {
	return &StandardLogger{prefix: prefix, level: l.level, logger: l.logger, fields: l.fields}
}

func (l *StandardLogger) emit(level LogLevel, msg string, fields map[string]interface{}) {
	if levelOrder[level] < levelOrder[l.level] {
		return
	}
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
	var b []byte
	b = fmt.Appendf(b, "%s [%s] [%s] %s", ts, level, l.prefix, msg)
	for k, v := range l.fields {
		b = fmt.Appendf(b, " %s=%v", k, v)
	}
	for k, v := range fields {
		b = fmt.Appendf(b, " %s=%v", k, v)
	}
	l.logger.Println(string(b))
}

// NoopLogger discards everything. Useful in unit tests that assert on
// behavior, not on log output.
type NoopLogger struct{}

func (NoopLogger) Debug(string, map[string]interface{}) {}
func (NoopLogger) Info(string, map[string]interface{})  {}
func (NoopLogger) Warn(string, map[string]interface{})  {}
func (NoopLogger) Error(string, map[string]interface{}) {}
func (NoopLogger) Fatal(string, map[string]interface{}) {}
func (l NoopLogger) With(map[string]interface{}) Logger { return l }
func (l NoopLogger) WithPrefix(string) Logger            { return l }

// NewNoopLogger returns a Logger that discards all output.
func NewNoopLogger() Logger { return NoopLogger{} }
