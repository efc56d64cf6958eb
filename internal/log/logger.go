// SPDX-License-Identifier: MIT
//
// Package log is the process-wide levelled logger. It wraps a single logrus
// instance so every package logs in the same format, and mirrors the level
// in an atomic so hot loops can check it without touching logrus.
//
// Nothing in this package may be called from the real-time audio callback.
package log

import (
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

// Constants for log levels.
const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) logrus() logrus.Level {
	switch l {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	case LevelFatal:
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

// ParseLevel converts a string (case-insensitive) to a LogLevel.
// Returns LevelInfo and false if the string is not recognized.
func ParseLevel(levelStr string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false
	}
}

// Fields is an alias so callers don't need to import logrus.
type Fields = logrus.Fields

var (
	currentLevel atomic.Uint32
	logger       = newLogger(os.Stderr)
)

func newLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006/01/02 15:04:05.000000",
	})
	return l
}

func init() {
	SetLevel(LevelInfo)
}

// SetLevel sets the global logging level atomically.
func SetLevel(level LogLevel) {
	currentLevel.Store(uint32(level))
	logger.SetLevel(level.logrus())
}

// GetLevel gets the current global logging level atomically.
func GetLevel() LogLevel {
	return LogLevel(currentLevel.Load())
}

// IsDebug reports whether debug output is enabled.
func IsDebug() bool {
	return GetLevel() <= LevelDebug
}

// SetOutput redirects all log output, typically to a buffer in tests or to
// io.Discard while the terminal monitor owns the screen.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// SetJSON switches between the text and JSON formatters.
func SetJSON(enabled bool) {
	if enabled {
		logger.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// WithFields returns an entry carrying structured fields, e.g.
//
//	log.WithFields(log.Fields{"component": "udp"}).Infof("sending to %s", addr)
func WithFields(fields Fields) *logrus.Entry {
	return logger.WithFields(fields)
}

// WithComponent is shorthand for WithFields with a single "component" field.
func WithComponent(name string) *logrus.Entry {
	return logger.WithField("component", name)
}

func shouldLog(level LogLevel) bool {
	return level >= GetLevel()
}

func Debugf(format string, v ...any) {
	if shouldLog(LevelDebug) {
		logger.Debugf(format, v...)
	}
}

func Infof(format string, v ...any) {
	if shouldLog(LevelInfo) {
		logger.Infof(format, v...)
	}
}

func Warnf(format string, v ...any) {
	if shouldLog(LevelWarn) {
		logger.Warnf(format, v...)
	}
}

func Errorf(format string, v ...any) {
	if shouldLog(LevelError) {
		logger.Errorf(format, v...)
	}
}

// Fatalf logs a formatted fatal message and exits the application.
// Fatal messages are always logged regardless of the current level.
func Fatalf(format string, v ...any) {
	logger.Fatalf(format, v...)
}

func Debug(v ...any) {
	if shouldLog(LevelDebug) {
		logger.Debug(v...)
	}
}

func Info(v ...any) {
	if shouldLog(LevelInfo) {
		logger.Info(v...)
	}
}

func Warn(v ...any) {
	if shouldLog(LevelWarn) {
		logger.Warn(v...)
	}
}

func Error(v ...any) {
	if shouldLog(LevelError) {
		logger.Error(v...)
	}
}

// Fatal logs a fatal message and exits the application.
func Fatal(v ...any) {
	logger.Fatal(v...)
}
