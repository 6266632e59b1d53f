// Package logger provides the leveled logging used across the checker. The
// level is process-wide and safe to flip at runtime; output goes through the
// standard log package so timestamps and destination stay configurable from
// main.
package logger

import (
	"fmt"
	"log"
	"strings"
	"sync/atomic"
)

type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

// current holds the active level; defaults to INFO until configured.
var current atomic.Int32

func init() {
	current.Store(int32(LevelInfo))
}

// ParseLevel maps a config string to a Level. Unknown values fall back to
// INFO rather than failing, so a typo in config never silences logging.
func ParseLevel(s string) Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// SetLogLevel sets the process-wide log level from its string form.
func SetLogLevel(s string) {
	current.Store(int32(ParseLevel(s)))
}

func enabled(l Level) bool {
	return int32(l) >= current.Load()
}

func emit(l Level, format string, v ...interface{}) {
	if !enabled(l) {
		return
	}
	log.Printf("[%s] %s", levelNames[l], fmt.Sprintf(format, v...))
}

// Debug logs diagnostic detail, suppressed unless the level is DEBUG.
func Debug(format string, v ...interface{}) {
	emit(LevelDebug, format, v...)
}

// Info logs normal operational events.
func Info(format string, v ...interface{}) {
	emit(LevelInfo, format, v...)
}

// Warn logs recoverable problems.
func Warn(format string, v ...interface{}) {
	emit(LevelWarn, format, v...)
}

// Error logs failures that need attention.
func Error(format string, v ...interface{}) {
	emit(LevelError, format, v...)
}
