package scheduler

import (
	"fmt"
	"io"
	"log"
	"strings"
	"time"
)

// LogLevel orders scheduler log lines by severity.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// ParseLogLevel maps a config string to a LogLevel, defaulting to info.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Logger writes leveled scheduler lines.
type Logger struct {
	logger *log.Logger
	level  LogLevel
}

// NewLogger returns a Logger writing lines at or above level to w.
func NewLogger(w io.Writer, level LogLevel) *Logger {
	return &Logger{logger: log.New(w, "", 0), level: level}
}

func (l *Logger) log(level LogLevel, format string, args ...any) {
	if l == nil || level < l.level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.logger.Printf("%s %s scheduler: %s", time.Now().Format(time.RFC3339), level, msg)
}
