package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"time"
)

// Logger provides structured logging capabilities
// This abstraction allows swapping logging implementations
type Logger interface {
	// Error logs an error message
	Error(args ...interface{})

	// Errorf logs a formatted error message
	Errorf(format string, args ...interface{})

	// Warn logs a warning message
	Warn(args ...interface{})

	// Warnf logs a formatted warning message
	Warnf(format string, args ...interface{})

	// Info logs an informational message
	Info(args ...interface{})

	// Infof logs a formatted informational message
	Infof(format string, args ...interface{})

	// Debug logs a debug message
	Debug(args ...interface{})

	// Debugf logs a formatted debug message
	Debugf(format string, args ...interface{})

	// WithFields returns a logger that appends the given fields to every entry
	WithFields(fields map[string]interface{}) Logger

	// WithContext returns a logger carrying the request ID found in ctx, if any
	WithContext(ctx context.Context) Logger
}

// Level is a logging severity
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name (debug, info, warn, error) to a Level
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, &Error{Code: "INVALID_LEVEL", Message: fmt.Sprintf("unknown log level %q", name)}
	}
}

// LoggerConfig configures a logger created by NewLogger
type LoggerConfig struct {
	// Level is the minimum level that is written
	Level Level

	// Output receives DEBUG and INFO entries (default: os.Stdout)
	Output io.Writer

	// ErrorOutput receives WARN and ERROR entries (default: os.Stderr)
	ErrorOutput io.Writer

	// JSON switches to one JSON object per line
	JSON bool
}

// defaultLogger implements Logger using Go's standard log package
// Can be swapped with other logging implementations (e.g., structured loggers)
type defaultLogger struct {
	errorLogger *log.Logger
	warnLogger  *log.Logger
	infoLogger  *log.Logger
	debugLogger *log.Logger
	level       Level
	json        bool
	fields      map[string]interface{}
}

// NewDefaultLogger creates a new default logger implementation
func NewDefaultLogger() Logger {
	return NewLogger(LoggerConfig{Level: LevelInfo})
}

// NewLogger creates a logger from config
func NewLogger(config LoggerConfig) Logger {
	out := config.Output
	if out == nil {
		out = os.Stdout
	}
	errOut := config.ErrorOutput
	if errOut == nil {
		errOut = os.Stderr
	}

	flags := log.LstdFlags | log.Lshortfile
	if config.JSON {
		flags = 0
	}

	return &defaultLogger{
		errorLogger: log.New(errOut, prefix("[ERROR] ", config.JSON), flags),
		warnLogger:  log.New(errOut, prefix("[WARN] ", config.JSON), flags),
		infoLogger:  log.New(out, prefix("[INFO] ", config.JSON), flags),
		debugLogger: log.New(out, prefix("[DEBUG] ", config.JSON), flags),
		level:       config.Level,
		json:        config.JSON,
	}
}

func prefix(p string, json bool) string {
	if json {
		return ""
	}
	return p
}

// Error logs an error message
func (l *defaultLogger) Error(args ...interface{}) {
	l.output(LevelError, l.errorLogger, fmt.Sprint(args...))
}

// Errorf logs a formatted error message
func (l *defaultLogger) Errorf(format string, args ...interface{}) {
	l.output(LevelError, l.errorLogger, fmt.Sprintf(format, args...))
}

// Warn logs a warning message
func (l *defaultLogger) Warn(args ...interface{}) {
	l.output(LevelWarn, l.warnLogger, fmt.Sprint(args...))
}

// Warnf logs a formatted warning message
func (l *defaultLogger) Warnf(format string, args ...interface{}) {
	l.output(LevelWarn, l.warnLogger, fmt.Sprintf(format, args...))
}

// Info logs an informational message
func (l *defaultLogger) Info(args ...interface{}) {
	l.output(LevelInfo, l.infoLogger, fmt.Sprint(args...))
}

// Infof logs a formatted informational message
func (l *defaultLogger) Infof(format string, args ...interface{}) {
	l.output(LevelInfo, l.infoLogger, fmt.Sprintf(format, args...))
}

// Debug logs a debug message
func (l *defaultLogger) Debug(args ...interface{}) {
	l.output(LevelDebug, l.debugLogger, fmt.Sprint(args...))
}

// Debugf logs a formatted debug message
func (l *defaultLogger) Debugf(format string, args ...interface{}) {
	l.output(LevelDebug, l.debugLogger, fmt.Sprintf(format, args...))
}

// WithFields returns a child logger; the receiver is not modified
func (l *defaultLogger) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	child := *l
	child.fields = merged
	return &child
}

// WithContext adds request_id from ctx
func (l *defaultLogger) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		return l
	}
	if id := GetRequestID(ctx); id != "" {
		return l.WithFields(map[string]interface{}{"request_id": id})
	}
	return l
}

// output writes msg at level; calldepth 3 points at the caller of Info/Errorf/...
func (l *defaultLogger) output(level Level, logger *log.Logger, msg string) {
	if level < l.level {
		return
	}
	if l.json {
		entry := map[string]interface{}{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"level":     level.String(),
			"message":   msg,
		}
		if len(l.fields) > 0 {
			entry["fields"] = l.fields
		}
		data, err := json.Marshal(entry)
		if err != nil {
			data = []byte(fmt.Sprintf(`{"level":%q,"message":%q}`, level.String(), msg))
		}
		_ = logger.Output(3, string(data))
		return
	}
	_ = logger.Output(3, msg+formatFields(l.fields))
}

// formatFields renders fields as " key=value" pairs in key order
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	return b.String()
}
