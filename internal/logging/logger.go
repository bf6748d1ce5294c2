package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the logging level
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

const redactedValue = "********"

// Logger provides structured logging for one backup run
type Logger struct {
	logger *logrus.Logger
	base   *logrus.Entry
	level  LogLevel
	file   io.Closer
}

// Config holds logger configuration
type Config struct {
	Level     LogLevel
	Output    io.Writer
	Format    string // "text" or "json"
	LogFile   string
	MaxSizeMB int
	// Fields are attached to every record, e.g. run_id and server.
	Fields map[string]interface{}
	// Secrets are masked in every message and string field.
	Secrets []string
}

// NewLogger creates a new logger with the specified configuration.
// When LogFile is set, records are also written there, uncolored,
// through a size-capped rotating writer.
func NewLogger(config Config) (*Logger, error) {
	logger := logrus.New()

	out := config.Output
	if out == nil {
		out = os.Stdout
	}
	logger.SetOutput(out)
	logger.SetFormatter(newFormatter(config.Format, !isTerminal(out)))
	logger.SetLevel(toLogrusLevel(config.Level))

	if len(config.Secrets) > 0 {
		logger.AddHook(newRedactHook(config.Secrets))
	}

	l := &Logger{
		logger: logger,
		level:  config.Level,
	}

	if config.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(config.LogFile), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory for %s: %w", config.LogFile, err)
		}
		maxSize := config.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 100
		}
		// Rotated parts are named {stem}-{time}.log and are pruned by
		// log retention together with the run they belong to.
		sink := &lumberjack.Logger{
			Filename:   config.LogFile,
			MaxSize:    maxSize,
			MaxBackups: 1,
			LocalTime:  true,
		}
		logger.AddHook(&fileHook{
			writer:    sink,
			formatter: newFormatter(config.Format, true),
		})
		l.file = sink
	}

	l.base = logger.WithFields(logrus.Fields(config.Fields))
	return l, nil
}

// NewDefaultLogger creates a logger with default configuration
func NewDefaultLogger() *Logger {
	logger, _ := NewLogger(Config{
		Level:  LogLevelInfo,
		Output: os.Stdout,
		Format: "text",
	})
	return logger
}

// NewNopLogger discards everything; used by tests and dry paths
func NewNopLogger() *Logger {
	logger, _ := NewLogger(Config{
		Level:  LogLevelError,
		Output: io.Discard,
		Format: "text",
	})
	return logger
}

// Close flushes and closes the log file, if any
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	return l.base.WithFields(fields)
}

// WithField returns a logger with a single additional field
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.base.WithField(key, value)
}

// WithError returns a logger carrying err in the error field
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.base.WithError(err)
}

// Info logs an info message
func (l *Logger) Info(msg string) {
	l.base.Info(msg)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) {
	l.base.Debug(msg)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) {
	l.base.Warn(msg)
}

// Error logs an error message
func (l *Logger) Error(msg string) {
	l.base.Error(msg)
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() LogLevel {
	return l.level
}

// SetLevel sets the log level
func (l *Logger) SetLevel(level LogLevel) {
	l.level = level
	l.logger.SetLevel(toLogrusLevel(level))
}

// LogOperationStart logs the start of an operation and returns a function to log completion
func (l *Logger) LogOperationStart(operation string, fields map[string]interface{}) func(error) {
	startTime := time.Now()

	logFields := logrus.Fields{
		"operation": operation,
		"status":    "started",
	}

	for k, v := range fields {
		logFields[k] = v
	}

	l.base.WithFields(logFields).Info("Operation started")

	return func(err error) {
		duration := time.Since(startTime)
		logFields["status"] = "completed"
		logFields["duration"] = duration.Round(time.Millisecond).String()

		if err != nil {
			logFields["error"] = err.Error()
			logFields["success"] = false
			l.base.WithFields(logFields).Error("Operation failed")
		} else {
			logFields["success"] = true
			l.base.WithFields(logFields).Info("Operation completed")
		}
	}
}

// ParseLevel maps a config string onto a LogLevel
func ParseLevel(s string) (LogLevel, error) {
	switch LogLevel(strings.ToLower(strings.TrimSpace(s))) {
	case LogLevelDebug:
		return LogLevelDebug, nil
	case LogLevelInfo, "":
		return LogLevelInfo, nil
	case LogLevelWarn, "warning":
		return LogLevelWarn, nil
	case LogLevelError:
		return LogLevelError, nil
	default:
		return "", fmt.Errorf("unknown log level %q", s)
	}
}

// RedactArgs returns a printable command line with any argument that
// carries a secret masked. Used for logging external tool invocations.
func RedactArgs(name string, args []string, secrets ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, name)
	for _, arg := range args {
		parts = append(parts, redactString(arg, secrets))
	}
	return strings.Join(parts, " ")
}

func toLogrusLevel(level LogLevel) logrus.Level {
	switch level {
	case LogLevelDebug:
		return logrus.DebugLevel
	case LogLevelWarn:
		return logrus.WarnLevel
	case LogLevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

func newFormatter(format string, disableColors bool) logrus.Formatter {
	if format == "json" {
		return &logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		}
	}
	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		DisableColors:   disableColors,
		ForceColors:     !disableColors,
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func redactString(s string, secrets []string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		s = strings.ReplaceAll(s, secret, redactedValue)
	}
	return s
}
