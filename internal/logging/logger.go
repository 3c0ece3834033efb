package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// LogLevel represents the logging level
type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
	FatalLevel LogLevel = "fatal"
)

// Logger holds the zerolog logger instance
type Logger struct {
	logger zerolog.Logger
}

// LogContext holds contextual information for logging
type LogContext struct {
	RunID    string `json:"run_id,omitempty"`
	FilePath string `json:"file_path,omitempty"`
	Stage    string `json:"stage,omitempty"`
	Service  string `json:"service,omitempty"`
	Key      string `json:"key,omitempty"`
	Attempt  int    `json:"attempt,omitempty"`
	Duration int64  `json:"duration_ms,omitempty"`
	Module   string `json:"module,omitempty"`
}

// NewLogger creates a new logger instance with the specified log level
func NewLogger(logLevel LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}

	level, err := zerolog.ParseLevel(string(logLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	return &Logger{
		logger: logger,
	}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logger.Debug().Msg(fmt.Sprintf(format, args...))
}

// Info logs an info message
func (l *Logger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.logger.Info().Msg(fmt.Sprintf(format, args...))
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logger.Warn().Msg(fmt.Sprintf(format, args...))
}

// Error logs an error message
func (l *Logger) Error(msg string) {
	l.logger.Error().Msg(msg)
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msg(fmt.Sprintf(format, args...))
}

// Fatal logs a fatal message, then calls os.Exit(1)
func (l *Logger) Fatal(msg string) {
	l.logger.Fatal().Msg(msg)
}

// Fatalf logs a formatted fatal message, then calls os.Exit(1)
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.logger.Fatal().Msg(fmt.Sprintf(format, args...))
}

// WithField adds a single field to the logger
func (l *Logger) WithField(key string, value interface{}) *zerolog.Logger {
	logger := l.logger.With().Interface(key, value).Logger()
	return &logger
}

// WithFields adds multiple fields to the logger
func (l *Logger) WithFields(fields map[string]interface{}) *zerolog.Logger {
	logCtx := l.logger.With()

	for key, value := range fields {
		logCtx = logCtx.Interface(key, value)
	}

	logger := logCtx.Logger()
	return &logger
}

// WithError adds an error field to the logger
func (l *Logger) WithError(err error) *zerolog.Logger {
	logger := l.logger.With().Err(err).Logger()
	return &logger
}

// WithContextFields adds context-specific fields to the logger
func (l *Logger) WithContextFields(ctx LogContext) *zerolog.Logger {
	logCtx := l.logger.With()

	if ctx.RunID != "" {
		logCtx = logCtx.Str("run_id", ctx.RunID)
	}
	if ctx.FilePath != "" {
		logCtx = logCtx.Str("file_path", ctx.FilePath)
	}
	if ctx.Stage != "" {
		logCtx = logCtx.Str("stage", ctx.Stage)
	}
	if ctx.Service != "" {
		logCtx = logCtx.Str("service", ctx.Service)
	}
	if ctx.Key != "" {
		logCtx = logCtx.Str("key", ctx.Key)
	}
	if ctx.Attempt != 0 {
		logCtx = logCtx.Int("attempt", ctx.Attempt)
	}
	if ctx.Duration != 0 {
		logCtx = logCtx.Int64("duration_ms", ctx.Duration)
	}
	if ctx.Module != "" {
		logCtx = logCtx.Str("module", ctx.Module)
	}

	logger := logCtx.Logger()
	return &logger
}

// SetLogLevel dynamically changes the logging level
func (l *Logger) SetLogLevel(logLevel LogLevel) error {
	level, err := zerolog.ParseLevel(string(logLevel))
	if err != nil {
		return fmt.Errorf("invalid log level: %s", logLevel)
	}

	l.logger = l.logger.Level(level)
	return nil
}
