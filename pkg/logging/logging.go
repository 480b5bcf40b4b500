// Package logging provides structured logging for the wallet store daemon.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Level represents a log level.
type Level = log.Level

// Log levels.
const (
	DebugLevel = log.DebugLevel
	InfoLevel  = log.InfoLevel
	WarnLevel  = log.WarnLevel
	ErrorLevel = log.ErrorLevel
	FatalLevel = log.FatalLevel
)

// Logger wraps charmbracelet/log. Component loggers share the parent's
// sink, format and level.
type Logger struct {
	*log.Logger
	opts   log.Options
	output io.Writer
}

// Config holds logger configuration.
type Config struct {
	Level string
	// Format is "text" (default), "json" or "logfmt".
	Format     string
	TimeFormat string
	Prefix     string
	Output     io.Writer
}

// DefaultConfig returns a default logging configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		Format:     "text",
		TimeFormat: time.TimeOnly,
		Output:     os.Stderr,
	}
}

// New creates a logger from cfg. A nil cfg means DefaultConfig.
func New(cfg *Config) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	opts := log.Options{
		ReportTimestamp: true,
		TimeFormat:      cfg.TimeFormat,
		Formatter:       ParseFormat(cfg.Format),
		Level:           ParseLevel(cfg.Level),
	}
	if opts.TimeFormat == "" {
		opts.TimeFormat = time.TimeOnly
	}
	return build(output, opts, cfg.Prefix)
}

func build(output io.Writer, opts log.Options, prefix string) *Logger {
	opts.Prefix = prefix
	return &Logger{Logger: log.NewWithOptions(output, opts), opts: opts, output: output}
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *Logger {
	return New(&Config{Level: "fatal", Output: io.Discard})
}

// ParseLevel maps a level name to a Level. Unknown names mean info.
func ParseLevel(level string) Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	case "fatal":
		return FatalLevel
	}
	return InfoLevel
}

// ParseFormat maps a format name to a formatter. Unknown names mean text.
func ParseFormat(format string) log.Formatter {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		return log.JSONFormatter
	case "logfmt":
		return log.LogfmtFormatter
	}
	return log.TextFormatter
}

// With returns a logger carrying keyvals on every line.
func (l *Logger) With(keyvals ...interface{}) *Logger {
	return &Logger{Logger: l.Logger.With(keyvals...), opts: l.opts, output: l.output}
}

// Component returns a logger prefixed with name. It follows the parent's
// current level.
func (l *Logger) Component(name string) *Logger {
	opts := l.opts
	opts.Level = l.GetLevel()
	return build(l.output, opts, name)
}

var defaultLogger = New(DefaultConfig())

// SetDefault sets the default logger.
func SetDefault(l *Logger) {
	defaultLogger = l
}

// GetDefault returns the default logger.
func GetDefault() *Logger {
	return defaultLogger
}

func Debug(msg interface{}, keyvals ...interface{}) { defaultLogger.Debug(msg, keyvals...) }
func Info(msg interface{}, keyvals ...interface{})  { defaultLogger.Info(msg, keyvals...) }
func Warn(msg interface{}, keyvals ...interface{})  { defaultLogger.Warn(msg, keyvals...) }
func Error(msg interface{}, keyvals ...interface{}) { defaultLogger.Error(msg, keyvals...) }
func Fatal(msg interface{}, keyvals ...interface{}) { defaultLogger.Fatal(msg, keyvals...) }

func Debugf(format string, args ...interface{}) { defaultLogger.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { defaultLogger.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { defaultLogger.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { defaultLogger.Errorf(format, args...) }
func Fatalf(format string, args ...interface{}) { defaultLogger.Fatalf(format, args...) }
