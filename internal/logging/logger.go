package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/client9/reopen"
	"github.com/sytallax/prettylog"
)

// Config represents logging configuration
type Config struct {
	Level  string `json:"level" yaml:"level" envconfig:"level"`
	Format string `json:"format" yaml:"format" envconfig:"format"`
	// File, when set, sends output to a file that can be reopened on SIGHUP
	File string `json:"file" yaml:"file" envconfig:"file"`
}

// Logger wraps slog.Logger with additional functionality
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
	out   *reopen.FileWriter
}

// New creates a new logger writing to stdout
func New(cfg Config) *Logger {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter creates a new logger writing to w.
// The pretty format always writes to stdout, so it is only honoured when w is stdout.
func NewWithWriter(cfg Config, w io.Writer) *Logger {
	level := new(slog.LevelVar)
	level.Set(parseLevel(cfg.Level))

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "pretty":
		if w == os.Stdout {
			handler = prettylog.NewHandler(opts)
		} else {
			handler = slog.NewTextHandler(w, opts)
		}
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
		level:  level,
	}
}

// Open creates a logger honouring cfg.File
func Open(cfg Config) (*Logger, error) {
	if cfg.File == "" {
		return New(cfg), nil
	}

	fw, err := reopen.NewFileWriter(cfg.File)
	if err != nil {
		return nil, err
	}

	l := NewWithWriter(cfg, fw)
	l.out = fw
	return l, nil
}

// Reopen reopens the log file, if any. Used after log rotation.
func (l *Logger) Reopen() error {
	if l.out == nil {
		return nil
	}
	return l.out.Reopen()
}

// Close closes the log file, if any
func (l *Logger) Close() error {
	if l.out == nil {
		return nil
	}
	return l.out.Close()
}

// SetLevel changes the level of this logger and every logger derived from it
func (l *Logger) SetLevel(level string) {
	l.level.Set(parseLevel(level))
}

// Level returns the current level
func (l *Logger) Level() slog.Level {
	return l.level.Level()
}

// WithFields adds fields to the logger
func (l *Logger) WithFields(fields map[string]any) *Logger {
	attrs := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		attrs = append(attrs, k, v)
	}
	return &Logger{
		Logger: l.With(attrs...),
		level:  l.level,
		out:    l.out,
	}
}

// parseLevel parses a string log level
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
