package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	slogmulti "github.com/samber/slog-multi"
)

// Logger is the logging interface used across the scheduler. Call sites
// pass structured key-value pairs after the message.
type Logger interface {
	Debug(msg string, tags ...any)
	Info(msg string, tags ...any)
	Warn(msg string, tags ...any)
	Error(msg string, tags ...any)
	Fatal(msg string, tags ...any)

	Debugf(format string, v ...any)
	Infof(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)
	Fatalf(format string, v ...any)

	With(attrs ...any) Logger
}

// Default is the package-level logger used when no logger is configured.
var Default = NewLogger()

type config struct {
	debug   bool
	format  string
	quiet   bool
	logFile *os.File
	writer  io.Writer
}

// Option configures a Logger.
type Option func(*config)

// WithDebug enables debug-level output.
func WithDebug() Option {
	return func(c *config) { c.debug = true }
}

// WithFormat sets the output format ("text" or "json").
func WithFormat(format string) Option {
	return func(c *config) { c.format = format }
}

// WithQuiet suppresses stderr output; a configured log file still
// receives all records.
func WithQuiet() Option {
	return func(c *config) { c.quiet = true }
}

// WithLogFile tees all records to the given file.
func WithLogFile(f *os.File) Option {
	return func(c *config) { c.logFile = f }
}

// WithWriter overrides the stderr destination.
func WithWriter(w io.Writer) Option {
	return func(c *config) { c.writer = w }
}

// NewLogger returns a Logger backed by log/slog.
func NewLogger(opts ...Option) Logger {
	cfg := &config{format: "text", writer: os.Stderr}
	for _, opt := range opts {
		opt(cfg)
	}

	level := slog.LevelInfo
	if cfg.debug {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level, AddSource: true}

	var handlers []slog.Handler
	if !cfg.quiet {
		handlers = append(handlers, newHandler(cfg.writer, cfg.format, hopts))
	}
	if cfg.logFile != nil {
		handlers = append(handlers, newHandler(cfg.logFile, cfg.format, hopts))
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(io.Discard, hopts)
	case 1:
		handler = handlers[0]
	default:
		handler = slogmulti.Fanout(handlers...)
	}
	return &appLogger{logger: slog.New(handler)}
}

func newHandler(w io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

type appLogger struct {
	logger *slog.Logger
}

var _ Logger = (*appLogger)(nil)

func (a *appLogger) Debug(msg string, tags ...any) { a.write(slog.LevelDebug, msg, tags...) }
func (a *appLogger) Info(msg string, tags ...any)  { a.write(slog.LevelInfo, msg, tags...) }
func (a *appLogger) Warn(msg string, tags ...any)  { a.write(slog.LevelWarn, msg, tags...) }
func (a *appLogger) Error(msg string, tags ...any) { a.write(slog.LevelError, msg, tags...) }

func (a *appLogger) Fatal(msg string, tags ...any) {
	a.write(slog.LevelError, msg, tags...)
	os.Exit(1)
}

func (a *appLogger) Debugf(format string, v ...any) {
	a.write(slog.LevelDebug, fmt.Sprintf(format, v...))
}

func (a *appLogger) Infof(format string, v ...any) {
	a.write(slog.LevelInfo, fmt.Sprintf(format, v...))
}

func (a *appLogger) Warnf(format string, v ...any) {
	a.write(slog.LevelWarn, fmt.Sprintf(format, v...))
}

func (a *appLogger) Errorf(format string, v ...any) {
	a.write(slog.LevelError, fmt.Sprintf(format, v...))
}

func (a *appLogger) Fatalf(format string, v ...any) {
	a.write(slog.LevelError, fmt.Sprintf(format, v...))
	os.Exit(1)
}

func (a *appLogger) With(attrs ...any) Logger {
	return &appLogger{logger: a.logger.With(attrs...)}
}

// write records the caller of the exported method so source locations
// point at the call site rather than this package.
func (a *appLogger) write(level slog.Level, msg string, tags ...any) {
	if !a.logger.Enabled(context.Background(), level) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(tags...)
	_ = a.logger.Handler().Handle(context.Background(), r)
}
