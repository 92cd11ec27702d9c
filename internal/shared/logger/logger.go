package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Logger is the slog logger used by the HTTP middleware. Modules log through
// zap (NewZapLogger); both are built from the same Config.
type Logger struct {
	*slog.Logger
}

// Config holds logger configuration.
type Config struct {
	Level   string // debug, info, warn, error
	Format  string // json, text
	Service string // attached to every entry as "service"
	Output  io.Writer
}

// DefaultConfig returns default logger configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:   "info",
		Format:  "json",
		Service: "artboard",
		Output:  os.Stdout,
	}
}

// New creates a new Logger with the given configuration.
func New(cfg *Config) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	level := slogLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if isText(cfg.Format) {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	l := slog.New(handler)
	if cfg.Service != "" {
		l = l.With("service", cfg.Service)
	}
	return &Logger{Logger: l}
}

// zapLevel parses a configured level; unknown values mean info.
func zapLevel(level string) zapcore.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	l, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}

// slogLevel maps a configured level onto slog, agreeing with zapLevel.
func slogLevel(level string) slog.Level {
	switch l := zapLevel(level); {
	case l <= zapcore.DebugLevel:
		return slog.LevelDebug
	case l == zapcore.InfoLevel:
		return slog.LevelInfo
	case l == zapcore.WarnLevel:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

func isText(format string) bool {
	return strings.EqualFold(format, "text")
}

// With returns a new Logger with the given attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

type contextKey struct{}

var fallback = New(nil)

// ContextWithLogger returns a new context carrying the request logger.
func ContextWithLogger(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the request logger, or the process default.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(contextKey{}).(*Logger); ok {
		return l
	}
	return fallback
}

// Err returns an error attribute.
func Err(err error) slog.Attr {
	return slog.Any("error", err)
}
