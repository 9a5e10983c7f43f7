// Package logging builds the process-wide structured logger.
//
// Records are written through the slog API and encoded by zap. The default
// console format renders one line per record as "<timestamp>: <message>",
// followed by the record's attributes.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// FormatConsole renders "<timestamp>: <message>" lines
	FormatConsole = "console"
	// FormatJSON renders one JSON object per line
	FormatJSON = "json"
)

// Option configures the logger
type Option func(*options)

type options struct {
	level  slog.Level
	format string
}

// WithLevel sets the minimum level that is written
func WithLevel(level slog.Level) Option {
	return func(o *options) {
		o.level = level
	}
}

// WithFormat selects the console or json encoding
func WithFormat(format string) Option {
	return func(o *options) {
		o.format = format
	}
}

// NewHandler returns an slog.Handler writing to w
func NewHandler(w io.Writer, opts ...Option) slog.Handler {
	o := &options{level: slog.LevelInfo, format: FormatConsole}
	for _, opt := range opts {
		opt(o)
	}

	core := zapcore.NewCore(newEncoder(o.format), zapcore.Lock(zapcore.AddSync(w)), zapLevel(o.level))
	return &levelHandler{
		level:   o.level,
		handler: logr.ToSlogHandler(zapr.NewLogger(zap.New(core))),
	}
}

// levelHandler drops records below level before they reach logr, whose
// Enabled check sees warn and info as the same verbosity.
type levelHandler struct {
	level   slog.Level
	handler slog.Handler
}

func (h *levelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level && h.handler.Enabled(ctx, level)
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handler.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithGroup(name)}
}

// ParseLevel maps a LOG_LEVEL value to an slog.Level.
// The second return value is false when the value was not recognised.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// ParseFormat maps a LOG_FORMAT value to a known format, defaulting to console
func ParseFormat(s string) string {
	if strings.EqualFold(strings.TrimSpace(s), FormatJSON) {
		return FormatJSON
	}
	return FormatConsole
}

func newEncoder(format string) zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		MessageKey:     "msg",
		NameKey:        "logger",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
	}

	if format == FormatJSON {
		cfg.LevelKey = "level"
		return zapcore.NewJSONEncoder(cfg)
	}

	cfg.ConsoleSeparator = ": "
	return zapcore.NewConsoleEncoder(cfg)
}

// zapLevel converts an slog level to the zap level that enables it once it
// has passed through logr, where debug records arrive as V(4) and warn
// records are gated as V(0). levelHandler separates warn from info.
func zapLevel(level slog.Level) zapcore.Level {
	switch {
	case level <= slog.LevelDebug:
		return zapcore.Level(slog.LevelDebug)
	case level < slog.LevelError:
		return zapcore.InfoLevel
	default:
		return zapcore.ErrorLevel
	}
}
